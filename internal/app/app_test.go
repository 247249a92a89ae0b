package app

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/practice-scheduling/internal/config"
)

func TestBuildInMemory(t *testing.T) {
	cfg := config.Config{
		StorageDriver:   config.StorageMemory,
		LockBackend:     config.LockLocal,
		DefaultTimezone: time.UTC,
	}
	rt, err := Build(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer rt.Close()

	if rt.Service == nil || rt.Profiles == nil {
		t.Fatal("service and profile store must be wired")
	}
	if len(rt.Dependencies) != 0 {
		t.Fatalf("in-memory runtime has no external dependencies, got %d", len(rt.Dependencies))
	}

	ids, err := rt.Service.Practitioners(context.Background())
	if err != nil || len(ids) != 0 {
		t.Fatalf("fresh store should list no practitioners, got %v %v", ids, err)
	}
}

func TestBuildRefusesMemoryStorageInProduction(t *testing.T) {
	cfg := config.Config{
		Env:           "prod",
		StorageDriver: config.StorageMemory,
		LockBackend:   config.LockLocal,
	}
	if _, err := Build(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatal("expected production runtime with memory storage to be rejected")
	}
}
