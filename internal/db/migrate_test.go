package db

import (
	"strings"
	"testing"
)

func TestMigrationFiles(t *testing.T) {
	files, err := MigrationFiles()
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("expected at least one embedded migration")
	}

	for _, name := range files {
		raw, err := migrations.ReadFile(migrationsDir + "/" + name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		body := string(raw)
		if !strings.Contains(body, "-- +goose Up") || !strings.Contains(body, "-- +goose Down") {
			t.Errorf("%s is missing goose annotations", name)
		}
	}
}

func TestPoolSettingsDefaults(t *testing.T) {
	got := PoolSettings{MaxConns: 4}.withDefaults()
	if got.MaxConns != 4 {
		t.Errorf("explicit MaxConns overwritten: %d", got.MaxConns)
	}
	if got.MinConns != 1 || got.MaxConnLifetime == 0 || got.MaxConnIdleTime == 0 {
		t.Errorf("defaults not applied: %+v", got)
	}
}
