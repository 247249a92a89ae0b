package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/practice-scheduling/internal/api"
	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/config"
	"github.com/hackgods/practice-scheduling/internal/db"
	"github.com/hackgods/practice-scheduling/internal/lock"
	redisclient "github.com/hackgods/practice-scheduling/internal/redis"
)

// storage is what the scheduling service and the profile endpoints need from a backend.
type storage interface {
	appointment.Repository
	appointment.ProfileStore
}

// Runtime holds the wired scheduling service and the connections behind it.
type Runtime struct {
	Service      *appointment.Service
	Profiles     appointment.ProfileStore
	Dependencies []api.Dependency

	pgPool *pgxpool.Pool
	redis  *redis.Client
	logger *zap.Logger
}

// Build connects the configured storage and lock backends and wires the service.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Runtime, error) {
	rt := &Runtime{logger: logger}

	var store storage
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolSettings{})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		rt.pgPool = pool
		logger.Info("connected to postgres")

		if cfg.AutoMigrate {
			if err := db.Migrate(ctx, pool, logger); err != nil {
				rt.Close()
				return nil, err
			}
		}
		store = appointment.NewPgRepository(pool)
		rt.Dependencies = append(rt.Dependencies, api.Dependency{Name: "postgres", Critical: true, Ping: pool.Ping})
	default:
		if cfg.IsProduction() {
			return nil, fmt.Errorf("%s storage is not allowed in production", cfg.StorageDriver)
		}
		logger.Warn("using in-memory storage; data is lost on restart")
		store = appointment.NewMemoryRepository()
	}

	var locker lock.Locker
	switch cfg.LockBackend {
	case config.LockRedis:
		rdb, err := redisclient.Connect(ctx, redisclient.Settings{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis connection: %w", err)
		}
		rt.redis = rdb
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		locker = redisclient.NewPractitionerLocker(rdb, cfg.LockTTL, cfg.LockWait)
		rt.Dependencies = append(rt.Dependencies, api.Dependency{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	default:
		locker = lock.NewLocal()
	}

	rt.Service = appointment.NewService(store, locker, cfg, logger)
	rt.Profiles = store
	return rt, nil
}

func (rt *Runtime) Close() {
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.logger.Warn("error closing redis", zap.Error(err))
		}
	}
	if rt.pgPool != nil {
		rt.pgPool.Close()
	}
}
