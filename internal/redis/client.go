package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Settings describe how to reach the Redis instance that backs practitioner locks.
// Zero values fall back to defaults sized for lock traffic.
type Settings struct {
	Addr         string
	Username     string
	Password     string
	PoolSize     int
	IOTimeout    time.Duration
	PingTimeout  time.Duration
	MinIdleConns int
}

func (s Settings) withDefaults() Settings {
	if s.PoolSize <= 0 {
		s.PoolSize = 10
	}
	if s.MinIdleConns <= 0 {
		s.MinIdleConns = 1
	}
	if s.IOTimeout <= 0 {
		s.IOTimeout = 2 * time.Second
	}
	if s.PingTimeout <= 0 {
		s.PingTimeout = 5 * time.Second
	}
	return s
}

func (s Settings) options() *redis.Options {
	return &redis.Options{
		Addr:         s.Addr,
		Username:     s.Username,
		Password:     s.Password,
		ReadTimeout:  s.IOTimeout,
		WriteTimeout: s.IOTimeout,
		PoolSize:     s.PoolSize,
		MinIdleConns: s.MinIdleConns,
	}
}

// Connect opens a client and pings it; a client that cannot be reached is closed.
func Connect(ctx context.Context, settings Settings) (*redis.Client, error) {
	settings = settings.withDefaults()
	rdb := redis.NewClient(settings.options())

	pingCtx, cancel := context.WithTimeout(ctx, settings.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", settings.Addr, err)
	}
	return rdb, nil
}
