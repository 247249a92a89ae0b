package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/practice-scheduling/internal/lock"
)

const retryInterval = 25 * time.Millisecond

type practitionerLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewPractitionerLocker creates a locker that uses a per practitioner Redis key.
// Contended acquisitions are retried until wait elapses.
func NewPractitionerLocker(client *redis.Client, ttl, wait time.Duration) lock.Locker {
	return &practitionerLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *practitionerLocker) WithKey(ctx context.Context, practitionerID uuid.UUID, fn func(ctx context.Context) error) error {
	key := lockKey(practitionerID)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// The caller's ctx may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func lockKey(practitionerID uuid.UUID) string {
	return "lock:practitioner:" + practitionerID.String()
}

func (l *practitionerLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire practitioner lock: %w: %w", lock.ErrBackend, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return lock.ErrNotAcquired
		}

		timer := time.NewTimer(retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lock.ErrNotAcquired, ctx.Err())
		case <-timer.C:
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *practitionerLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release practitioner lock: %w", err)
	}
	return nil
}
