// Package joblock provides a redis-backed mutex so batch jobs do not run
// concurrently across process instances.
package joblock

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrAlreadyRunning = errors.New("job_already_running")

type Locker struct {
	redis *redis.Client
	log   *zap.Logger
	ttl   time.Duration
}

func NewLocker(client *redis.Client, log *zap.Logger, ttl time.Duration) *Locker {
	return &Locker{
		redis: client,
		log:   log.Named("joblock"),
		ttl:   ttl,
	}
}

// Acquire takes the named lock or fails with ErrAlreadyRunning. The returned
// release func is safe to call after the TTL has lapsed.
func (l *Locker) Acquire(ctx context.Context, name string) (func(), error) {
	key := "joblock:" + name
	ok, err := l.redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		// Redis being down should not stop batch work; the row locks below
		// still keep the engine correct. Fail open.
		l.log.Warn("joblock unavailable, proceeding unlocked", zap.Error(err), zap.String("job", name))
		return func() {}, nil
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return func() {
		if err := l.redis.Del(context.Background(), key).Err(); err != nil {
			l.log.Warn("joblock release failed", zap.Error(err), zap.String("job", name))
		}
	}, nil
}
