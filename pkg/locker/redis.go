package locker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyPrefix namespaces lock keys in a shared Redis.
const KeyPrefix = "favsync:lock:"

// RedisLocker implements DistributedLocker with Redsync, so that several
// service instances sharing one Redis never run the same provider sync at
// once. Redsync implements the Redlock algorithm for distributed mutual
// exclusion.
type RedisLocker struct {
	rs      *redsync.Redsync
	logger  *zap.Logger
	mutexes map[string]*redsync.Mutex // token -> mutex
	mu      sync.Mutex
}

// NewRedisLocker creates a Redis-backed locker.
//
// Redsync implements the Redlock algorithm as described in the Redis docs:
// https://redis.io/docs/latest/develop/use/patterns/distributed-locks/
//
// The implementation provides:
// - Atomic lock acquisition and release
// - Automatic expiration so a crashed instance cannot hold a provider forever
// - Release guarded by the random value written at acquisition
func NewRedisLocker(client *redis.Client, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		rs:      redsync.New(goredis.NewPool(client)),
		logger:  logger,
		mutexes: make(map[string]*redsync.Mutex),
	}
}

// Acquire makes a single, non-blocking attempt on key and returns the
// mutex value as the ownership token.
//
// Implementation details:
// - Uses Redsync's NewMutex with expiry and tries=1 (non-blocking)
// - Keys are stored under KeyPrefix
// - Contention is reported as an empty token, not an error
// - Connection problems and cancellation are errors
func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	mutex := r.rs.NewMutex(
		KeyPrefix+key,
		redsync.WithExpiry(ttl),
		redsync.WithTries(1), // fail fast, a running sync is not waited for
	)

	if err := mutex.LockContext(ctx); err != nil {
		if isTaken(err) {
			r.logger.Debug("lock already held by another instance", zap.String("key", key))
			return "", nil
		}
		return "", fmt.Errorf("acquire lock %s: %w", key, err)
	}

	token := mutex.Value()
	r.mu.Lock()
	r.mutexes[token] = mutex
	r.mu.Unlock()

	r.logger.Debug("lock acquired", zap.String("key", key), zap.Duration("ttl", ttl))

	return token, nil
}

// Release unlocks key if token owns it.
//
// Redsync verifies the stored value before deleting, ensuring that:
// - Only the acquisition that wrote the value can release the lock
// - A lock that expired and was taken over is left to its new holder
// - Unknown tokens are a no-op
func (r *RedisLocker) Release(ctx context.Context, key, token string) error {
	r.mu.Lock()
	mutex, exists := r.mutexes[token]
	if exists && mutex.Name() == KeyPrefix+key {
		delete(r.mutexes, token)
	} else {
		exists = false
	}
	r.mu.Unlock()

	if !exists {
		r.logger.Debug("lock not owned by this instance", zap.String("key", key))
		return nil
	}

	ok, err := mutex.UnlockContext(ctx)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	if !ok {
		r.logger.Warn("lock expired before release", zap.String("key", key))
		return nil
	}

	r.logger.Debug("lock released", zap.String("key", key))

	return nil
}

// isTaken reports lock contention. Redsync can signal it two ways:
// 1. redsync.ErrFailed, the standard "lock taken" error
// 2. a wrapped error reading "lock already taken, locked nodes: [X]"
func isTaken(err error) bool {
	if errors.Is(err, redsync.ErrFailed) {
		return true
	}

	return strings.Contains(err.Error(), "lock already taken")
}
