// Package locker provides the mutual exclusion used to keep one sync run per
// provider, either within a process or across instances sharing Redis.
package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backends accepted by New.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// DistributedLocker provides lock capabilities keyed by name.
// Implementations must be safe for concurrent use.
//
// Every successful Acquire hands out a token that identifies that particular
// acquisition. Release only drops the lock while the token still matches, so
// a holder whose lock expired and was taken over cannot release the new
// holder's lock.
//
// Typical usage:
//
//	token, err := locker.Acquire(ctx, "sync:jm", 2*time.Hour)
//	if err != nil {
//	    return err
//	}
//	if token == "" {
//	    // Another run holds the lock
//	    return domain.ErrSyncInProgress
//	}
//	defer locker.Release(ctx, "sync:jm", token)
//
//	// Run the sync while holding the lock
type DistributedLocker interface {
	// Acquire attempts to take the lock without waiting.
	// Returns the ownership token, or an empty token and no error when the
	// lock is held elsewhere. The lock expires after ttl if never released.
	//
	// The ttl should cover the longest expected operation:
	// - For a sync run: the run timeout plus a margin
	// - Shorter ttls let a crashed holder's lock be taken over sooner
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Release releases the lock identified by key if token still owns it.
	// Releasing an expired, foreign or unknown lock is a no-op, not an error.
	// Errors are reserved for backend failures.
	Release(ctx context.Context, key, token string) error
}

// New builds the locker for backend. client is required for BackendRedis.
//
// The memory backend only excludes runs within this process; use the redis
// backend when several instances share a data directory or database.
func New(backend string, client *redis.Client, logger *zap.Logger) (DistributedLocker, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryLocker(logger), nil
	case BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("redis lock backend requires a redis client")
		}
		return NewRedisLocker(client, logger), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", backend)
	}
}
