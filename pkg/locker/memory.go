package locker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// lease is one acquisition of a key.
type lease struct {
	token  string
	expiry time.Time
}

// MemoryLocker implements DistributedLocker within a single process.
// Expired locks can be taken over, matching the Redis backend.
type MemoryLocker struct {
	mu     sync.Mutex
	locks  map[string]lease
	now    func() time.Time
	logger *zap.Logger
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker(logger *zap.Logger) *MemoryLocker {
	return &MemoryLocker{
		locks:  make(map[string]lease),
		now:    time.Now,
		logger: logger,
	}
}

// Acquire takes key unless an unexpired holder exists. Each acquisition gets
// a fresh random token, the in-process counterpart of the Redsync value.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if held, ok := m.locks[key]; ok && now.Before(held.expiry) {
		m.logger.Debug("lock already held", zap.String("key", key))
		return "", nil
	}

	token := uuid.NewString()
	m.locks[key] = lease{token: token, expiry: now.Add(ttl)}
	m.logger.Debug("lock acquired", zap.String("key", key), zap.Duration("ttl", ttl))

	return token, nil
}

// Release drops key only while token owns it.
func (m *MemoryLocker) Release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.locks[key]
	if !ok || held.token != token {
		m.logger.Debug("lock not owned by this holder or already taken over", zap.String("key", key))
		return nil
	}

	delete(m.locks, key)
	m.logger.Debug("lock released", zap.String("key", key))

	return nil
}
