package locker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestMemoryLocker_AcquireRelease tests exclusive ownership and release.
func TestMemoryLocker_AcquireRelease(t *testing.T) {
	l := NewMemoryLocker(zap.NewNop())
	ctx := context.Background()

	token, err := l.Acquire(ctx, "sync:ex", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	again, err := l.Acquire(ctx, "sync:ex", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)

	// other keys are independent
	other, err := l.Acquire(ctx, "sync:jm", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, other)
	assert.NotEqual(t, token, other)

	require.NoError(t, l.Release(ctx, "sync:ex", token))
	token, err = l.Acquire(ctx, "sync:ex", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

// TestMemoryLocker_Expiry tests an expired lock can be taken over.
func TestMemoryLocker_Expiry(t *testing.T) {
	l := NewMemoryLocker(zap.NewNop())
	now := time.Now()
	l.now = func() time.Time { return now }

	token, _ := l.Acquire(context.Background(), testLockKey, time.Second)
	require.NotEmpty(t, token)

	now = now.Add(2 * time.Second)
	token, err := l.Acquire(context.Background(), testLockKey, time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

// TestMemoryLocker_StaleReleaseKeepsNewHolder tests that a holder whose lock
// expired and was taken over cannot release the new holder's lock.
func TestMemoryLocker_StaleReleaseKeepsNewHolder(t *testing.T) {
	l := NewMemoryLocker(zap.NewNop())
	now := time.Now()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	first, err := l.Acquire(ctx, testLockKey, time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	now = now.Add(2 * time.Second)
	second, err := l.Acquire(ctx, testLockKey, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, second)

	require.NoError(t, l.Release(ctx, testLockKey, first))

	third, err := l.Acquire(ctx, testLockKey, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, third, "the second holder still owns the lock")

	require.NoError(t, l.Release(ctx, testLockKey, second))
	third, err = l.Acquire(ctx, testLockKey, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, third)
}

// TestMemoryLocker_Concurrent tests exactly one of many racing callers wins.
func TestMemoryLocker_Concurrent(t *testing.T) {
	l := NewMemoryLocker(zap.NewNop())

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if token, _ := l.Acquire(context.Background(), testLockKey, time.Minute); token != "" {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

// TestMemoryLocker_CanceledContext tests a canceled context is an error.
func TestMemoryLocker_CanceledContext(t *testing.T) {
	l := NewMemoryLocker(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	token, err := l.Acquire(ctx, testLockKey, time.Minute)

	assert.Empty(t, token)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestNew tests backend selection.
func TestNew(t *testing.T) {
	l, err := New("", nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryLocker{}, l)

	_, err = New(BackendRedis, nil, zap.NewNop())
	assert.Error(t, err)

	_, err = New("etcd", nil, zap.NewNop())
	assert.Error(t, err)
}
