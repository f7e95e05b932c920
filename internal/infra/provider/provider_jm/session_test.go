package provider_jm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"favorites-sync-service/internal/domain"
)

// TestSessionManager_Refresh_SingleLoginForConcurrentCallers tests that
// callers who saw the same expired epoch share one login.
func TestSessionManager_Refresh_SingleLoginForConcurrentCallers(t *testing.T) {
	var calls atomic.Int32
	s := NewSessionManager(func(ctx context.Context) (string, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return "sess-1", nil
	}, zap.NewNop())

	_, epoch := s.Current()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Refresh(context.Background(), epoch)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())

	token, newEpoch := s.Current()
	assert.Equal(t, "sess-1", token)
	assert.Equal(t, epoch+1, newEpoch)
}

// TestSessionManager_Refresh_NewEpochLogsInAgain tests that an expiry seen
// after a successful login triggers a fresh login.
func TestSessionManager_Refresh_NewEpochLogsInAgain(t *testing.T) {
	var calls atomic.Int32
	s := NewSessionManager(func(ctx context.Context) (string, error) {
		n := calls.Add(1)
		return fmt.Sprintf("sess-%d", n), nil
	}, zap.NewNop())

	require.NoError(t, s.Refresh(context.Background(), 0))
	_, epoch := s.Current()
	require.NoError(t, s.Refresh(context.Background(), epoch))

	token, _ := s.Current()
	assert.Equal(t, "sess-2", token)
	assert.Equal(t, int32(2), calls.Load())
}

// TestSessionManager_Refresh_RejectedCredentialsAreSticky tests that refused
// credentials are not retried until Reset.
func TestSessionManager_Refresh_RejectedCredentialsAreSticky(t *testing.T) {
	var calls atomic.Int32
	s := NewSessionManager(func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", fmt.Errorf("bad password: %w", domain.ErrAuthentication)
	}, zap.NewNop())

	err := s.Refresh(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrAuthentication)

	_, epoch := s.Current()
	err = s.Refresh(context.Background(), epoch)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Equal(t, int32(1), calls.Load())

	s.Reset()
	_, epoch = s.Current()
	_ = s.Refresh(context.Background(), epoch)
	assert.Equal(t, int32(2), calls.Load())
}

// TestSessionManager_Refresh_TransportErrorIsRetried tests that a login lost
// to the network does not block later attempts.
func TestSessionManager_Refresh_TransportErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	s := NewSessionManager(func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("connection reset")
		}
		return "sess-ok", nil
	}, zap.NewNop())

	require.Error(t, s.Refresh(context.Background(), 0))

	_, epoch := s.Current()
	require.NoError(t, s.Refresh(context.Background(), epoch))

	token, _ := s.Current()
	assert.Equal(t, "sess-ok", token)
}

// TestSessionManager_Refresh_EmptyToken tests that an empty session is an
// authentication failure.
func TestSessionManager_Refresh_EmptyToken(t *testing.T) {
	s := NewSessionManager(func(ctx context.Context) (string, error) {
		return "", nil
	}, zap.NewNop())

	err := s.Refresh(context.Background(), 0)

	assert.ErrorIs(t, err, domain.ErrAuthentication)
}
