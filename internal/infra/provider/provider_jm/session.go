package provider_jm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"favorites-sync-service/internal/domain"
	"favorites-sync-service/internal/metrics"
)

// LoginFunc performs the login call and returns the session token.
type LoginFunc func(ctx context.Context) (string, error)

// SessionManager owns the session token of the encrypted API.
//
// Every login attempt bumps the epoch. A caller that saw a 401 passes the
// epoch it observed before its request; if another caller already attempted
// a login since then, Refresh returns that attempt's result instead of
// logging in again.
type SessionManager struct {
	login  LoginFunc
	logger *zap.Logger

	loginMu sync.Mutex // serializes login attempts

	mu      sync.RWMutex
	token   string
	epoch   uint64
	lastErr error
	// rejected is set once the credentials themselves were refused; no
	// further logins are attempted until Reset.
	rejected error
}

// NewSessionManager creates a session manager around login.
func NewSessionManager(login LoginFunc, logger *zap.Logger) *SessionManager {
	return &SessionManager{login: login, logger: logger}
}

// Current returns the session token and the epoch it belongs to.
func (s *SessionManager) Current() (string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token, s.epoch
}

// Reset clears a previous credential rejection, e.g. at the start of a run.
func (s *SessionManager) Reset() {
	s.mu.Lock()
	s.rejected = nil
	s.mu.Unlock()
}

// Refresh logs in unless a login was already attempted after seenEpoch.
func (s *SessionManager) Refresh(ctx context.Context, seenEpoch uint64) error {
	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	s.mu.RLock()
	epoch, lastErr, rejected := s.epoch, s.lastErr, s.rejected
	s.mu.RUnlock()
	if rejected != nil {
		return rejected
	}
	if epoch != seenEpoch {
		s.logger.Debug("reusing concurrent login result", zap.Uint64("epoch", epoch))
		return lastErr
	}

	token, err := s.login(ctx)
	if err == nil && token == "" {
		err = fmt.Errorf("login returned empty session: %w", domain.ErrAuthentication)
	}

	s.mu.Lock()
	s.epoch++
	s.lastErr = err
	if err == nil {
		s.token = token
	} else if errors.Is(err, domain.ErrAuthentication) {
		s.rejected = err
	}
	s.mu.Unlock()

	if err != nil {
		metrics.Relogins.WithLabelValues(domain.ProviderJM, "failed").Inc()
		s.logger.Error("login failed", zap.Error(err))
		return err
	}

	metrics.Relogins.WithLabelValues(domain.ProviderJM, "ok").Inc()
	s.logger.Info("session refreshed", zap.Uint64("epoch", epoch+1))

	return nil
}
