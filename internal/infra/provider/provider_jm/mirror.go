package provider_jm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"favorites-sync-service/internal/domain"
	"favorites-sync-service/internal/infra/provider"
)

// ProbePath is the lightweight versioning endpoint used to probe mirrors.
const ProbePath = "/setting"

// mirror is one base URL plus its breaker and last-known status.
type mirror struct {
	baseURL     string
	cb          *gobreaker.CircuitBreaker[*resty.Response]
	reachable   bool
	lastChecked time.Time
}

// MirrorSelector picks a working primary among interchangeable hosts and
// hands out failover candidates for each request.
type MirrorSelector struct {
	client       *resty.Client
	codec        *Codec
	probeTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time

	mu      sync.RWMutex
	mirrors []*mirror
	primary int // -1 until Select succeeds
}

// NewMirrorSelector creates a selector for urls in their configured order.
func NewMirrorSelector(
	urls []string,
	client *resty.Client,
	codec *Codec,
	cb provider.CBConfig,
	probeTimeout time.Duration,
	logger *zap.Logger,
) *MirrorSelector {
	s := &MirrorSelector{
		client:       client,
		codec:        codec,
		probeTimeout: probeTimeout,
		logger:       logger,
		now:          time.Now,
		primary:      -1,
	}
	for _, u := range urls {
		u = strings.TrimRight(u, "/")
		s.mirrors = append(s.mirrors, &mirror{
			baseURL: u,
			cb:      provider.NewCircuitBreaker[*resty.Response]("jm:"+u, cb, logger),
		})
	}

	return s
}

// Select probes every mirror in order and makes the first that answers the
// primary. Returns ErrNoMirrorAvailable when none answer.
func (s *MirrorSelector) Select(ctx context.Context) (string, error) {
	for i, m := range s.mirrors {
		err := s.probe(ctx, m)

		s.mu.Lock()
		m.reachable = err == nil
		m.lastChecked = s.now()
		if err == nil {
			s.primary = i
		}
		s.mu.Unlock()

		if err == nil {
			s.logger.Info("mirror selected", zap.String("mirror", m.baseURL), zap.Int("position", i))
			return m.baseURL, nil
		}

		s.logger.Warn("mirror probe failed", zap.String("mirror", m.baseURL), zap.Error(err))
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	s.primary = -1
	s.mu.Unlock()

	return "", fmt.Errorf("probed %d mirrors: %w", len(s.mirrors), domain.ErrNoMirrorAvailable)
}

func (s *MirrorSelector) probe(ctx context.Context, m *mirror) error {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	sig := s.codec.Sign(s.now().Unix())
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeaders(sig.Headers()).
		Get(m.baseURL + ProbePath)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("probe returned status %d", resp.StatusCode())
	}

	return nil
}

// Primary returns the active primary base URL.
func (s *MirrorSelector) Primary() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.primary < 0 {
		return "", false
	}

	return s.mirrors[s.primary].baseURL, true
}

// candidates returns the primary followed by the rest of the ring in
// configured order, wrapping around. Before Select it is the configured order.
func (s *MirrorSelector) candidates() []*mirror {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := s.primary
	if start < 0 {
		start = 0
	}

	out := make([]*mirror, 0, len(s.mirrors))
	for i := range s.mirrors {
		out = append(out, s.mirrors[(start+i)%len(s.mirrors)])
	}

	return out
}

// awaitAdmitting sleeps in poll steps until at least one mirror breaker is
// no longer open. It always waits one step, which also covers half-open
// breakers that are at their trial call limit.
func (s *MirrorSelector) awaitAdmitting(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = provider.DefaultBreakerPoll
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, m := range s.candidates() {
			if m.cb.State() != gobreaker.StateOpen {
				return nil
			}
		}
	}
}

// report records a request outcome. A success on a non-primary mirror
// promotes it to primary for the rest of the run.
func (s *MirrorSelector) report(m *mirror, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.reachable = ok
	m.lastChecked = s.now()
	if !ok {
		return
	}

	for i, cand := range s.mirrors {
		if cand == m && i != s.primary {
			s.logger.Info("promoting mirror to primary", zap.String("mirror", m.baseURL))
			s.primary = i
		}
	}
}

// Mirrors returns the status of every configured mirror.
func (s *MirrorSelector) Mirrors() []domain.Mirror {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Mirror, len(s.mirrors))
	for i, m := range s.mirrors {
		out[i] = domain.Mirror{
			BaseURL:     m.baseURL,
			Reachable:   m.reachable,
			LastChecked: m.lastChecked,
			Primary:     i == s.primary,
		}
	}

	return out
}
