// Package provider provides HTTP client utilities for external providers.
package provider

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"favorites-sync-service/internal/metrics"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// ClientConfig holds configuration for a provider client.
type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Retry     RetryConfig
	CB        CBConfig
}

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts int
	WaitTime    time.Duration
	MaxWaitTime time.Duration
}

// CBConfig holds circuit breaker configuration.
//
// The breaker trips once at least MinRequests calls were counted in the
// current interval and the share of failures reaches FailureRatio. While
// open, calls fail with gobreaker.ErrOpenState until Timeout elapses; then up
// to MaxRequests trial calls decide whether it closes again.
type CBConfig struct {
	MaxRequests  uint32
	MinRequests  uint32 // 0 means 3
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
}

// DefaultBreakerPoll is how often AwaitBreaker re-checks an open breaker.
const DefaultBreakerPoll = 100 * time.Millisecond

// NewRestyClient creates a new Resty HTTP client with retry configuration.
// Transport-level retries only cover network errors and 5xx; batch and item
// retries are layered above this by the ingest package.
func NewRestyClient(cfg ClientConfig) *resty.Client {
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", ua).
		SetRetryCount(cfg.Retry.MaxAttempts).
		SetRetryWaitTime(cfg.Retry.WaitTime).
		SetRetryMaxWaitTime(cfg.Retry.MaxWaitTime).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry on network errors or 5xx status codes
			if err != nil {
				return true
			}

			return r.StatusCode() >= 500
		})
	client.JSONMarshal = json.Marshal
	client.JSONUnmarshal = json.Unmarshal

	return client
}

// NewCircuitBreaker creates a new circuit breaker for a provider endpoint.
// State changes are logged and exported as a metric.
func NewCircuitBreaker[T any](name string, cfg CBConfig, logger *zap.Logger) *gobreaker.CircuitBreaker[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 3
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)

			return counts.Requests >= minRequests && failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(metrics.BreakerStateValue(to))
		},
	}

	return gobreaker.NewCircuitBreaker[T](settings)
}

// AwaitBreaker blocks while cb is open and returns once its timeout has
// elapsed and it admits trial calls again, or with the context error when ctx
// ends first. A closed or half-open breaker returns at once.
//
// Retry layers call it before re-issuing work so that a retry actually
// reaches the upstream instead of being rejected with ErrOpenState.
func AwaitBreaker[T any](ctx context.Context, cb *gobreaker.CircuitBreaker[T], poll time.Duration) error {
	if poll <= 0 {
		poll = DefaultBreakerPoll
	}

	if cb.State() != gobreaker.StateOpen {
		return nil
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for cb.State() == gobreaker.StateOpen {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}
