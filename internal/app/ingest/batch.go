// Package ingest provides the order-preserving retrieval primitives shared by
// the providers: a batch fetcher with bounded retry rounds and a concurrent
// enrichment pool with checkpointing.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"favorites-sync-service/internal/domain"
)

// Result is the outcome of one batch or item attempt.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
}

// Ok reports whether the result carries a value.
func (r Result[T]) Ok() bool {
	return r.Err == nil && r.Attempts > 0
}

// Kind returns the error kind label, empty on success.
func (r Result[T]) Kind() string {
	return domain.ErrorKind(r.Err)
}

// Fatal reports whether err must stop a whole fetch instead of being
// retried. A rejected login fails identically on every later call.
func Fatal(err error) bool {
	return errors.Is(err, domain.ErrAuthentication)
}

// BatchFunc fetches the records of a single batch.
type BatchFunc[T, R any] func(ctx context.Context, batch domain.FetchBatch[T]) ([]R, error)

// BatchConfig controls partitioning and retry rounds.
type BatchConfig struct {
	Size           int
	MaxRetryRounds int
	RetryDelay     time.Duration

	// Limiter paces every batch call when set.
	Limiter *rate.Limiter

	// OnRetry is called once per batch that is retried, with the round number.
	OnRetry func(batch, round int)
}

// BatchFailure describes a batch that stayed failed after all rounds.
type BatchFailure struct {
	Index    int
	Offset   int
	Size     int
	Attempts int
	Kind     string
	Err      error
}

// BatchReport is the assembled outcome of a batch fetch.
type BatchReport[R any] struct {
	Records []R
	Batches int
	Rounds  int
	Failed  []BatchFailure

	// Aborted is the fatal error that stopped the fetch early, if any.
	Aborted error
}

// Complete reports whether every batch succeeded.
func (r *BatchReport[R]) Complete() bool {
	return len(r.Failed) == 0 && r.Aborted == nil
}

// Err returns the fatal error when the fetch was aborted, otherwise
// ErrBatchFetchExhausted wrapped with the failed batch count, or nil.
func (r *BatchReport[R]) Err() error {
	if r.Aborted != nil {
		return fmt.Errorf("batch fetch aborted: %w", r.Aborted)
	}
	if r.Complete() {
		return nil
	}

	first := r.Failed[0]
	return fmt.Errorf("%d of %d batches failed, first at offset %d: %w: %v",
		len(r.Failed), r.Batches, first.Offset, domain.ErrBatchFetchExhausted, first.Err)
}

// FetchBatches partitions items into batches, fetches them sequentially and
// retries only the failing ones for up to MaxRetryRounds extra passes.
// Results are concatenated by ascending batch offset, whatever round each
// batch succeeded in. Failed batches contribute no records. A Fatal error
// stops the fetch at once and is reported in Aborted.
func FetchBatches[T, R any](
	ctx context.Context,
	items []T,
	cfg BatchConfig,
	fetch BatchFunc[T, R],
	logger *zap.Logger,
) *BatchReport[R] {
	batches := domain.Partition(items, cfg.Size)
	results := make([]Result[[]R], len(batches))
	report := &BatchReport[R]{Batches: len(batches)}

	pending := make([]int, len(batches))
	for i := range batches {
		pending[i] = i
	}

rounds:
	for round := 0; len(pending) > 0 && round <= cfg.MaxRetryRounds; round++ {
		if round > 0 {
			logger.Warn("retrying failed batches",
				zap.Int("round", round),
				zap.Int("pending", len(pending)),
				zap.Duration("delay", cfg.RetryDelay),
			)
			if err := sleep(ctx, cfg.RetryDelay); err != nil {
				break
			}
		}
		report.Rounds = round + 1

		var failed []int
		for n, i := range pending {
			if ctx.Err() != nil {
				results[i].Err = ctx.Err()
				failed = append(failed, i)
				continue
			}
			if round > 0 && cfg.OnRetry != nil {
				cfg.OnRetry(i, round)
			}

			results[i] = attemptBatch(ctx, batches[i], cfg.Limiter, fetch, results[i].Attempts)
			if Fatal(results[i].Err) {
				logger.Error("batch fetch aborted",
					zap.Int("batch", i),
					zap.Int("offset", batches[i].Offset),
					zap.Int("round", round),
					zap.Error(results[i].Err),
				)
				report.Aborted = results[i].Err
				pending = append(failed, pending[n:]...)
				break rounds
			}
			if !results[i].Ok() {
				logger.Warn("batch fetch failed",
					zap.Int("batch", i),
					zap.Int("offset", batches[i].Offset),
					zap.Int("round", round),
					zap.String("kind", results[i].Kind()),
					zap.Error(results[i].Err),
				)
				failed = append(failed, i)
			}
		}
		pending = failed
	}

	for _, i := range pending {
		report.Failed = append(report.Failed, BatchFailure{
			Index:    i,
			Offset:   batches[i].Offset,
			Size:     len(batches[i].Items),
			Attempts: results[i].Attempts,
			Kind:     domain.ErrorKind(results[i].Err),
			Err:      results[i].Err,
		})
	}

	total := 0
	for _, r := range results {
		total += len(r.Value)
	}
	report.Records = make([]R, 0, total)
	for _, r := range results {
		if r.Err == nil {
			report.Records = append(report.Records, r.Value...)
		}
	}

	return report
}

func attemptBatch[T, R any](
	ctx context.Context,
	batch domain.FetchBatch[T],
	limiter *rate.Limiter,
	fetch BatchFunc[T, R],
	prevAttempts int,
) Result[[]R] {
	res := Result[[]R]{Attempts: prevAttempts + 1}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			res.Err = err
			return res
		}
	}

	res.Value, res.Err = fetch(ctx, batch)
	if res.Err != nil {
		res.Value = nil
	}

	return res
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
