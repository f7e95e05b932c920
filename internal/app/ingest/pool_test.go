package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"favorites-sync-service/internal/domain"
)

func makeBases(n int) []domain.Record {
	out := make([]domain.Record, n)
	for i := range out {
		out[i] = domain.Record{"id": fmt.Sprint(100 + i), "name": fmt.Sprintf("album %d", i)}
	}

	return out
}

// jitterEnrich merges a detail field after a random delay so completion
// order differs from input order.
func jitterEnrich(fail map[string]bool) EnrichFunc {
	return func(ctx context.Context, base domain.Record) (domain.Record, error) {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
		if fail[base.ID()] {
			return nil, errors.New("detail unavailable")
		}
		return base.Merge(map[string]any{"likes": int64(7), "enriched_at": int64(1)}), nil
	}
}

// TestPool_Run_PermanentFailuresKeepBaseForm tests 10 items on 4 workers
// with 2 items failing every attempt.
func TestPool_Run_PermanentFailuresKeepBaseForm(t *testing.T) {
	bases := makeBases(10)
	fail := map[string]bool{"103": true, "107": true}

	pool := NewPool(PoolConfig{Workers: 4, PerItemRetries: 2, Backoff: time.Millisecond, SaveEvery: 5}, zap.NewNop())
	report, err := pool.Run(context.Background(), bases, nil, jitterEnrich(fail), nil)
	require.NoError(t, err)

	require.Len(t, report.Records, 10)
	assert.Equal(t, 8, report.Enriched)
	assert.Equal(t, []int{3, 7}, report.Degraded)
	assert.Equal(t, []string{"103", "107"}, report.DegradedIDs())

	for i, rec := range report.Records {
		assert.Equal(t, bases[i].ID(), rec.ID(), "slot %d out of order", i)
		if fail[rec.ID()] {
			assert.Equal(t, bases[i], rec, "failed item must equal its base form")
		} else {
			assert.Equal(t, int64(7), rec["likes"])
		}
	}
}

// TestPool_Run_OrderInvariant tests output order for several sizes and
// worker counts.
func TestPool_Run_OrderInvariant(t *testing.T) {
	for _, tc := range []struct{ n, workers int }{{0, 4}, {1, 4}, {7, 2}, {50, 8}, {33, 16}} {
		t.Run(fmt.Sprintf("n=%d/workers=%d", tc.n, tc.workers), func(t *testing.T) {
			bases := makeBases(tc.n)
			pool := NewPool(PoolConfig{Workers: tc.workers, PerItemRetries: 1, SaveEvery: 10}, zap.NewNop())

			report, err := pool.Run(context.Background(), bases, nil, jitterEnrich(nil), nil)
			require.NoError(t, err)

			require.Len(t, report.Records, tc.n)
			for i := range bases {
				assert.Equal(t, bases[i].ID(), report.Records[i].ID())
			}
			assert.Equal(t, tc.n, report.Enriched)
		})
	}
}

// TestPool_Run_RespectsWorkerLimit tests that no more than Workers calls
// are in flight at once.
func TestPool_Run_RespectsWorkerLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	enrich := func(_ context.Context, base domain.Record) (domain.Record, error) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return base, nil
	}

	pool := NewPool(PoolConfig{Workers: 3, PerItemRetries: 1}, zap.NewNop())
	pool.Run(context.Background(), makeBases(30), nil, enrich, nil)

	assert.LessOrEqual(t, peak.Load(), int32(3))
}

// TestPool_Run_RetriesThenSucceeds tests per-item retries with backoff.
func TestPool_Run_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	enrich := func(_ context.Context, base domain.Record) (domain.Record, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("502 from mirror")
		}
		return base.Merge(map[string]any{"enriched_at": int64(1)}), nil
	}

	pool := NewPool(PoolConfig{Workers: 1, PerItemRetries: 3, Backoff: time.Millisecond}, zap.NewNop())
	report, err := pool.Run(context.Background(), makeBases(1), nil, enrich, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1, report.Enriched)
	assert.Empty(t, report.Degraded)
}

// TestPool_Run_CheckpointCadence tests that checkpoints carry exactly the
// completed count at multiples of SaveEvery and at N.
func TestPool_Run_CheckpointCadence(t *testing.T) {
	var mu sync.Mutex
	var sizes []int
	checkpoint := func(_ context.Context, records []domain.Record) error {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, len(records))

		// populated slots are written in input order
		prev := -1
		for _, r := range records {
			idx := int(domain.ToInt(r.ID())) - 100
			assert.Greater(t, idx, prev)
			prev = idx
		}
		return nil
	}

	pool := NewPool(PoolConfig{Workers: 4, PerItemRetries: 1, SaveEvery: 3}, zap.NewNop())
	report, err := pool.Run(context.Background(), makeBases(10), nil, jitterEnrich(nil), checkpoint)
	require.NoError(t, err)

	require.NotEmpty(t, sizes)
	assert.Equal(t, 10, sizes[len(sizes)-1], "final checkpoint holds every record")
	for i, s := range sizes {
		assert.Contains(t, []int{3, 6, 9, 10}, s)
		if i > 0 {
			assert.Greater(t, s, sizes[i-1], "checkpoints never go backwards")
		}
	}
	assert.Equal(t, len(sizes), report.Checkpoints)
}

// TestPool_Run_CheckpointErrorIsAbsorbed tests that a failing checkpoint
// writer does not affect the enrichment result.
func TestPool_Run_CheckpointErrorIsAbsorbed(t *testing.T) {
	checkpoint := func(context.Context, []domain.Record) error {
		return errors.New("disk full")
	}

	pool := NewPool(PoolConfig{Workers: 2, PerItemRetries: 1, SaveEvery: 2}, zap.NewNop())
	report, err := pool.Run(context.Background(), makeBases(6), nil, jitterEnrich(nil), checkpoint)
	require.NoError(t, err)

	assert.Len(t, report.Records, 6)
	assert.Equal(t, 6, report.Enriched)
	assert.Equal(t, 0, report.Checkpoints)
}

// TestPool_Run_ResumedItemsAreNotRefetched tests that resumed slots skip the
// detail call and still appear in order.
func TestPool_Run_ResumedItemsAreNotRefetched(t *testing.T) {
	bases := makeBases(8)
	resumed := map[int]domain.Record{}
	for i := 0; i < 5; i++ {
		resumed[i] = bases[i].Merge(map[string]any{"enriched_at": int64(42)})
	}

	var mu sync.Mutex
	var fetched []string
	enrich := func(_ context.Context, base domain.Record) (domain.Record, error) {
		mu.Lock()
		fetched = append(fetched, base.ID())
		mu.Unlock()
		return base.Merge(map[string]any{"enriched_at": int64(99)}), nil
	}

	pool := NewPool(PoolConfig{Workers: 2, PerItemRetries: 1, SaveEvery: 100}, zap.NewNop())
	report, err := pool.Run(context.Background(), bases, resumed, enrich, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"105", "106", "107"}, fetched)
	assert.Equal(t, 5, report.Reused)
	assert.Equal(t, 3, report.Enriched)
	for i := 0; i < 5; i++ {
		assert.Equal(t, int64(42), report.Records[i]["enriched_at"])
	}
	for i := 5; i < 8; i++ {
		assert.Equal(t, int64(99), report.Records[i]["enriched_at"])
	}
}

// TestPool_Run_CanceledContextKeepsBases tests that cancellation degrades
// the remaining items instead of blocking.
func TestPool_Run_CanceledContextKeepsBases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bases := makeBases(4)
	pool := NewPool(PoolConfig{Workers: 2, PerItemRetries: 3, Backoff: time.Second}, zap.NewNop())
	report, err := pool.Run(ctx, bases, nil, jitterEnrich(nil), nil)
	require.NoError(t, err)

	assert.Equal(t, bases, report.Records)
	assert.Len(t, report.Degraded, 4)
}

// TestPool_Run_AuthenticationStopsRun tests that a rejected login cancels the
// remaining items and is returned instead of degrading them.
func TestPool_Run_AuthenticationStopsRun(t *testing.T) {
	var calls atomic.Int32
	enrich := func(ctx context.Context, base domain.Record) (domain.Record, error) {
		calls.Add(1)
		if base.ID() == "102" {
			return nil, fmt.Errorf("re-login: %w", domain.ErrAuthentication)
		}
		time.Sleep(time.Millisecond)
		return base.Merge(map[string]any{"enriched_at": int64(1)}), nil
	}

	pool := NewPool(PoolConfig{Workers: 1, PerItemRetries: 3, Backoff: time.Millisecond}, zap.NewNop())
	report, err := pool.Run(context.Background(), makeBases(50), nil, enrich, nil)

	require.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Nil(t, report)
	// items 100..102 were attempted once each, the rest never started
	assert.Equal(t, int32(3), calls.Load())
}
