package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"favorites-sync-service/internal/domain"
)

func makeIDs(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i + 1
	}

	return ids
}

// echoFetch maps every item of a batch to its string form.
func echoFetch(_ context.Context, b domain.FetchBatch[int]) ([]string, error) {
	out := make([]string, len(b.Items))
	for i, id := range b.Items {
		out[i] = fmt.Sprint(id)
	}

	return out, nil
}

func expectedStrings(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprint(id)
	}

	return out
}

// TestFetchBatches_RetryRoundRecoversBatches tests 57 ids in batches of 25
// where two of the three batches fail on their first attempt.
func TestFetchBatches_RetryRoundRecoversBatches(t *testing.T) {
	ids := makeIDs(57)
	attempts := map[int]int{}

	fetch := func(ctx context.Context, b domain.FetchBatch[int]) ([]string, error) {
		attempts[b.Index]++
		if b.Index != 1 && attempts[b.Index] == 1 {
			return nil, errors.New("upstream timeout")
		}
		return echoFetch(ctx, b)
	}

	var retried []int
	report := FetchBatches(context.Background(), ids, BatchConfig{
		Size:           25,
		MaxRetryRounds: 3,
		OnRetry:        func(batch, _ int) { retried = append(retried, batch) },
	}, fetch, zap.NewNop())

	require.True(t, report.Complete())
	require.NoError(t, report.Err())
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 2, report.Rounds)
	assert.Equal(t, []int{0, 2}, retried)
	assert.Equal(t, map[int]int{0: 2, 1: 1, 2: 2}, attempts)
	assert.Equal(t, expectedStrings(ids), report.Records)
}

// TestFetchBatches_Exhausted tests a batch that fails in every round.
func TestFetchBatches_Exhausted(t *testing.T) {
	ids := makeIDs(60)
	calls := 0

	fetch := func(ctx context.Context, b domain.FetchBatch[int]) ([]string, error) {
		if b.Index == 1 {
			calls++
			return nil, fmt.Errorf("decode: %w", domain.ErrProtocol)
		}
		return echoFetch(ctx, b)
	}

	report := FetchBatches(context.Background(), ids, BatchConfig{Size: 25, MaxRetryRounds: 2}, fetch, zap.NewNop())

	require.False(t, report.Complete())
	assert.Equal(t, 3, calls, "first pass plus two retry rounds")
	require.Len(t, report.Failed, 1)
	assert.Equal(t, 25, report.Failed[0].Offset)
	assert.Equal(t, 25, report.Failed[0].Size)
	assert.Equal(t, 3, report.Failed[0].Attempts)
	assert.Equal(t, "protocol", report.Failed[0].Kind)

	err := report.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBatchFetchExhausted)

	// batches 0 and 2 still assembled in order
	want := append(expectedStrings(ids[:25]), expectedStrings(ids[50:])...)
	assert.Equal(t, want, report.Records)
}

// TestFetchBatches_OrderInvariant tests ordering for several sizes with
// first-attempt failures on every other batch.
func TestFetchBatches_OrderInvariant(t *testing.T) {
	for _, n := range []int{0, 1, 24, 25, 26, 57, 100, 251} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			ids := makeIDs(n)
			var mu sync.Mutex
			seen := map[int]bool{}

			fetch := func(ctx context.Context, b domain.FetchBatch[int]) ([]string, error) {
				mu.Lock()
				first := !seen[b.Index]
				seen[b.Index] = true
				mu.Unlock()
				if first && b.Index%2 == 0 {
					return nil, errors.New("flaky")
				}
				return echoFetch(ctx, b)
			}

			report := FetchBatches(context.Background(), ids, BatchConfig{Size: 25, MaxRetryRounds: 1}, fetch, zap.NewNop())

			require.True(t, report.Complete())
			assert.Equal(t, expectedStrings(ids), report.Records)
			assert.Equal(t, (n+24)/25, report.Batches)
		})
	}
}

// TestFetchBatches_Empty tests that no calls are made for an empty input.
func TestFetchBatches_Empty(t *testing.T) {
	called := false
	fetch := func(context.Context, domain.FetchBatch[int]) ([]string, error) {
		called = true
		return nil, nil
	}

	report := FetchBatches(context.Background(), nil, BatchConfig{Size: 25}, fetch, zap.NewNop())

	assert.False(t, called)
	assert.True(t, report.Complete())
	assert.Empty(t, report.Records)
	assert.Equal(t, 0, report.Rounds)
}

// TestFetchBatches_ShortBatchAccepted tests that a batch returning fewer
// records than requested still counts as a success.
func TestFetchBatches_ShortBatchAccepted(t *testing.T) {
	fetch := func(_ context.Context, b domain.FetchBatch[int]) ([]string, error) {
		return []string{fmt.Sprint(b.Items[0])}, nil
	}

	report := FetchBatches(context.Background(), makeIDs(30), BatchConfig{Size: 25}, fetch, zap.NewNop())

	require.True(t, report.Complete())
	assert.Equal(t, []string{"1", "26"}, report.Records)
}

// TestFetchBatches_ContextCanceled tests that a canceled context ends the
// fetch with every batch reported as failed.
func TestFetchBatches_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := FetchBatches(ctx, makeIDs(50), BatchConfig{Size: 25, MaxRetryRounds: 5}, echoFetch, zap.NewNop())

	require.False(t, report.Complete())
	assert.Len(t, report.Failed, 2)
	assert.Equal(t, "canceled", report.Failed[0].Kind)
}

// TestFetchBatches_AuthenticationAborts tests that a rejected login stops
// the fetch without further batches or retry rounds.
func TestFetchBatches_AuthenticationAborts(t *testing.T) {
	var calls []int
	fetch := func(ctx context.Context, b domain.FetchBatch[int]) ([]string, error) {
		calls = append(calls, b.Index)
		if b.Index == 1 {
			return nil, fmt.Errorf("page 2: %w", domain.ErrAuthentication)
		}
		return echoFetch(ctx, b)
	}

	report := FetchBatches(context.Background(), makeIDs(10), BatchConfig{
		Size:           2,
		MaxRetryRounds: 3,
	}, fetch, zap.NewNop())

	assert.Equal(t, []int{0, 1}, calls)
	assert.False(t, report.Complete())
	assert.ErrorIs(t, report.Aborted, domain.ErrAuthentication)
	assert.ErrorIs(t, report.Err(), domain.ErrAuthentication)
	assert.NotErrorIs(t, report.Err(), domain.ErrBatchFetchExhausted)
	assert.Len(t, report.Failed, 4)
	assert.Equal(t, 1, report.Rounds)
}
