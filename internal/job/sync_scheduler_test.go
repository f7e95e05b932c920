package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"favorites-sync-service/internal/app/service"
	"favorites-sync-service/internal/domain"
)

type fakeSyncer struct {
	mu       sync.Mutex
	calls    []string
	statuses map[string]domain.SyncStatus
	active   int
	overlap  bool
}

func (f *fakeSyncer) GetProviderNames() []string { return []string{domain.ProviderEx, domain.ProviderJM} }

func (f *fakeSyncer) Start(_ context.Context, provider string) service.SyncResult {
	f.mu.Lock()
	f.active++
	if f.active > 1 {
		f.overlap = true
	}
	f.calls = append(f.calls, provider)
	status := f.statuses[provider]
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if status == "" {
		status = domain.SyncStatusSuccess
	}
	return service.SyncResult{Provider: provider, Status: status, Count: 1}
}

func (f *fakeSyncer) snapshot() ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), f.overlap
}

// TestSyncScheduler_OnStartupOnly tests a zero interval runs once.
func TestSyncScheduler_OnStartupOnly(t *testing.T) {
	syncer := &fakeSyncer{statuses: map[string]domain.SyncStatus{domain.ProviderJM: domain.SyncStatusConflict}}
	s := NewSyncScheduler(syncer, SyncConfig{}, zap.NewNop())

	s.Start(true)
	assert.Eventually(t, func() bool {
		calls, _ := syncer.snapshot()
		return len(calls) == 2
	}, time.Second, 5*time.Millisecond)
	s.Stop()

	calls, overlap := syncer.snapshot()
	assert.Equal(t, []string{domain.ProviderEx, domain.ProviderJM}, calls)
	assert.False(t, overlap)
}

// TestSyncScheduler_Interval tests periodic runs stay sequential.
func TestSyncScheduler_Interval(t *testing.T) {
	syncer := &fakeSyncer{statuses: map[string]domain.SyncStatus{domain.ProviderEx: domain.SyncStatusError}}
	s := NewSyncScheduler(syncer, SyncConfig{Interval: 10 * time.Millisecond, Timeout: time.Second}, zap.NewNop())

	s.Start(false)
	assert.Eventually(t, func() bool {
		calls, _ := syncer.snapshot()
		return len(calls) >= 4
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	calls, overlap := syncer.snapshot()
	assert.False(t, overlap)
	assert.Equal(t, domain.ProviderEx, calls[0])
	assert.Equal(t, domain.ProviderJM, calls[1])
}

// TestSyncScheduler_StopWithoutStart tests Stop is safe before Start.
func TestSyncScheduler_StopWithoutStart(t *testing.T) {
	s := NewSyncScheduler(&fakeSyncer{}, SyncConfig{}, zap.NewNop())

	assert.NotPanics(t, s.Stop)
}
