package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"favorites-sync-service/internal/app/service"
	"favorites-sync-service/internal/domain"
)

// TestFromSyncResults_Summary tests summary counts across mixed outcomes.
func TestFromSyncResults_Summary(t *testing.T) {
	resp := FromSyncResults([]service.SyncResult{
		{Provider: "ex", Status: domain.SyncStatusSuccess, Count: 10},
		{Provider: "jm", Status: domain.SyncStatusConflict},
		{Provider: "xx", Status: domain.SyncStatusError, ErrorKind: "transport"},
	})

	assert.Len(t, resp.Results, 3)
	assert.Equal(t, SyncSummary{TotalSynced: 10, ProvidersOK: 1, ProvidersFail: 2}, resp.Summary)
	assert.Equal(t, "conflict", resp.Results[1].Status)
}

// TestFromStatus tests last run details are flattened per provider.
func TestFromStatus(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	resp := FromStatus(true, []service.ProviderState{
		{Provider: "ex", State: domain.RunStateRunning},
		{Provider: "jm", State: domain.RunStateSucceeded, LastResult: &service.SyncResult{
			RunID: "r1", Status: domain.SyncStatusSuccess, Count: 4, StartedAt: started, Duration: time.Minute,
		}},
	})

	assert.True(t, resp.Syncing)
	assert.Equal(t, ProviderStatusResponse{State: "running"}, resp.Providers["ex"])
	assert.Equal(t, "r1", resp.Providers["jm"].LastRunID)
	assert.Equal(t, 4, resp.Providers["jm"].LastCount)
	assert.Equal(t, "2024-05-01T10:01:00Z", resp.Providers["jm"].FinishedAt)
}

// TestFromGalleryPage_EmptyResults tests an empty page renders as an empty list.
func TestFromGalleryPage_EmptyResults(t *testing.T) {
	resp := FromGalleryPage("jm", &domain.GalleryPage{Page: 2, PageSize: 20})

	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Equal(t, PaginationMeta{Page: 2, PerPage: 20}, resp.Pagination)
}
