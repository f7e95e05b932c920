package dto

import (
	"time"

	"favorites-sync-service/internal/app/service"
	"favorites-sync-service/internal/domain"
)

// SyncResultResponse represents the outcome of one sync trigger.
type SyncResultResponse struct {
	RunID     string   `json:"run_id"`
	Provider  string   `json:"provider"`
	Status    string   `json:"status"`
	Count     int      `json:"count"`
	Message   string   `json:"message"`
	ErrorKind string   `json:"error_kind,omitempty"`
	Degraded  []string `json:"degraded,omitempty"`
	StartedAt string   `json:"started_at"`
	Duration  string   `json:"duration"`
}

// FromSyncResult converts service.SyncResult to SyncResultResponse.
func FromSyncResult(r service.SyncResult) SyncResultResponse {
	return SyncResultResponse{
		RunID:     r.RunID,
		Provider:  r.Provider,
		Status:    string(r.Status),
		Count:     r.Count,
		Message:   r.Message,
		ErrorKind: r.ErrorKind,
		Degraded:  r.Degraded,
		StartedAt: r.StartedAt.UTC().Format(time.RFC3339),
		Duration:  r.Duration.String(),
	}
}

// SyncAllResponse represents the response for a sync of every provider.
type SyncAllResponse struct {
	Results []SyncResultResponse `json:"results"`
	Summary SyncSummary          `json:"summary"`
}

// SyncSummary holds summary of sync operation.
type SyncSummary struct {
	TotalSynced   int `json:"total_synced"`
	ProvidersOK   int `json:"providers_ok"`
	ProvidersFail int `json:"providers_fail"`
}

// FromSyncResults converts service.SyncResult slice to SyncAllResponse.
func FromSyncResults(results []service.SyncResult) SyncAllResponse {
	resp := SyncAllResponse{
		Results: make([]SyncResultResponse, len(results)),
	}

	for i, r := range results {
		if r.Status == domain.SyncStatusSuccess {
			resp.Summary.TotalSynced += r.Count
			resp.Summary.ProvidersOK++
		} else {
			resp.Summary.ProvidersFail++
		}
		resp.Results[i] = FromSyncResult(r)
	}

	return resp
}

// ProviderStatusResponse is the run state of one provider.
type ProviderStatusResponse struct {
	State       string `json:"state"`
	LastRunID   string `json:"last_run_id,omitempty"`
	LastStatus  string `json:"last_status,omitempty"`
	LastCount   int    `json:"last_count"`
	LastMessage string `json:"last_message,omitempty"`
	FinishedAt  string `json:"finished_at,omitempty"`
}

// StatusResponse represents GET /api/v1/sync/status.
type StatusResponse struct {
	Syncing   bool                              `json:"syncing"`
	Providers map[string]ProviderStatusResponse `json:"providers"`
}

// FromStatus converts provider states to StatusResponse.
func FromStatus(syncing bool, states []service.ProviderState) StatusResponse {
	resp := StatusResponse{
		Syncing:   syncing,
		Providers: make(map[string]ProviderStatusResponse, len(states)),
	}

	for _, st := range states {
		p := ProviderStatusResponse{State: string(st.State)}
		if r := st.LastResult; r != nil {
			p.LastRunID = r.RunID
			p.LastStatus = string(r.Status)
			p.LastCount = r.Count
			p.LastMessage = r.Message
			p.FinishedAt = r.StartedAt.Add(r.Duration).UTC().Format(time.RFC3339)
		}
		resp.Providers[st.Provider] = p
	}

	return resp
}

// SyncRunResponse is one entry of the run history.
type SyncRunResponse struct {
	ID         string   `json:"id"`
	Provider   string   `json:"provider"`
	Status     string   `json:"status"`
	Count      int      `json:"count"`
	Message    string   `json:"message"`
	ErrorKind  string   `json:"error_kind,omitempty"`
	Degraded   []string `json:"degraded,omitempty"`
	StartedAt  string   `json:"started_at"`
	FinishedAt string   `json:"finished_at"`
	Duration   string   `json:"duration"`
}

// HistoryResponse represents GET /api/v1/sync/history.
type HistoryResponse struct {
	Runs []SyncRunResponse `json:"runs"`
}

// FromSyncRuns converts history rows to HistoryResponse.
func FromSyncRuns(runs []*domain.SyncRun) HistoryResponse {
	resp := HistoryResponse{Runs: make([]SyncRunResponse, len(runs))}
	for i, r := range runs {
		resp.Runs[i] = SyncRunResponse{
			ID:         r.ID,
			Provider:   r.Provider,
			Status:     string(r.Status),
			Count:      r.Count,
			Message:    r.Message,
			ErrorKind:  r.ErrorKind,
			Degraded:   r.Degraded,
			StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
			FinishedAt: r.FinishedAt.UTC().Format(time.RFC3339),
			Duration:   r.Duration().String(),
		}
	}

	return resp
}

// GalleryResponse represents one page of snapshot records.
type GalleryResponse struct {
	Provider   string          `json:"provider"`
	Results    []domain.Record `json:"results"`
	Pagination PaginationMeta  `json:"pagination"`
}

// PaginationMeta holds pagination metadata.
type PaginationMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

// FromGalleryPage converts domain.GalleryPage to GalleryResponse.
func FromGalleryPage(provider string, page *domain.GalleryPage) GalleryResponse {
	results := page.Records
	if results == nil {
		results = []domain.Record{}
	}

	return GalleryResponse{
		Provider: provider,
		Results:  results,
		Pagination: PaginationMeta{
			Total:      page.Total,
			Page:       page.Page,
			PerPage:    page.PageSize,
			TotalPages: page.TotalPages,
		},
	}
}

// StatsResponse represents per-provider aggregate counts.
type StatsResponse struct {
	Provider      string         `json:"provider"`
	Total         int            `json:"total"`
	Categories    map[string]int `json:"categories"`
	Subcategories map[string]int `json:"subcategories,omitempty"`
}

// QuarterlyResponse represents per-quarter publish counts, oldest first.
type QuarterlyResponse struct {
	Provider string                `json:"provider"`
	Data     []domain.QuarterCount `json:"data"`
}

// TopTagsResponse represents the most common tags of a provider.
type TopTagsResponse struct {
	Provider string            `json:"provider"`
	TopTags  []domain.TagCount `json:"top_tags"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
