// Package domain contains the sync entities, error taxonomy and ports.
// This package has no external dependencies (only stdlib).
package domain

import "time"

// RunState is the lifecycle state of a provider sync.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
)

// SyncStatus is the terminal outcome reported to callers.
type SyncStatus string

const (
	SyncStatusSuccess  SyncStatus = "success"
	SyncStatusError    SyncStatus = "error"
	SyncStatusConflict SyncStatus = "conflict"
	SyncStatusAccepted SyncStatus = "accepted" // async trigger, run continues in background
)

// SyncRun is a finished sync, as kept in run history.
type SyncRun struct {
	ID         string
	Provider   string
	Status     SyncStatus
	Count      int
	Message    string
	ErrorKind  string
	Degraded   []string // ids kept in base form after enrichment failed
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the run took.
func (r *SyncRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// FetchBatch is a bounded slice of item descriptors tagged with the offset
// of its first item in the original sequence.
type FetchBatch[T any] struct {
	Index  int
	Offset int
	Items  []T
}

// Partition splits items into ceil(len/size) batches in order.
func Partition[T any](items []T, size int) []FetchBatch[T] {
	if size < 1 {
		size = 1
	}

	batches := make([]FetchBatch[T], 0, (len(items)+size-1)/size)
	for off := 0; off < len(items); off += size {
		end := off + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, FetchBatch[T]{
			Index:  len(batches),
			Offset: off,
			Items:  items[off:end],
		})
	}

	return batches
}

// Mirror is one interchangeable base URL of the encrypted source.
type Mirror struct {
	BaseURL     string    `json:"base_url"`
	Reachable   bool      `json:"reachable"`
	LastChecked time.Time `json:"last_checked"`
	Primary     bool      `json:"primary"`
}
