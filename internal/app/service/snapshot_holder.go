package service

import (
	"sync"

	"favorites-sync-service/internal/domain"
)

// SnapshotHolder is the in-memory copy of every provider snapshot read by
// the query side. A reload swaps the whole slice under the write lock, so
// readers see either the old or the new snapshot.
type SnapshotHolder struct {
	mu     sync.RWMutex
	snaps  map[string]domain.Snapshot
	loaded map[string]bool
}

// NewSnapshotHolder creates an empty holder.
func NewSnapshotHolder() *SnapshotHolder {
	return &SnapshotHolder{
		snaps:  make(map[string]domain.Snapshot),
		loaded: make(map[string]bool),
	}
}

// Get returns the snapshot of provider. Callers must not modify it.
func (h *SnapshotHolder) Get(provider string) (domain.Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.snaps[provider]
	return s, ok
}

// Set replaces the snapshot of provider.
func (h *SnapshotHolder) Set(provider string, s domain.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.snaps[provider] = s
	h.loaded[provider] = true
}

// Loaded reports whether every provider in names has a snapshot.
func (h *SnapshotHolder) Loaded(names ...string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, n := range names {
		if !h.loaded[n] {
			return false
		}
	}

	return true
}
