package domain

import (
	"context"
	"time"
)

// Provider defines the interface for external favorites sources.
// Implementations: internal/infra/provider/provider_ex/, internal/infra/provider/provider_jm/
type Provider interface {
	// Name returns the unique identifier for this provider.
	Name() string

	// Fetch retrieves the full ordered favorites list from the provider.
	// Pagination, batching and enrichment are handled internally.
	Fetch(ctx context.Context) ([]Record, error)

	// HealthCheck verifies the provider is reachable.
	HealthCheck(ctx context.Context) error
}

// SnapshotStore persists one snapshot file per provider.
// Implementations: internal/infra/storage/snapshot.go
type SnapshotStore interface {
	// Load reads the persisted snapshot. A missing file yields an empty snapshot.
	Load(ctx context.Context, provider string) (Snapshot, error)

	// Save replaces the persisted snapshot atomically.
	Save(ctx context.Context, provider string, records []Record) error

	// Path returns the snapshot file path for provider.
	Path(provider string) string
}

// CheckpointStore keeps partial enrichment progress between runs.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, provider string, records []Record) error
	LoadCheckpoint(ctx context.Context, provider string) (Snapshot, error)
	ClearCheckpoint(ctx context.Context, provider string) error
}

// Backuper copies the current snapshot aside before it is overwritten.
// Implementations: internal/infra/storage/backup.go
type Backuper interface {
	Backup(ctx context.Context, provider, path string) error
}

// RunRepository records finished sync runs.
// Implementations: internal/infra/postgres/repository.go
type RunRepository interface {
	Create(ctx context.Context, run *SyncRun) error
	List(ctx context.Context, provider string, limit int) ([]*SyncRun, error)
}

// Cache defines the interface for caching operations.
// Implementations: internal/infra/redis/cache.go
type Cache interface {
	// Get retrieves a value by key. Returns nil if not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value by key.
	Delete(ctx context.Context, key string) error

	// Clear removes all cached values.
	Clear(ctx context.Context) error
}
