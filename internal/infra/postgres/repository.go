package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"favorites-sync-service/internal/domain"
)

// RunRepository implements domain.RunRepository using PostgreSQL.
// Rows are append-only: a run is written once, after it finished, and is
// never updated.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new PostgreSQL run repository.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a finished run.
func (r *RunRepository) Create(ctx context.Context, run *domain.SyncRun) error {
	if err := r.db.WithContext(ctx).Create(FromDomain(run)).Error; err != nil {
		return fmt.Errorf("creating sync run: %w", err)
	}

	return nil
}

// List returns the latest runs, newest first. An empty provider lists all.
//
// Provider filtered listings are served by the composite
// idx_sync_runs_provider_started index; the unfiltered listing uses
// idx_sync_runs_started_at. Both read the index in order and stop after
// limit rows, so the cost does not grow with the history.
func (r *RunRepository) List(ctx context.Context, provider string, limit int) ([]*domain.SyncRun, error) {
	query := r.db.WithContext(ctx).Model(&SyncRunModel{})
	if provider != "" {
		query = query.Where("provider = ?", provider)
	}

	var models []SyncRunModel
	if err := query.Order("started_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}

	runs := make([]*domain.SyncRun, len(models))
	for i := range models {
		runs[i] = models[i].ToDomain()
	}

	return runs, nil
}
