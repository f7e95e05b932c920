package postgres

import (
	"time"

	"github.com/lib/pq"

	"favorites-sync-service/internal/domain"
)

// SyncRunModel is the GORM model for the sync_runs table.
type SyncRunModel struct {
	ID        string         `gorm:"type:uuid;primaryKey"`
	Provider  string         `gorm:"type:varchar(50);not null;index"`
	Status    string         `gorm:"type:varchar(20);not null"`
	Count     int            `gorm:"default:0"`
	Message   string         `gorm:"type:text"`
	ErrorKind string         `gorm:"type:varchar(50)"`
	Degraded  pq.StringArray `gorm:"type:text[]"`

	StartedAt  time.Time `gorm:"not null;index"`
	FinishedAt time.Time `gorm:"not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for SyncRunModel.
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// ToDomain converts SyncRunModel to domain.SyncRun.
func (m *SyncRunModel) ToDomain() *domain.SyncRun {
	return &domain.SyncRun{
		ID:         m.ID,
		Provider:   m.Provider,
		Status:     domain.SyncStatus(m.Status),
		Count:      m.Count,
		Message:    m.Message,
		ErrorKind:  m.ErrorKind,
		Degraded:   m.Degraded,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
}

// FromDomain creates a SyncRunModel from domain.SyncRun.
func FromDomain(r *domain.SyncRun) *SyncRunModel {
	return &SyncRunModel{
		ID:         r.ID,
		Provider:   r.Provider,
		Status:     string(r.Status),
		Count:      r.Count,
		Message:    r.Message,
		ErrorKind:  r.ErrorKind,
		Degraded:   r.Degraded,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
	}
}
