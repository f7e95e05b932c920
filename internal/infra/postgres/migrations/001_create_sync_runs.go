package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// createSyncRunsTable creates the sync_runs history table.
func createSyncRunsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "001_create_sync_runs",
		Migrate: func(tx *gorm.DB) error {
			err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS sync_runs (
					id UUID PRIMARY KEY,
					provider VARCHAR(50) NOT NULL,
					status VARCHAR(20) NOT NULL,
					count INTEGER DEFAULT 0,
					message TEXT,
					error_kind VARCHAR(50),
					degraded TEXT[],

					started_at TIMESTAMP NOT NULL,
					finished_at TIMESTAMP NOT NULL,
					created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
				);
			`).Error
			if err != nil {
				return err
			}

			return execAll(tx,
				"CREATE INDEX IF NOT EXISTS idx_sync_runs_provider ON sync_runs(provider);",
				"CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at DESC);",
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec("DROP TABLE IF EXISTS sync_runs;").Error
		},
	}
}
