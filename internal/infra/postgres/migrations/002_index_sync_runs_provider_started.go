package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// indexRunsByProviderAndStart replaces the provider index with one that also
// serves the history listing's ORDER BY started_at DESC.
func indexRunsByProviderAndStart() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "002_index_sync_runs_provider_started",
		Migrate: func(tx *gorm.DB) error {
			return execAll(tx,
				"CREATE INDEX IF NOT EXISTS idx_sync_runs_provider_started ON sync_runs(provider, started_at DESC);",
				"DROP INDEX IF EXISTS idx_sync_runs_provider;",
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return execAll(tx,
				"CREATE INDEX IF NOT EXISTS idx_sync_runs_provider ON sync_runs(provider);",
				"DROP INDEX IF EXISTS idx_sync_runs_provider_started;",
			)
		},
	}
}

func execAll(tx *gorm.DB, statements ...string) error {
	for _, stmt := range statements {
		if err := tx.Exec(stmt).Error; err != nil {
			return err
		}
	}

	return nil
}
