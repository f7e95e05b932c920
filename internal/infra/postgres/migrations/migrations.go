// Package migrations versions the run history schema with gormigrate.
//
// Applied migration ids are kept in Table rather than gormigrate's default
// table, so the history schema can live in a database shared with other
// services. Every migration runs in a transaction and must be reversible.
package migrations

import (
	"errors"
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Table records the ids of applied migrations.
const Table = "favsync_migrations"

var options = &gormigrate.Options{
	TableName:      Table,
	IDColumnName:   "id",
	IDColumnSize:   255,
	UseTransaction: true,
}

// Migrations returns all database migrations, oldest first.
func Migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		createSyncRunsTable(),
		indexRunsByProviderAndStart(),
	}
}

// Latest returns the id of the newest migration.
func Latest() string {
	all := Migrations()

	return all[len(all)-1].ID
}

func newMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	return gormigrate.New(db, options, Migrations())
}

// Run applies every pending migration.
func Run(db *gorm.DB) error {
	if err := newMigrator(db).Migrate(); err != nil {
		return fmt.Errorf("migrating history schema: %w", err)
	}

	return nil
}

// Rollback reverts the most recently applied migration.
func Rollback(db *gorm.DB) error {
	if err := newMigrator(db).RollbackLast(); err != nil {
		return fmt.Errorf("rolling back history schema: %w", err)
	}

	return nil
}

// Reset reverts every applied migration, newest first.
func Reset(db *gorm.DB) error {
	m := newMigrator(db)
	for {
		err := m.RollbackLast()
		if errors.Is(err, gormigrate.ErrNoRunMigration) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("resetting history schema: %w", err)
		}
	}
}
