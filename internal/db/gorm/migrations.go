package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: sessions and turns
		{
			ID: "001_sessions_and_turns",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Session{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Turn{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("turns", "sessions")
			},
		},
	})

	return m.Migrate()
}
