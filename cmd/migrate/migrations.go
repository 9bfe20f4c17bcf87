package main

import (
	"gorm.io/gorm"

	"github.com/trackio/engine/internal/models"
)

// registerModels returns all models that need migration
func registerModels() []interface{} {
	return []interface{}{
		// User Management
		&models.User{},
		&models.Organization{},
		&models.Membership{},

		// Tracking
		&models.Project{},
		&models.Sprint{},
		&models.Story{},
		&models.StoryHistory{},
	}
}

// runMigrations executes all database migrations
func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(registerModels()...); err != nil {
		return err
	}

	return runCustomMigrations(db)
}

// runCustomMigrations handles schema changes AutoMigrate can't handle
func runCustomMigrations(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		addStorySlugUniqueIndex,
		addBoardOrderIndex,
	}

	for _, migration := range migrations {
		if err := migration(db); err != nil {
			return err
		}
	}

	return nil
}

// addStorySlugUniqueIndex enforces slug uniqueness per project. Partial so
// slug-less legacy rows awaiting backfill don't collide on NULL.
func addStorySlugUniqueIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_stories_project_slug
		ON stories(project_id, slug)
		WHERE slug IS NOT NULL AND deleted_at IS NULL
	`).Error
}

// addBoardOrderIndex speeds up lane-ordered board reads.
func addBoardOrderIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_stories_board_order
		ON stories(project_id, status, position)
		WHERE archived = false AND deleted_at IS NULL
	`).Error
}
