package database

import (
	"gorm.io/gorm"

	"github.com/crewdeckhq/crewdeck/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Member{},
		&models.OnboardingRequest{},
		&models.Team{},
		&models.TeamMembership{},
		&models.AuditLog{},
		&models.CacheEntry{},
		&models.SagaLease{},
	)
}
