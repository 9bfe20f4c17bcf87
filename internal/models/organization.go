package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization is the top-level tenant. Projects, members, and everything
// below them belong to exactly one organization.
type Organization struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string         `gorm:"not null" json:"name" validate:"required"`
	Description string         `gorm:"type:text" json:"description"`
	OwnerID     uuid.UUID      `gorm:"type:uuid;index;not null" json:"owner_id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
