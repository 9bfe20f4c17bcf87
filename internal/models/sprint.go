package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sprint is a time-boxed iteration stories can be attached to.
type Sprint struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID      `gorm:"type:uuid;index;not null" json:"project_id" validate:"required"`
	Name      string         `gorm:"not null" json:"name" validate:"required"`
	Goal      string         `gorm:"type:text" json:"goal"`
	StartsAt  *time.Time     `json:"starts_at"`
	EndsAt    *time.Time     `json:"ends_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
