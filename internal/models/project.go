package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Project is a story container within an organization.
//
// StoryCounter is the per-project slug sequence: it is non-decreasing and
// always equals the highest slug number ever issued for the project. Only
// the slug allocator mutates it, and only through an atomic
// increment-and-read.
type Project struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID        uuid.UUID      `gorm:"type:uuid;index;not null" json:"org_id" validate:"required"`
	Name         string         `gorm:"not null;index:idx_projects_org_name,unique" json:"name" validate:"required"`
	Description  string         `gorm:"type:text" json:"description"`
	Settings     datatypes.JSON `gorm:"type:jsonb" json:"settings"`
	StoryCounter int64          `gorm:"not null;default:0" json:"story_counter"`
	Archived     bool           `gorm:"not null;default:false;index" json:"archived"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}
