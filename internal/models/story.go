package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StoryStatus is a board lane. The set is fixed today but stored as a
// string column so new lanes can be added without a schema change.
type StoryStatus string

const (
	StatusTodo       StoryStatus = "TODO"
	StatusInProgress StoryStatus = "IN_PROGRESS"
	StatusDone       StoryStatus = "DONE"
)

// Valid reports whether s is a known board lane.
func (s StoryStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Story is a unit of work on a project board.
//
// Slug is nil until the allocator assigns it and is never reassigned after
// that. Position orders stories within a (project, status) lane; values are
// caller-supplied floats so a story can be dropped between two neighbors
// without renumbering the whole lane.
type Story struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID   uuid.UUID      `gorm:"type:uuid;not null;index:idx_stories_project_status" json:"project_id" validate:"required"`
	SprintID    *uuid.UUID     `gorm:"type:uuid;index" json:"sprint_id"`
	Slug        *string        `gorm:"type:varchar(32)" json:"slug"`
	Title       string         `gorm:"not null" json:"title" validate:"required"`
	Description string         `gorm:"type:text" json:"description"`
	Status      StoryStatus    `gorm:"type:varchar(16);not null;default:'TODO';index:idx_stories_project_status" json:"status"`
	Position    float64        `gorm:"not null;default:0" json:"position"`
	AssigneeID  *uuid.UUID     `gorm:"type:uuid;index" json:"assignee_id"`
	Labels      datatypes.JSON `gorm:"type:jsonb" json:"labels"`
	Archived    bool           `gorm:"not null;default:false;index" json:"archived"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
