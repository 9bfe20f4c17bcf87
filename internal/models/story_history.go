package models

import (
	"time"

	"github.com/google/uuid"
)

// StoryHistory is an append-only audit record: one row per mutated field
// per targeted edit. Bulk board reorders do not write history. Rows are
// removed only when their story row is hard-deleted.
type StoryHistory struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StoryID   uuid.UUID `gorm:"type:uuid;not null;index" json:"story_id"`
	Field     string    `gorm:"type:varchar(64);not null" json:"field"`
	OldValue  string    `gorm:"type:text" json:"old_value"`
	NewValue  string    `gorm:"type:text" json:"new_value"`
	ActorID   uuid.UUID `gorm:"type:uuid;not null" json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}
