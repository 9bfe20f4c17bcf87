package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/trackio/engine/internal/permissions"
)

// Membership links a user to an organization with a role. One row per
// (org, user) pair; the organization owner additionally outranks any role
// stored here.
type Membership struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID     uuid.UUID        `gorm:"type:uuid;not null;index:idx_memberships_org_user,unique" json:"org_id"`
	UserID    uuid.UUID        `gorm:"type:uuid;not null;index:idx_memberships_org_user,unique" json:"user_id"`
	Role      permissions.Role `gorm:"type:varchar(16);not null" json:"role"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
