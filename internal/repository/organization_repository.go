package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/trackio/engine/internal/models"
	"github.com/trackio/engine/internal/permissions"
	appErr "github.com/trackio/engine/pkg/errors"
	"gorm.io/gorm"
)

type OrganizationRepository interface {
	BaseRepository[models.Organization]
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Organization, error)
	AddMember(ctx context.Context, m *models.Membership) error
	UpdateMemberRole(ctx context.Context, orgID, userID uuid.UUID, role permissions.Role) error
	RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.Membership, error)
	// EffectiveRole resolves the caller's rank in the organization: the
	// owner outranks any stored membership role. NotFound when the user is
	// neither owner nor member.
	EffectiveRole(ctx context.Context, orgID, userID uuid.UUID) (permissions.Role, error)
}

type organizationRepository struct {
	BaseRepository[models.Organization]
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) OrganizationRepository {
	return &organizationRepository{BaseRepository: NewBaseRepository[models.Organization](db), db: db}
}

func (r *organizationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Organization, error) {
	var out []models.Organization
	err := r.db.WithContext(ctx).
		Joins("LEFT JOIN memberships ON memberships.org_id = organizations.id AND memberships.user_id = ?", userID).
		Where("organizations.owner_id = ? OR memberships.user_id = ?", userID, userID).
		Group("organizations.id").
		Order("organizations.created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list organizations by user failed")
	}
	return out, nil
}

func (r *organizationRepository) AddMember(ctx context.Context, m *models.Membership) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeConflict, "add member failed")
	}
	return nil
}

func (r *organizationRepository) UpdateMemberRole(ctx context.Context, orgID, userID uuid.UUID, role permissions.Role) error {
	res := r.db.WithContext(ctx).Model(&models.Membership{}).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		Update("role", role)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update member role failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "membership not found")
	}
	return nil
}

func (r *organizationRepository) RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("org_id = ? AND user_id = ?", orgID, userID).Delete(&models.Membership{})
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "remove member failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "membership not found")
	}
	return nil
}

func (r *organizationRepository) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.Membership, error) {
	var out []models.Membership
	if err := r.db.WithContext(ctx).Where("org_id = ?", orgID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list members failed")
	}
	return out, nil
}

func (r *organizationRepository) EffectiveRole(ctx context.Context, orgID, userID uuid.UUID) (permissions.Role, error) {
	var org models.Organization
	if err := r.GetByID(ctx, orgID, &org); err != nil {
		return "", err
	}
	if org.OwnerID == userID {
		return permissions.RoleOwner, nil
	}
	var m models.Membership
	if err := r.db.WithContext(ctx).Where("org_id = ? AND user_id = ?", orgID, userID).First(&m).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", appErr.New(appErr.CodeNotFound, "user is not a member of organization")
		}
		return "", appErr.Wrap(err, appErr.CodeInternal, "get membership failed")
	}
	return m.Role, nil
}
