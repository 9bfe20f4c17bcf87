package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/trackio/engine/internal/models"
	"github.com/trackio/engine/internal/permissions"
	"github.com/trackio/engine/internal/repository"
	appErr "github.com/trackio/engine/pkg/errors"
	"github.com/trackio/engine/pkg/logger"
	"go.uber.org/zap"
)

type OrganizationService interface {
	CreateOrganization(ctx context.Context, ownerID uuid.UUID, name, description string) (*models.Organization, error)
	GetOrganization(ctx context.Context, actorID, orgID uuid.UUID) (*models.Organization, error)
	ListOrganizations(ctx context.Context, actorID uuid.UUID) ([]models.Organization, error)
	DeleteOrganization(ctx context.Context, actorID, orgID uuid.UUID) error

	AddMember(ctx context.Context, actorID, orgID, userID uuid.UUID, role permissions.Role) (*models.Membership, error)
	UpdateMemberRole(ctx context.Context, actorID, orgID, userID uuid.UUID, role permissions.Role) error
	RemoveMember(ctx context.Context, actorID, orgID, userID uuid.UUID) error
	ListMembers(ctx context.Context, actorID, orgID uuid.UUID) ([]models.Membership, error)
}

type organizationService struct {
	orgRepo repository.OrganizationRepository
}

func NewOrganizationService(orgRepo repository.OrganizationRepository) OrganizationService {
	return &organizationService{orgRepo: orgRepo}
}

var _ OrganizationService = (*organizationService)(nil)

func (s *organizationService) requireAction(ctx context.Context, actorID, orgID uuid.UUID, action permissions.Action) error {
	role, err := s.orgRepo.EffectiveRole(ctx, orgID, actorID)
	if err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return appErr.New(appErr.CodeForbidden, "caller has no role in organization")
		}
		return err
	}
	if !permissions.Can(role, action) {
		return appErr.New(appErr.CodeForbidden, "insufficient role")
	}
	return nil
}

func (s *organizationService) CreateOrganization(ctx context.Context, ownerID uuid.UUID, name, description string) (*models.Organization, error) {
	org := &models.Organization{Name: name, Description: description, OwnerID: ownerID}
	if err := s.orgRepo.Create(ctx, org); err != nil {
		return nil, err
	}
	logger.L().Info("organization created", zap.String("org_id", org.ID.String()), zap.String("owner_id", ownerID.String()))
	return org, nil
}

func (s *organizationService) GetOrganization(ctx context.Context, actorID, orgID uuid.UUID) (*models.Organization, error) {
	if _, err := s.orgRepo.EffectiveRole(ctx, orgID, actorID); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.New(appErr.CodeForbidden, "caller has no role in organization")
		}
		return nil, err
	}
	var org models.Organization
	if err := s.orgRepo.GetByID(ctx, orgID, &org); err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *organizationService) ListOrganizations(ctx context.Context, actorID uuid.UUID) ([]models.Organization, error) {
	return s.orgRepo.ListByUser(ctx, actorID)
}

func (s *organizationService) DeleteOrganization(ctx context.Context, actorID, orgID uuid.UUID) error {
	if err := s.requireAction(ctx, actorID, orgID, permissions.ActionOrgManage); err != nil {
		return err
	}
	return s.orgRepo.Delete(ctx, orgID)
}

func (s *organizationService) AddMember(ctx context.Context, actorID, orgID, userID uuid.UUID, role permissions.Role) (*models.Membership, error) {
	if err := s.requireAction(ctx, actorID, orgID, permissions.ActionMemberManage); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, appErr.New(appErr.CodeInvalid, "unknown role")
	}
	m := &models.Membership{OrgID: orgID, UserID: userID, Role: role}
	if err := s.orgRepo.AddMember(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *organizationService) UpdateMemberRole(ctx context.Context, actorID, orgID, userID uuid.UUID, role permissions.Role) error {
	if err := s.requireAction(ctx, actorID, orgID, permissions.ActionMemberManage); err != nil {
		return err
	}
	if !role.Valid() {
		return appErr.New(appErr.CodeInvalid, "unknown role")
	}
	return s.orgRepo.UpdateMemberRole(ctx, orgID, userID, role)
}

func (s *organizationService) RemoveMember(ctx context.Context, actorID, orgID, userID uuid.UUID) error {
	if err := s.requireAction(ctx, actorID, orgID, permissions.ActionMemberManage); err != nil {
		return err
	}
	return s.orgRepo.RemoveMember(ctx, orgID, userID)
}

func (s *organizationService) ListMembers(ctx context.Context, actorID, orgID uuid.UUID) ([]models.Membership, error) {
	if _, err := s.orgRepo.EffectiveRole(ctx, orgID, actorID); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.New(appErr.CodeForbidden, "caller has no role in organization")
		}
		return nil, err
	}
	return s.orgRepo.ListMembers(ctx, orgID)
}
