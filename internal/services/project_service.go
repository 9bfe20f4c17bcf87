package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/trackio/engine/internal/models"
	"github.com/trackio/engine/internal/permissions"
	"github.com/trackio/engine/internal/repository"
	appErr "github.com/trackio/engine/pkg/errors"
	"github.com/trackio/engine/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type ProjectService interface {
	CreateProject(ctx context.Context, actorID, orgID uuid.UUID, input *CreateProjectInput) (*models.Project, error)
	GetProject(ctx context.Context, actorID, projectID uuid.UUID) (*models.Project, error)
	ListProjects(ctx context.Context, actorID, orgID uuid.UUID) ([]models.Project, error)
	UpdateProject(ctx context.Context, actorID, projectID uuid.UUID, input *UpdateProjectInput) (*models.Project, error)
	ArchiveProject(ctx context.Context, actorID, projectID uuid.UUID) error
	DeleteProject(ctx context.Context, actorID, projectID uuid.UUID) error
}

type CreateProjectInput struct {
	Name        string
	Description string
	Settings    map[string]interface{}
}

type UpdateProjectInput struct {
	Description *string
	Settings    map[string]interface{}
}

type projectService struct {
	projectRepo repository.ProjectRepository
	orgRepo     repository.OrganizationRepository
}

func NewProjectService(projectRepo repository.ProjectRepository, orgRepo repository.OrganizationRepository) ProjectService {
	return &projectService{projectRepo: projectRepo, orgRepo: orgRepo}
}

var _ ProjectService = (*projectService)(nil)

func (s *projectService) requireAction(ctx context.Context, actorID, orgID uuid.UUID, action permissions.Action) error {
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

func (s *projectService) CreateProject(ctx context.Context, actorID, orgID uuid.UUID, input *CreateProjectInput) (*models.Project, error) {
	if err := s.requireAction(ctx, actorID, orgID, permissions.ActionProjectCreate); err != nil {
		return nil, err
	}

	var settings datatypes.JSON
	if input.Settings != nil {
		b, err := json.Marshal(input.Settings)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid settings json")
		}
		settings = datatypes.JSON(b)
	}

	p := &models.Project{
		OrgID:       orgID,
		Name:        input.Name,
		Description: input.Description,
		Settings:    settings,
	}
	if err := s.projectRepo.Create(ctx, p); err != nil {
		return nil, err
	}

	logger.L().Info("project created", zap.String("project_id", p.ID.String()), zap.String("org_id", orgID.String()))
	return p, nil
}

func (s *projectService) GetProject(ctx context.Context, actorID, projectID uuid.UUID) (*models.Project, error) {
	var p models.Project
	if err := s.projectRepo.GetByID(ctx, projectID, &p); err != nil {
		return nil, err
	}
	if _, err := s.orgRepo.EffectiveRole(ctx, p.OrgID, actorID); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.New(appErr.CodeForbidden, "caller has no role in organization")
		}
		return nil, err
	}
	return &p, nil
}

func (s *projectService) ListProjects(ctx context.Context, actorID, orgID uuid.UUID) ([]models.Project, error) {
	if _, err := s.orgRepo.EffectiveRole(ctx, orgID, actorID); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.New(appErr.CodeForbidden, "caller has no role in organization")
		}
		return nil, err
	}
	return s.projectRepo.ListByOrg(ctx, orgID)
}

func (s *projectService) UpdateProject(ctx context.Context, actorID, projectID uuid.UUID, input *UpdateProjectInput) (*models.Project, error) {
	var p models.Project
	if err := s.projectRepo.GetByID(ctx, projectID, &p); err != nil {
		return nil, err
	}
	if err := s.requireAction(ctx, actorID, p.OrgID, permissions.ActionProjectEdit); err != nil {
		return nil, err
	}

	if input.Description != nil {
		p.Description = *input.Description
	}
	if input.Settings != nil {
		b, err := json.Marshal(input.Settings)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid settings json")
		}
		p.Settings = datatypes.JSON(b)
	}

	if err := s.projectRepo.Update(ctx, &p); err != nil {
		return nil, err
	}
	logger.L().Info("project updated", zap.String("project_id", projectID.String()))
	return &p, nil
}

func (s *projectService) ArchiveProject(ctx context.Context, actorID, projectID uuid.UUID) error {
	var p models.Project
	if err := s.projectRepo.GetByID(ctx, projectID, &p); err != nil {
		return err
	}
	if err := s.requireAction(ctx, actorID, p.OrgID, permissions.ActionProjectEdit); err != nil {
		return err
	}
	return s.projectRepo.Archive(ctx, projectID)
}

func (s *projectService) DeleteProject(ctx context.Context, actorID, projectID uuid.UUID) error {
	var p models.Project
	if err := s.projectRepo.GetByID(ctx, projectID, &p); err != nil {
		return err
	}
	if err := s.requireAction(ctx, actorID, p.OrgID, permissions.ActionProjectDelete); err != nil {
		return err
	}
	if err := s.projectRepo.Delete(ctx, projectID); err != nil {
		return err
	}
	logger.L().Info("project deleted", zap.String("project_id", projectID.String()))
	return nil
}
