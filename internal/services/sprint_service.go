package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/trackio/engine/internal/models"
	"github.com/trackio/engine/internal/permissions"
	"github.com/trackio/engine/internal/repository"
	appErr "github.com/trackio/engine/pkg/errors"
)

type SprintService interface {
	CreateSprint(ctx context.Context, actorID, projectID uuid.UUID, input *SprintInput) (*models.Sprint, error)
	ListSprints(ctx context.Context, actorID, projectID uuid.UUID) ([]models.Sprint, error)
	UpdateSprint(ctx context.Context, actorID, sprintID uuid.UUID, input *SprintInput) (*models.Sprint, error)
	DeleteSprint(ctx context.Context, actorID, sprintID uuid.UUID) error
}

type SprintInput struct {
	Name     string
	Goal     string
	StartsAt *time.Time
	EndsAt   *time.Time
}

type sprintService struct {
	sprintRepo  repository.SprintRepository
	projectRepo repository.ProjectRepository
	orgRepo     repository.OrganizationRepository
}

func NewSprintService(sprintRepo repository.SprintRepository, projectRepo repository.ProjectRepository, orgRepo repository.OrganizationRepository) SprintService {
	return &sprintService{sprintRepo: sprintRepo, projectRepo: projectRepo, orgRepo: orgRepo}
}

var _ SprintService = (*sprintService)(nil)

func (s *sprintService) requireAction(ctx context.Context, actorID, projectID uuid.UUID, action permissions.Action) (*models.Project, error) {
	var p models.Project
	if err := s.projectRepo.GetByID(ctx, projectID, &p); err != nil {
		return nil, err
	}
	role, err := s.orgRepo.EffectiveRole(ctx, p.OrgID, actorID)
	if err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.New(appErr.CodeForbidden, "caller has no role in organization")
		}
		return nil, err
	}
	if !permissions.Can(role, action) {
		return nil, appErr.New(appErr.CodeForbidden, "insufficient role")
	}
	return &p, nil
}

func (s *sprintService) CreateSprint(ctx context.Context, actorID, projectID uuid.UUID, input *SprintInput) (*models.Sprint, error) {
	if _, err := s.requireAction(ctx, actorID, projectID, permissions.ActionSprintCreate); err != nil {
		return nil, err
	}
	sp := &models.Sprint{
		ProjectID: projectID,
		Name:      input.Name,
		Goal:      input.Goal,
		StartsAt:  input.StartsAt,
		EndsAt:    input.EndsAt,
	}
	if err := s.sprintRepo.Create(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *sprintService) ListSprints(ctx context.Context, actorID, projectID uuid.UUID) ([]models.Sprint, error) {
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
	return s.sprintRepo.ListByProject(ctx, projectID)
}

func (s *sprintService) UpdateSprint(ctx context.Context, actorID, sprintID uuid.UUID, input *SprintInput) (*models.Sprint, error) {
	var sp models.Sprint
	if err := s.sprintRepo.GetByID(ctx, sprintID, &sp); err != nil {
		return nil, err
	}
	if _, err := s.requireAction(ctx, actorID, sp.ProjectID, permissions.ActionSprintEdit); err != nil {
		return nil, err
	}
	if input.Name != "" {
		sp.Name = input.Name
	}
	sp.Goal = input.Goal
	if input.StartsAt != nil {
		sp.StartsAt = input.StartsAt
	}
	if input.EndsAt != nil {
		sp.EndsAt = input.EndsAt
	}
	if err := s.sprintRepo.Update(ctx, &sp); err != nil {
		return nil, err
	}
	return &sp, nil
}

func (s *sprintService) DeleteSprint(ctx context.Context, actorID, sprintID uuid.UUID) error {
	var sp models.Sprint
	if err := s.sprintRepo.GetByID(ctx, sprintID, &sp); err != nil {
		return err
	}
	if _, err := s.requireAction(ctx, actorID, sp.ProjectID, permissions.ActionSprintDelete); err != nil {
		return err
	}
	return s.sprintRepo.Delete(ctx, sprintID)
}
