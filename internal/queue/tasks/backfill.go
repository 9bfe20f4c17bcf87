package tasks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/trackio/engine/internal/models"
	"github.com/trackio/engine/internal/repository"
	"github.com/trackio/engine/internal/services"
	appErr "github.com/trackio/engine/pkg/errors"
	"github.com/trackio/engine/pkg/logger"
	"go.uber.org/zap"
)

// BackfillTaskHandler runs slug backfill for projects in the background.
// The actor recorded for the run is the organization owner, since queued
// backfills are an administrative operation.
type BackfillTaskHandler struct {
	stories     services.StoryService
	projectRepo repository.ProjectRepository
	orgRepo     repository.OrganizationRepository
}

func NewBackfillTaskHandler(stories services.StoryService, projectRepo repository.ProjectRepository, orgRepo repository.OrganizationRepository) *BackfillTaskHandler {
	return &BackfillTaskHandler{stories: stories, projectRepo: projectRepo, orgRepo: orgRepo}
}

func (h *BackfillTaskHandler) HandleBackfill(ctx context.Context, t *asynq.Task) error {
	var p services.BackfillPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid backfill task payload", zap.Error(err))
		return err
	}
	projectID, err := uuid.Parse(p.ProjectID)
	if err != nil {
		logger.L().Error("invalid project id in task", zap.Error(err))
		return err
	}

	logger.L().Info("handling backfill task", zap.String("project_id", projectID.String()))

	var project models.Project
	if err := h.projectRepo.GetByID(ctx, projectID, &project); err != nil {
		logger.L().Error("get project failed", zap.Error(err))
		return err
	}
	var org models.Organization
	if err := h.orgRepo.GetByID(ctx, project.OrgID, &org); err != nil {
		logger.L().Error("get organization failed", zap.Error(err))
		return err
	}

	res, err := h.stories.BackfillSlugs(ctx, org.OwnerID, projectID)
	if err != nil {
		// Conflicts mean a live allocation raced the backfill; let asynq
		// retry the task.
		if appErr.IsCode(err, appErr.CodeConflict) {
			logger.L().Warn("backfill raced live allocation, retrying", zap.String("project_id", projectID.String()))
			return err
		}
		logger.L().Error("backfill failed", zap.Error(err))
		return err
	}

	logger.L().Info("backfill task completed",
		zap.String("project_id", projectID.String()),
		zap.Int("assigned", res.AssignedCount),
		zap.Int64("final_counter", res.FinalCounter),
	)
	return nil
}
