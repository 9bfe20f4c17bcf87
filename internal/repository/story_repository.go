package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/trackio/engine/internal/models"
	appErr "github.com/trackio/engine/pkg/errors"
	"gorm.io/gorm"
)

type StoryRepository interface {
	BaseRepository[models.Story]
	// ListBoard returns active stories ordered for board rendering:
	// status lane first, then position, with id as a stable tiebreak.
	ListBoard(ctx context.Context, projectID uuid.UUID) ([]models.Story, error)
	ListByProject(ctx context.Context, projectID uuid.UUID, includeArchived bool) ([]models.Story, error)
	Archive(ctx context.Context, storyID uuid.UUID) error
}

type storyRepository struct {
	BaseRepository[models.Story]
	db *gorm.DB
}

func NewStoryRepository(db *gorm.DB) StoryRepository {
	return &storyRepository{BaseRepository: NewBaseRepository[models.Story](db), db: db}
}

func (r *storyRepository) ListBoard(ctx context.Context, projectID uuid.UUID) ([]models.Story, error) {
	var out []models.Story
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND archived = false", projectID).
		Order("status ASC, position ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list board failed")
	}
	return out, nil
}

func (r *storyRepository) ListByProject(ctx context.Context, projectID uuid.UUID, includeArchived bool) ([]models.Story, error) {
	q := r.db.WithContext(ctx).Where("project_id = ?", projectID)
	if !includeArchived {
		q = q.Where("archived = false")
	}
	var out []models.Story
	if err := q.Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list stories by project failed")
	}
	return out, nil
}

func (r *storyRepository) Archive(ctx context.Context, storyID uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.Story{}).Where("id = ?", storyID).Update("archived", true)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "archive story failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "story not found")
	}
	return nil
}
