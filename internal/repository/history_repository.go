package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/trackio/engine/internal/models"
	appErr "github.com/trackio/engine/pkg/errors"
	"gorm.io/gorm"
)

type HistoryRepository interface {
	Append(ctx context.Context, entries ...models.StoryHistory) error
	ListByStory(ctx context.Context, storyID uuid.UUID) ([]models.StoryHistory, error)
	DeleteByStory(ctx context.Context, storyID uuid.UUID) error
}

type historyRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) Append(ctx context.Context, entries ...models.StoryHistory) error {
	if len(entries) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&entries).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "append story history failed")
	}
	return nil
}

func (r *historyRepository) ListByStory(ctx context.Context, storyID uuid.UUID) ([]models.StoryHistory, error) {
	var out []models.StoryHistory
	if err := r.db.WithContext(ctx).Where("story_id = ?", storyID).Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list story history failed")
	}
	return out, nil
}

func (r *historyRepository) DeleteByStory(ctx context.Context, storyID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("story_id = ?", storyID).Delete(&models.StoryHistory{}).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "delete story history failed")
	}
	return nil
}
