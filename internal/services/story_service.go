package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/trackio/engine/internal/models"
	"github.com/trackio/engine/internal/permissions"
	"github.com/trackio/engine/internal/repository"
	appErr "github.com/trackio/engine/pkg/errors"
	"github.com/trackio/engine/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SlugPrefix is the fixed human-readable story identifier prefix.
// Assigned slugs have the form TK-1, TK-2, ... per project.
const SlugPrefix = "TK"

// TypeStoryBackfill is the asynq task type for asynchronous slug backfill.
const TypeStoryBackfill = "story:backfill_slugs"

// BackfillPayload is the asynq payload for TypeStoryBackfill tasks.
type BackfillPayload struct {
	ProjectID string `json:"project_id"`
}

type StoryService interface {
	CreateStory(ctx context.Context, actorID, projectID uuid.UUID, input *CreateStoryInput) (*models.Story, error)
	GetStory(ctx context.Context, actorID, storyID uuid.UUID) (*models.Story, error)
	ListBoard(ctx context.Context, actorID, projectID uuid.UUID) ([]models.Story, error)
	UpdateStory(ctx context.Context, actorID, storyID uuid.UUID, input *UpdateStoryInput) (*models.Story, error)
	ArchiveStory(ctx context.Context, actorID, storyID uuid.UUID) error
	DeleteStory(ctx context.Context, actorID, storyID uuid.UUID) error
	StoryHistory(ctx context.Context, actorID, storyID uuid.UUID) ([]models.StoryHistory, error)

	// AllocateSlug assigns the next sequential slug to a slug-less story.
	// The counter increment and the slug write commit or roll back as one
	// unit. Already-slugged stories report CodeAlreadyExists and leave the
	// counter untouched.
	AllocateSlug(ctx context.Context, actorID, projectID, storyID uuid.UUID) (*AllocatedSlug, error)

	// BackfillSlugs assigns slugs to every slug-less story of a project in
	// creation order, persisting the final counter once. Safe to re-run.
	BackfillSlugs(ctx context.Context, actorID, projectID uuid.UUID) (*BackfillResult, error)

	// EnqueueBackfill schedules BackfillSlugs as a background task.
	EnqueueBackfill(ctx context.Context, actorID, projectID uuid.UUID) error

	// ReorderStories applies a complete board arrangement for the affected
	// stories in one transaction: every tuple is written or none are.
	ReorderStories(ctx context.Context, actorID, projectID uuid.UUID, items []ReorderItem) error
}

type CreateStoryInput struct {
	Title       string
	Description string
	SprintID    *uuid.UUID
	AssigneeID  *uuid.UUID
	Status      models.StoryStatus
	Position    float64
	Labels      []string
}

type UpdateStoryInput struct {
	Title       *string
	Description *string
	Status      *models.StoryStatus
	SprintID    *uuid.UUID
	AssigneeID  *uuid.UUID
}

type AllocatedSlug struct {
	Slug    string `json:"slug"`
	Counter int64  `json:"counter"`
}

type BackfillResult struct {
	AssignedCount int   `json:"assigned_count"`
	FinalCounter  int64 `json:"final_counter"`
}

// ReorderItem is one tuple of the caller-proposed board arrangement.
type ReorderItem struct {
	StoryID  uuid.UUID          `json:"story_id"`
	Status   models.StoryStatus `json:"status"`
	Position float64            `json:"position"`
}

type storyService struct {
	db          *gorm.DB
	storyRepo   repository.StoryRepository
	projectRepo repository.ProjectRepository
	orgRepo     repository.OrganizationRepository
	historyRepo repository.HistoryRepository
	queue       *asynq.Client
}

// NewStoryService constructs the story service. queue may be nil when the
// caller has no background worker (EnqueueBackfill then reports unavailable).
func NewStoryService(db *gorm.DB, storyRepo repository.StoryRepository, projectRepo repository.ProjectRepository, orgRepo repository.OrganizationRepository, historyRepo repository.HistoryRepository, queue *asynq.Client) StoryService {
	return &storyService{db: db, storyRepo: storyRepo, projectRepo: projectRepo, orgRepo: orgRepo, historyRepo: historyRepo, queue: queue}
}

var _ StoryService = (*storyService)(nil)

// authorize resolves the actor's effective role in the project's org and
// checks it against the capability table.
func (s *storyService) authorize(ctx context.Context, actorID uuid.UUID, project *models.Project, action permissions.Action) error {
	role, err := s.orgRepo.EffectiveRole(ctx, project.OrgID, actorID)
	if err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return appErr.New(appErr.CodeForbidden, "caller has no role in organization")
		}
		return err
	}
	if !permissions.Can(role, action) {
		return appErr.New(appErr.CodeForbidden, fmt.Sprintf("role %s may not %s", role, action))
	}
	return nil
}

func (s *storyService) loadProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	var p models.Project
	if err := s.projectRepo.GetByID(ctx, projectID, &p); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.New(appErr.CodeNotFound, "project not found")
		}
		return nil, err
	}
	return &p, nil
}

func (s *storyService) loadStoryProject(ctx context.Context, storyID uuid.UUID) (*models.Story, *models.Project, error) {
	var st models.Story
	if err := s.storyRepo.GetByID(ctx, storyID, &st); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, nil, appErr.New(appErr.CodeNotFound, "story not found")
		}
		return nil, nil, err
	}
	p, err := s.loadProject(ctx, st.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return &st, p, nil
}

func (s *storyService) CreateStory(ctx context.Context, actorID, projectID uuid.UUID, input *CreateStoryInput) (*models.Story, error) {
	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, p, permissions.ActionStoryCreate); err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = models.StatusTodo
	}
	if !status.Valid() {
		return nil, appErr.New(appErr.CodeInvalid, fmt.Sprintf("unknown status %q", status))
	}

	st := &models.Story{
		ProjectID:   projectID,
		SprintID:    input.SprintID,
		Title:       input.Title,
		Description: input.Description,
		Status:      status,
		Position:    input.Position,
		AssigneeID:  input.AssigneeID,
	}
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	if len(input.Labels) > 0 {
		b, err := json.Marshal(input.Labels)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid labels")
		}
		st.Labels = datatypes.JSON(b)
	}

	// The insert and the slug allocation share one transaction: a story is
	// never left persisted without a slug outside the backfill window.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(st).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "create story failed")
		}
		alloc, err := allocateSlugTx(tx, projectID, st.ID)
		if err != nil {
			return err
		}
		st.Slug = &alloc.Slug
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.L().Info("story created",
		zap.String("story_id", st.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.Stringp("slug", st.Slug),
	)
	return st, nil
}

// allocateSlugTx performs the atomic increment-and-read against the project
// counter and writes the resulting slug onto the story. Must run inside a
// transaction; any returned error requires the caller to roll back so the
// counter and the slug move together or not at all.
//
// The counter update is the first statement on purpose: it serializes
// concurrent allocations for the same project on the project row while
// allocations for other projects proceed independently.
func allocateSlugTx(tx *gorm.DB, projectID, storyID uuid.UUID) (*AllocatedSlug, error) {
	var counter int64
	res := tx.Raw(
		`UPDATE projects
		    SET story_counter = story_counter + 1, updated_at = CURRENT_TIMESTAMP
		  WHERE id = ? AND deleted_at IS NULL
		  RETURNING story_counter`,
		projectID,
	).Scan(&counter)
	if res.Error != nil {
		return nil, appErr.Wrap(res.Error, appErr.CodeInternal, "increment story counter failed")
	}
	if res.RowsAffected == 0 {
		return nil, appErr.New(appErr.CodeNotFound, "project not found")
	}

	slug := fmt.Sprintf("%s-%d", SlugPrefix, counter)
	upd := tx.Model(&models.Story{}).
		Where("id = ? AND project_id = ? AND slug IS NULL", storyID, projectID).
		Update("slug", slug)
	if upd.Error != nil {
		return nil, appErr.Wrap(upd.Error, appErr.CodeInternal, "write story slug failed")
	}
	if upd.RowsAffected == 0 {
		var st models.Story
		if err := tx.First(&st, "id = ? AND project_id = ?", storyID, projectID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, appErr.New(appErr.CodeNotFound, "story not found in project")
			}
			return nil, appErr.Wrap(err, appErr.CodeInternal, "load story failed")
		}
		// Slug already present: idempotent no-op, rollback undoes the
		// counter increment.
		existing := ""
		if st.Slug != nil {
			existing = *st.Slug
		}
		return nil, appErr.New(appErr.CodeAlreadyExists, "slug already assigned").WithMeta("slug", existing)
	}

	return &AllocatedSlug{Slug: slug, Counter: counter}, nil
}

func (s *storyService) AllocateSlug(ctx context.Context, actorID, projectID, storyID uuid.UUID) (*AllocatedSlug, error) {
	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, p, permissions.ActionStoryEdit); err != nil {
		return nil, err
	}

	var alloc *AllocatedSlug
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		alloc, txErr = allocateSlugTx(tx, projectID, storyID)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	logger.L().Info("slug allocated",
		zap.String("project_id", projectID.String()),
		zap.String("story_id", storyID.String()),
		zap.String("slug", alloc.Slug),
	)
	return alloc, nil
}

func (s *storyService) BackfillSlugs(ctx context.Context, actorID, projectID uuid.UUID) (*BackfillResult, error) {
	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, p, permissions.ActionStoryEdit); err != nil {
		return nil, err
	}

	var out BackfillResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var start int64
		if err := tx.Model(&models.Project{}).Where("id = ?", projectID).
			Select("story_counter").Scan(&start).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "read story counter failed")
		}

		var pending []models.Story
		if err := tx.Where("project_id = ? AND slug IS NULL", projectID).
			Order("created_at ASC, id ASC").Find(&pending).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "list slug-less stories failed")
		}

		next := start
		for i := range pending {
			next++
			slug := fmt.Sprintf("%s-%d", SlugPrefix, next)
			upd := tx.Model(&models.Story{}).
				Where("id = ? AND slug IS NULL", pending[i].ID).
				Update("slug", slug)
			if upd.Error != nil {
				return appErr.Wrap(upd.Error, appErr.CodeInternal, "backfill slug write failed")
			}
			if upd.RowsAffected == 0 {
				// Someone slugged this story since our read.
				return appErr.New(appErr.CodeConflict, "story slugged concurrently, retry backfill")
			}
		}

		if next != start {
			// Compare-and-swap guard: a live allocation that raced us moved
			// the counter, in which case our numbering is stale.
			upd := tx.Model(&models.Project{}).
				Where("id = ? AND story_counter = ?", projectID, start).
				Update("story_counter", next)
			if upd.Error != nil {
				return appErr.Wrap(upd.Error, appErr.CodeInternal, "persist story counter failed")
			}
			if upd.RowsAffected == 0 {
				return appErr.New(appErr.CodeConflict, "story counter moved concurrently, retry backfill")
			}
		}

		out = BackfillResult{AssignedCount: len(pending), FinalCounter: next}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.L().Info("slug backfill completed",
		zap.String("project_id", projectID.String()),
		zap.Int("assigned", out.AssignedCount),
		zap.Int64("final_counter", out.FinalCounter),
	)
	return &out, nil
}

func (s *storyService) EnqueueBackfill(ctx context.Context, actorID, projectID uuid.UUID) error {
	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actorID, p, permissions.ActionStoryEdit); err != nil {
		return err
	}
	if s.queue == nil {
		return appErr.New(appErr.CodeUnavailable, "task queue not configured")
	}

	payload, err := json.Marshal(BackfillPayload{ProjectID: projectID.String()})
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "marshal backfill payload failed")
	}
	if _, err := s.queue.EnqueueContext(ctx, asynq.NewTask(TypeStoryBackfill, payload)); err != nil {
		return appErr.Wrap(err, appErr.CodeUnavailable, "enqueue backfill task failed")
	}
	logger.L().Info("backfill task enqueued", zap.String("project_id", projectID.String()))
	return nil
}

func (s *storyService) ReorderStories(ctx context.Context, actorID, projectID uuid.UUID, items []ReorderItem) error {
	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actorID, p, permissions.ActionStoryReorder); err != nil {
		return err
	}

	if len(items) == 0 {
		return appErr.New(appErr.CodeInvalid, "empty reorder batch")
	}
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		if !it.Status.Valid() {
			return appErr.New(appErr.CodeInvalid, fmt.Sprintf("unknown status %q", it.Status))
		}
		if _, dup := seen[it.StoryID]; dup {
			return appErr.New(appErr.CodeMismatch, "duplicate story id in batch").WithMeta("story_id", it.StoryID.String())
		}
		seen[it.StoryID] = struct{}{}
		ids = append(ids, it.StoryID)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.Story
		if err := tx.Where("id IN ? AND project_id = ?", ids, projectID).Find(&existing).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "load reorder batch failed")
		}
		if len(existing) != len(items) {
			return appErr.New(appErr.CodeMismatch, "batch references stories outside the project").
				WithMeta("expected", len(items)).WithMeta("found", len(existing))
		}
		for i := range existing {
			if existing[i].Archived {
				return appErr.New(appErr.CodeMismatch, "batch references an archived story").
					WithMeta("story_id", existing[i].ID.String())
			}
		}

		for _, it := range items {
			upd := tx.Model(&models.Story{}).
				Where("id = ? AND project_id = ?", it.StoryID, projectID).
				Updates(map[string]any{"status": it.Status, "position": it.Position})
			if upd.Error != nil {
				return appErr.Wrap(upd.Error, appErr.CodeInternal, "apply reorder failed")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.L().Info("board reordered",
		zap.String("project_id", projectID.String()),
		zap.Int("stories", len(items)),
	)
	return nil
}

func (s *storyService) GetStory(ctx context.Context, actorID, storyID uuid.UUID) (*models.Story, error) {
	st, p, err := s.loadStoryProject(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if _, err := s.orgRepo.EffectiveRole(ctx, p.OrgID, actorID); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.New(appErr.CodeForbidden, "caller has no role in organization")
		}
		return nil, err
	}
	return st, nil
}

func (s *storyService) ListBoard(ctx context.Context, actorID, projectID uuid.UUID) ([]models.Story, error) {
	p, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.orgRepo.EffectiveRole(ctx, p.OrgID, actorID); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.New(appErr.CodeForbidden, "caller has no role in organization")
		}
		return nil, err
	}
	return s.storyRepo.ListBoard(ctx, projectID)
}

func (s *storyService) UpdateStory(ctx context.Context, actorID, storyID uuid.UUID, input *UpdateStoryInput) (*models.Story, error) {
	st, p, err := s.loadStoryProject(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, p, permissions.ActionStoryEdit); err != nil {
		return nil, err
	}

	var history []models.StoryHistory
	record := func(field, oldV, newV string) {
		if oldV == newV {
			return
		}
		history = append(history, models.StoryHistory{
			StoryID: st.ID, Field: field, OldValue: oldV, NewValue: newV, ActorID: actorID,
		})
	}

	if input.Title != nil {
		record("title", st.Title, *input.Title)
		st.Title = *input.Title
	}
	if input.Description != nil {
		record("description", st.Description, *input.Description)
		st.Description = *input.Description
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, appErr.New(appErr.CodeInvalid, fmt.Sprintf("unknown status %q", *input.Status))
		}
		record("status", string(st.Status), string(*input.Status))
		st.Status = *input.Status
	}
	if input.SprintID != nil {
		record("sprint_id", uuidPtrString(st.SprintID), input.SprintID.String())
		st.SprintID = input.SprintID
	}
	if input.AssigneeID != nil {
		record("assignee_id", uuidPtrString(st.AssigneeID), input.AssigneeID.String())
		st.AssigneeID = input.AssigneeID
	}

	if len(history) == 0 {
		return st, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(st).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "update story failed")
		}
		if err := tx.Create(&history).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "append story history failed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *storyService) ArchiveStory(ctx context.Context, actorID, storyID uuid.UUID) error {
	st, p, err := s.loadStoryProject(ctx, storyID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actorID, p, permissions.ActionStoryEdit); err != nil {
		return err
	}
	if st.Archived {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Story{}).Where("id = ?", storyID).Update("archived", true)
		if res.Error != nil {
			return appErr.Wrap(res.Error, appErr.CodeInternal, "archive story failed")
		}
		entry := models.StoryHistory{
			StoryID: storyID, Field: "archived", OldValue: "false", NewValue: "true", ActorID: actorID,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "append story history failed")
		}
		return nil
	})
}

func (s *storyService) DeleteStory(ctx context.Context, actorID, storyID uuid.UUID) error {
	_, p, err := s.loadStoryProject(ctx, storyID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actorID, p, permissions.ActionStoryDelete); err != nil {
		return err
	}
	// History lives and dies with the story row.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("story_id = ?", storyID).Delete(&models.StoryHistory{}).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "delete story history failed")
		}
		res := tx.Delete(&models.Story{}, "id = ?", storyID)
		if res.Error != nil {
			return appErr.Wrap(res.Error, appErr.CodeInternal, "delete story failed")
		}
		if res.RowsAffected == 0 {
			return appErr.New(appErr.CodeNotFound, "story not found")
		}
		return nil
	})
}

func (s *storyService) StoryHistory(ctx context.Context, actorID, storyID uuid.UUID) ([]models.StoryHistory, error) {
	_, p, err := s.loadStoryProject(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if _, err := s.orgRepo.EffectiveRole(ctx, p.OrgID, actorID); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.New(appErr.CodeForbidden, "caller has no role in organization")
		}
		return nil, err
	}
	return s.historyRepo.ListByStory(ctx, storyID)
}

func uuidPtrString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
