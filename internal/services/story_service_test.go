package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/trackio/engine/internal/models"
	"github.com/trackio/engine/internal/permissions"
	"github.com/trackio/engine/internal/repository"
	appErr "github.com/trackio/engine/pkg/errors"
	"github.com/trackio/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "console"); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "trackio.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Organization{},
		&models.Membership{},
		&models.Project{},
		&models.Sprint{},
		&models.Story{},
		&models.StoryHistory{},
	))
	return db
}

type storyFixture struct {
	db        *gorm.DB
	svc       StoryService
	owner     uuid.UUID
	orgID     uuid.UUID
	projectID uuid.UUID
}

func newStoryFixture(t *testing.T) *storyFixture {
	t.Helper()
	db := newTestDB(t)

	owner := &models.User{Email: "owner@example.com", Name: "Owner", PasswordHash: "x"}
	require.NoError(t, db.Create(owner).Error)

	org := &models.Organization{Name: "Acme", OwnerID: owner.ID}
	require.NoError(t, db.Create(org).Error)

	project := &models.Project{OrgID: org.ID, Name: "Launch Board"}
	require.NoError(t, db.Create(project).Error)

	svc := NewStoryService(
		db,
		repository.NewStoryRepository(db),
		repository.NewProjectRepository(db),
		repository.NewOrganizationRepository(db),
		repository.NewHistoryRepository(db),
		nil,
	)
	return &storyFixture{db: db, svc: svc, owner: owner.ID, orgID: org.ID, projectID: project.ID}
}

// addMember creates a user and enrolls them in the fixture org with role.
func (f *storyFixture) addMember(t *testing.T, role permissions.Role) uuid.UUID {
	t.Helper()
	u := &models.User{Email: fmt.Sprintf("%s-%s@example.com", role, uuid.NewString()[:8]), Name: string(role), PasswordHash: "x"}
	require.NoError(t, f.db.Create(u).Error)
	require.NoError(t, f.db.Create(&models.Membership{OrgID: f.orgID, UserID: u.ID, Role: role}).Error)
	return u.ID
}

// seedStory inserts a slug-less story directly, bypassing the service so
// tests control status, position, and creation time.
func (f *storyFixture) seedStory(t *testing.T, title string, status models.StoryStatus, pos float64, age time.Duration) *models.Story {
	t.Helper()
	st := &models.Story{
		ID:        uuid.New(),
		ProjectID: f.projectID,
		Title:     title,
		Status:    status,
		Position:  pos,
		CreatedAt: time.Now().Add(-age),
	}
	require.NoError(t, f.db.Create(st).Error)
	return st
}

func (f *storyFixture) reloadStory(t *testing.T, id uuid.UUID) models.Story {
	t.Helper()
	var st models.Story
	require.NoError(t, f.db.First(&st, "id = ?", id).Error)
	return st
}

func (f *storyFixture) counter(t *testing.T) int64 {
	t.Helper()
	var p models.Project
	require.NoError(t, f.db.First(&p, "id = ?", f.projectID).Error)
	return p.StoryCounter
}

func requireCode(t *testing.T, err error, code appErr.Code) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, appErr.IsCode(err, code), "want code %s, got %v", code, err)
}

func TestCreateStoryAssignsSequentialSlugs(t *testing.T) {
	f := newStoryFixture(t)
	ctx := context.Background()

	for i, title := range []string{"first", "second", "third"} {
		st, err := f.svc.CreateStory(ctx, f.owner, f.projectID, &CreateStoryInput{Title: title})
		require.NoError(t, err)
		require.NotNil(t, st.Slug)
		assert.Equal(t, fmt.Sprintf("TK-%d", i+1), *st.Slug)
		assert.Equal(t, models.StatusTodo, st.Status)
	}
	assert.EqualValues(t, 3, f.counter(t))
}

func TestCreateStoryRejectsUnknownStatus(t *testing.T) {
	f := newStoryFixture(t)

	_, err := f.svc.CreateStory(context.Background(), f.owner, f.projectID, &CreateStoryInput{
		Title:  "bad",
		Status: "BLOCKED",
	})
	requireCode(t, err, appErr.CodeInvalid)
	assert.EqualValues(t, 0, f.counter(t))
}

func TestAllocateSlugIsIdempotent(t *testing.T) {
	f := newStoryFixture(t)
	ctx := context.Background()
	st := f.seedStory(t, "legacy", models.StatusTodo, 1, 0)

	alloc, err := f.svc.AllocateSlug(ctx, f.owner, f.projectID, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "TK-1", alloc.Slug)
	assert.EqualValues(t, 1, alloc.Counter)

	// Second call must not consume a number or overwrite the slug.
	_, err = f.svc.AllocateSlug(ctx, f.owner, f.projectID, st.ID)
	requireCode(t, err, appErr.CodeAlreadyExists)
	var ae *appErr.AppError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "TK-1", ae.Meta["slug"])

	got := f.reloadStory(t, st.ID)
	require.NotNil(t, got.Slug)
	assert.Equal(t, "TK-1", *got.Slug)
	assert.EqualValues(t, 1, f.counter(t))
}

func TestAllocateSlugUnknownProject(t *testing.T) {
	f := newStoryFixture(t)
	st := f.seedStory(t, "orphan", models.StatusTodo, 1, 0)

	_, err := f.svc.AllocateSlug(context.Background(), f.owner, uuid.New(), st.ID)
	requireCode(t, err, appErr.CodeNotFound)
	assert.EqualValues(t, 0, f.counter(t))
}

func TestAllocateSlugUnknownStoryRollsBackCounter(t *testing.T) {
	f := newStoryFixture(t)

	_, err := f.svc.AllocateSlug(context.Background(), f.owner, f.projectID, uuid.New())
	requireCode(t, err, appErr.CodeNotFound)
	// The increment and the failed slug write rolled back together.
	assert.EqualValues(t, 0, f.counter(t))
}

func TestAllocateSlugConcurrent(t *testing.T) {
	f := newStoryFixture(t)
	ctx := context.Background()

	const workers = 8
	stories := make([]*models.Story, workers)
	for i := range stories {
		stories[i] = f.seedStory(t, fmt.Sprintf("story-%d", i), models.StatusTodo, float64(i), 0)
	}

	var wg sync.WaitGroup
	slugs := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			alloc, err := f.svc.AllocateSlug(ctx, f.owner, f.projectID, stories[i].ID)
			if err != nil {
				errs[i] = err
				return
			}
			slugs[i] = alloc.Slug
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, workers)
	for i := 0; i < workers; i++ {
		require.NoErrorf(t, errs[i], "worker %d", i)
		require.Falsef(t, seen[slugs[i]], "slug %s assigned twice", slugs[i])
		seen[slugs[i]] = true
	}
	for n := 1; n <= workers; n++ {
		assert.Truef(t, seen[fmt.Sprintf("TK-%d", n)], "missing TK-%d", n)
	}
	assert.EqualValues(t, workers, f.counter(t))
}

func TestBackfillAssignsInCreationOrder(t *testing.T) {
	f := newStoryFixture(t)
	ctx := context.Background()

	// Two numbers already issued before the legacy rows are discovered.
	require.NoError(t, f.db.Model(&models.Project{}).
		Where("id = ?", f.projectID).Update("story_counter", 2).Error)

	oldest := f.seedStory(t, "oldest", models.StatusTodo, 1, 3*time.Hour)
	middle := f.seedStory(t, "middle", models.StatusInProgress, 1, 2*time.Hour)
	newest := f.seedStory(t, "newest", models.StatusDone, 1, time.Hour)

	res, err := f.svc.BackfillSlugs(ctx, f.owner, f.projectID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.AssignedCount)
	assert.EqualValues(t, 5, res.FinalCounter)

	assert.Equal(t, "TK-3", *f.reloadStory(t, oldest.ID).Slug)
	assert.Equal(t, "TK-4", *f.reloadStory(t, middle.ID).Slug)
	assert.Equal(t, "TK-5", *f.reloadStory(t, newest.ID).Slug)
	assert.EqualValues(t, 5, f.counter(t))

	// Re-running finds nothing to do and moves nothing.
	res, err = f.svc.BackfillSlugs(ctx, f.owner, f.projectID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.AssignedCount)
	assert.EqualValues(t, 5, res.FinalCounter)
	assert.EqualValues(t, 5, f.counter(t))
}

func TestBackfillThenAllocateContinuesSequence(t *testing.T) {
	f := newStoryFixture(t)
	ctx := context.Background()

	f.seedStory(t, "legacy", models.StatusTodo, 1, time.Hour)
	res, err := f.svc.BackfillSlugs(ctx, f.owner, f.projectID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.FinalCounter)

	st, err := f.svc.CreateStory(ctx, f.owner, f.projectID, &CreateStoryInput{Title: "live"})
	require.NoError(t, err)
	assert.Equal(t, "TK-2", *st.Slug)
}

func TestReorderMovesStoriesAcrossLanes(t *testing.T) {
	f := newStoryFixture(t)
	ctx := context.Background()

	a := f.seedStory(t, "a", models.StatusTodo, 1, 0)
	b := f.seedStory(t, "b", models.StatusInProgress, 1, 0)
	c := f.seedStory(t, "c", models.StatusTodo, 2, 0)

	err := f.svc.ReorderStories(ctx, f.owner, f.projectID, []ReorderItem{
		{StoryID: a.ID, Status: models.StatusDone, Position: 1},
		{StoryID: b.ID, Status: models.StatusDone, Position: 2},
	})
	require.NoError(t, err)

	gotA := f.reloadStory(t, a.ID)
	assert.Equal(t, models.StatusDone, gotA.Status)
	assert.Equal(t, 1.0, gotA.Position)

	gotB := f.reloadStory(t, b.ID)
	assert.Equal(t, models.StatusDone, gotB.Status)
	assert.Equal(t, 2.0, gotB.Position)

	// Stories outside the batch keep their lane and position.
	gotC := f.reloadStory(t, c.ID)
	assert.Equal(t, models.StatusTodo, gotC.Status)
	assert.Equal(t, 2.0, gotC.Position)
}

func TestReorderIdentityIsANoop(t *testing.T) {
	f := newStoryFixture(t)
	ctx := context.Background()

	a := f.seedStory(t, "a", models.StatusTodo, 1, 0)
	b := f.seedStory(t, "b", models.StatusInProgress, 2, 0)

	// Submitting the current arrangement leaves every row as it was.
	err := f.svc.ReorderStories(ctx, f.owner, f.projectID, []ReorderItem{
		{StoryID: a.ID, Status: a.Status, Position: a.Position},
		{StoryID: b.ID, Status: b.Status, Position: b.Position},
	})
	require.NoError(t, err)

	gotA := f.reloadStory(t, a.ID)
	assert.Equal(t, models.StatusTodo, gotA.Status)
	assert.Equal(t, 1.0, gotA.Position)
	gotB := f.reloadStory(t, b.ID)
	assert.Equal(t, models.StatusInProgress, gotB.Status)
	assert.Equal(t, 2.0, gotB.Position)
}

func TestReorderRejectsForeignStoryAtomically(t *testing.T) {
	f := newStoryFixture(t)
	ctx := context.Background()

	a := f.seedStory(t, "a", models.StatusTodo, 1, 0)

	other := &models.Project{OrgID: f.orgID, Name: "Other Board"}
	require.NoError(t, f.db.Create(other).Error)
	foreign := &models.Story{ID: uuid.New(), ProjectID: other.ID, Title: "foreign", Status: models.StatusTodo, Position: 1}
	require.NoError(t, f.db.Create(foreign).Error)

	err := f.svc.ReorderStories(ctx, f.owner, f.projectID, []ReorderItem{
		{StoryID: a.ID, Status: models.StatusDone, Position: 1},
		{StoryID: foreign.ID, Status: models.StatusDone, Position: 2},
	})
	requireCode(t, err, appErr.CodeMismatch)

	// The valid tuple was not applied either.
	gotA := f.reloadStory(t, a.ID)
	assert.Equal(t, models.StatusTodo, gotA.Status)
	assert.Equal(t, 1.0, gotA.Position)

	gotF := f.reloadStory(t, foreign.ID)
	assert.Equal(t, models.StatusTodo, gotF.Status)
}

func TestReorderRejectsDuplicateStoryIDs(t *testing.T) {
	f := newStoryFixture(t)
	a := f.seedStory(t, "a", models.StatusTodo, 1, 0)

	err := f.svc.ReorderStories(context.Background(), f.owner, f.projectID, []ReorderItem{
		{StoryID: a.ID, Status: models.StatusTodo, Position: 1},
		{StoryID: a.ID, Status: models.StatusDone, Position: 2},
	})
	requireCode(t, err, appErr.CodeMismatch)

	gotA := f.reloadStory(t, a.ID)
	assert.Equal(t, models.StatusTodo, gotA.Status)
}

func TestReorderRejectsArchivedStory(t *testing.T) {
	f := newStoryFixture(t)
	a := f.seedStory(t, "a", models.StatusTodo, 1, 0)
	archived := f.seedStory(t, "done-for", models.StatusDone, 1, 0)
	require.NoError(t, f.db.Model(&models.Story{}).
		Where("id = ?", archived.ID).Update("archived", true).Error)

	err := f.svc.ReorderStories(context.Background(), f.owner, f.projectID, []ReorderItem{
		{StoryID: a.ID, Status: models.StatusDone, Position: 1},
		{StoryID: archived.ID, Status: models.StatusTodo, Position: 2},
	})
	requireCode(t, err, appErr.CodeMismatch)
	assert.Equal(t, models.StatusTodo, f.reloadStory(t, a.ID).Status)
}

func TestReorderRejectsEmptyBatch(t *testing.T) {
	f := newStoryFixture(t)
	err := f.svc.ReorderStories(context.Background(), f.owner, f.projectID, nil)
	requireCode(t, err, appErr.CodeInvalid)
}

func TestReorderRejectsUnknownStatus(t *testing.T) {
	f := newStoryFixture(t)
	a := f.seedStory(t, "a", models.StatusTodo, 1, 0)

	err := f.svc.ReorderStories(context.Background(), f.owner, f.projectID, []ReorderItem{
		{StoryID: a.ID, Status: "PARKED", Position: 1},
	})
	requireCode(t, err, appErr.CodeInvalid)
}

func TestPermissionsOnStoryOperations(t *testing.T) {
	f := newStoryFixture(t)
	ctx := context.Background()

	viewer := f.addMember(t, permissions.RoleViewer)
	member := f.addMember(t, permissions.RoleMember)
	outsider := &models.User{Email: "outsider@example.com", Name: "Outsider", PasswordHash: "x"}
	require.NoError(t, f.db.Create(outsider).Error)

	a := f.seedStory(t, "a", models.StatusTodo, 1, 0)

	// Viewers read but never write.
	_, err := f.svc.ListBoard(ctx, viewer, f.projectID)
	require.NoError(t, err)
	_, err = f.svc.CreateStory(ctx, viewer, f.projectID, &CreateStoryInput{Title: "nope"})
	requireCode(t, err, appErr.CodeForbidden)
	err = f.svc.ReorderStories(ctx, viewer, f.projectID, []ReorderItem{
		{StoryID: a.ID, Status: models.StatusDone, Position: 1},
	})
	requireCode(t, err, appErr.CodeForbidden)

	// Members create and reorder but may not hard-delete.
	_, err = f.svc.CreateStory(ctx, member, f.projectID, &CreateStoryInput{Title: "ok"})
	require.NoError(t, err)
	err = f.svc.DeleteStory(ctx, member, a.ID)
	requireCode(t, err, appErr.CodeForbidden)

	// Non-members see nothing at all.
	_, err = f.svc.ListBoard(ctx, outsider.ID, f.projectID)
	requireCode(t, err, appErr.CodeForbidden)
}

func TestListBoardOrdersByLaneThenPosition(t *testing.T) {
	f := newStoryFixture(t)
	ctx := context.Background()

	f.seedStory(t, "done-late", models.StatusDone, 2, 0)
	f.seedStory(t, "todo-first", models.StatusTodo, 1, 0)
	f.seedStory(t, "done-early", models.StatusDone, 1, 0)
	hidden := f.seedStory(t, "archived", models.StatusTodo, 0.5, 0)
	require.NoError(t, f.db.Model(&models.Story{}).
		Where("id = ?", hidden.ID).Update("archived", true).Error)

	board, err := f.svc.ListBoard(ctx, f.owner, f.projectID)
	require.NoError(t, err)
	require.Len(t, board, 3)
	// Lanes sort lexically: DONE < IN_PROGRESS < TODO.
	assert.Equal(t, "done-early", board[0].Title)
	assert.Equal(t, "done-late", board[1].Title)
	assert.Equal(t, "todo-first", board[2].Title)
}

func TestUpdateStoryRecordsFieldHistory(t *testing.T) {
	f := newStoryFixture(t)
	ctx := context.Background()
	st := f.seedStory(t, "draft", models.StatusTodo, 1, 0)

	title := "refined"
	status := models.StatusInProgress
	updated, err := f.svc.UpdateStory(ctx, f.owner, st.ID, &UpdateStoryInput{
		Title:  &title,
		Status: &status,
	})
	require.NoError(t, err)
	assert.Equal(t, "refined", updated.Title)
	assert.Equal(t, models.StatusInProgress, updated.Status)

	entries, err := f.svc.StoryHistory(ctx, f.owner, st.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	byField := make(map[string]models.StoryHistory, len(entries))
	for _, e := range entries {
		byField[e.Field] = e
	}
	assert.Equal(t, "draft", byField["title"].OldValue)
	assert.Equal(t, "refined", byField["title"].NewValue)
	assert.Equal(t, "TODO", byField["status"].OldValue)
	assert.Equal(t, "IN_PROGRESS", byField["status"].NewValue)
	assert.Equal(t, f.owner, byField["title"].ActorID)
}

func TestUpdateStoryNoopWritesNoHistory(t *testing.T) {
	f := newStoryFixture(t)
	ctx := context.Background()
	st := f.seedStory(t, "stable", models.StatusTodo, 1, 0)

	same := "stable"
	_, err := f.svc.UpdateStory(ctx, f.owner, st.ID, &UpdateStoryInput{Title: &same})
	require.NoError(t, err)

	entries, err := f.svc.StoryHistory(ctx, f.owner, st.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestArchiveStoryIsIdempotent(t *testing.T) {
	f := newStoryFixture(t)
	ctx := context.Background()
	st := f.seedStory(t, "finished", models.StatusDone, 1, 0)

	require.NoError(t, f.svc.ArchiveStory(ctx, f.owner, st.ID))
	assert.True(t, f.reloadStory(t, st.ID).Archived)

	// Archiving again does nothing and writes no second history entry.
	require.NoError(t, f.svc.ArchiveStory(ctx, f.owner, st.ID))
	entries, err := f.svc.StoryHistory(ctx, f.owner, st.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "archived", entries[0].Field)
}

func TestDeleteStoryRemovesHistory(t *testing.T) {
	f := newStoryFixture(t)
	ctx := context.Background()
	st := f.seedStory(t, "doomed", models.StatusTodo, 1, 0)
	require.NoError(t, f.svc.ArchiveStory(ctx, f.owner, st.ID))

	require.NoError(t, f.svc.DeleteStory(ctx, f.owner, st.ID))

	_, err := f.svc.GetStory(ctx, f.owner, st.ID)
	requireCode(t, err, appErr.CodeNotFound)

	var count int64
	require.NoError(t, f.db.Model(&models.StoryHistory{}).
		Where("story_id = ?", st.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestEnqueueBackfillWithoutQueue(t *testing.T) {
	f := newStoryFixture(t)
	err := f.svc.EnqueueBackfill(context.Background(), f.owner, f.projectID)
	requireCode(t, err, appErr.CodeUnavailable)
}
