package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/trackio/engine/internal/models"
	"github.com/trackio/engine/internal/repository"
	"github.com/trackio/engine/internal/services"
	"github.com/trackio/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "console"); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func newBackfillHandler(t *testing.T) (*BackfillTaskHandler, *gorm.DB, *models.Project) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "trackio.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Organization{}, &models.Membership{},
		&models.Project{}, &models.Story{}, &models.StoryHistory{},
	))

	owner := &models.User{Email: "owner@example.com", Name: "Owner", PasswordHash: "x"}
	require.NoError(t, db.Create(owner).Error)
	org := &models.Organization{Name: "Acme", OwnerID: owner.ID}
	require.NoError(t, db.Create(org).Error)
	project := &models.Project{OrgID: org.ID, Name: "Legacy Import"}
	require.NoError(t, db.Create(project).Error)

	projectRepo := repository.NewProjectRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	svc := services.NewStoryService(db,
		repository.NewStoryRepository(db), projectRepo, orgRepo,
		repository.NewHistoryRepository(db), nil)
	return NewBackfillTaskHandler(svc, projectRepo, orgRepo), db, project
}

func backfillTask(t *testing.T, projectID string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(services.BackfillPayload{ProjectID: projectID})
	require.NoError(t, err)
	return asynq.NewTask(services.TypeStoryBackfill, payload)
}

func TestHandleBackfillAssignsSlugs(t *testing.T) {
	h, db, project := newBackfillHandler(t)

	for i := 0; i < 3; i++ {
		st := &models.Story{ProjectID: project.ID, Title: fmt.Sprintf("imported-%d", i), Status: models.StatusTodo}
		require.NoError(t, db.Create(st).Error)
	}

	require.NoError(t, h.HandleBackfill(context.Background(), backfillTask(t, project.ID.String())))

	var remaining int64
	require.NoError(t, db.Model(&models.Story{}).
		Where("project_id = ? AND slug IS NULL", project.ID).Count(&remaining).Error)
	assert.EqualValues(t, 0, remaining)

	var got models.Project
	require.NoError(t, db.First(&got, "id = ?", project.ID).Error)
	assert.EqualValues(t, 3, got.StoryCounter)
}

func TestHandleBackfillInvalidPayload(t *testing.T) {
	h, _, _ := newBackfillHandler(t)

	err := h.HandleBackfill(context.Background(), asynq.NewTask(services.TypeStoryBackfill, []byte("{{")))
	assert.Error(t, err)

	err = h.HandleBackfill(context.Background(), backfillTask(t, "not-a-uuid"))
	assert.Error(t, err)
}

func TestHandleBackfillUnknownProject(t *testing.T) {
	h, _, _ := newBackfillHandler(t)
	err := h.HandleBackfill(context.Background(), backfillTask(t, "7b0d0de9-3c42-4b82-8f7d-9f1d3f0a6f11"))
	assert.Error(t, err)
}
