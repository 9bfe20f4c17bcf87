package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trackio/engine/internal/api/middleware"
	"github.com/trackio/engine/internal/api/types"
	"github.com/trackio/engine/internal/models"
	"github.com/trackio/engine/internal/services"
	appErr "github.com/trackio/engine/pkg/errors"
)

type mockStoryService struct {
	mock.Mock
}

func (m *mockStoryService) CreateStory(ctx context.Context, actorID, projectID uuid.UUID, input *services.CreateStoryInput) (*models.Story, error) {
	args := m.Called(ctx, actorID, projectID, input)
	if st := args.Get(0); st != nil {
		return st.(*models.Story), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStoryService) GetStory(ctx context.Context, actorID, storyID uuid.UUID) (*models.Story, error) {
	args := m.Called(ctx, actorID, storyID)
	if st := args.Get(0); st != nil {
		return st.(*models.Story), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStoryService) ListBoard(ctx context.Context, actorID, projectID uuid.UUID) ([]models.Story, error) {
	args := m.Called(ctx, actorID, projectID)
	if v := args.Get(0); v != nil {
		return v.([]models.Story), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStoryService) UpdateStory(ctx context.Context, actorID, storyID uuid.UUID, input *services.UpdateStoryInput) (*models.Story, error) {
	args := m.Called(ctx, actorID, storyID, input)
	if st := args.Get(0); st != nil {
		return st.(*models.Story), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStoryService) ArchiveStory(ctx context.Context, actorID, storyID uuid.UUID) error {
	return m.Called(ctx, actorID, storyID).Error(0)
}

func (m *mockStoryService) DeleteStory(ctx context.Context, actorID, storyID uuid.UUID) error {
	return m.Called(ctx, actorID, storyID).Error(0)
}

func (m *mockStoryService) StoryHistory(ctx context.Context, actorID, storyID uuid.UUID) ([]models.StoryHistory, error) {
	args := m.Called(ctx, actorID, storyID)
	if v := args.Get(0); v != nil {
		return v.([]models.StoryHistory), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStoryService) AllocateSlug(ctx context.Context, actorID, projectID, storyID uuid.UUID) (*services.AllocatedSlug, error) {
	args := m.Called(ctx, actorID, projectID, storyID)
	if v := args.Get(0); v != nil {
		return v.(*services.AllocatedSlug), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStoryService) BackfillSlugs(ctx context.Context, actorID, projectID uuid.UUID) (*services.BackfillResult, error) {
	args := m.Called(ctx, actorID, projectID)
	if v := args.Get(0); v != nil {
		return v.(*services.BackfillResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStoryService) EnqueueBackfill(ctx context.Context, actorID, projectID uuid.UUID) error {
	return m.Called(ctx, actorID, projectID).Error(0)
}

func (m *mockStoryService) ReorderStories(ctx context.Context, actorID, projectID uuid.UUID, items []services.ReorderItem) error {
	return m.Called(ctx, actorID, projectID, items).Error(0)
}

var _ services.StoryService = (*mockStoryService)(nil)

// newStoryRequest builds a request carrying the authenticated actor and chi
// route params, mirroring what the middleware stack provides in production.
func newStoryRequest(method, target string, body string, actor uuid.UUID, params map[string]string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := context.WithValue(r.Context(), middleware.UserIDKey, actor.String())
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) types.APIResponse {
	t.Helper()
	var resp types.APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestStoriesReorder(t *testing.T) {
	actor := uuid.New()
	projectID := uuid.New()
	storyA := uuid.New()
	storyB := uuid.New()

	body := `{"items":[
		{"story_id":"` + storyA.String() + `","status":"DONE","position":1},
		{"story_id":"` + storyB.String() + `","status":"DONE","position":2}
	]}`

	svc := new(mockStoryService)
	svc.On("ReorderStories", mock.Anything, actor, projectID, []services.ReorderItem{
		{StoryID: storyA, Status: models.StatusDone, Position: 1},
		{StoryID: storyB, Status: models.StatusDone, Position: 2},
	}).Return(nil)

	h := NewStoriesHandler(svc)
	rec := httptest.NewRecorder()
	h.Reorder(rec, newStoryRequest(http.MethodPost, "/api/v1/projects/"+projectID.String()+"/stories/reorder",
		body, actor, map[string]string{"projectID": projectID.String()}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeEnvelope(t, rec).Success)
	svc.AssertExpectations(t)
}

func TestStoriesReorderMismatchMapsTo422(t *testing.T) {
	actor := uuid.New()
	projectID := uuid.New()
	storyA := uuid.New()

	svc := new(mockStoryService)
	svc.On("ReorderStories", mock.Anything, actor, projectID, mock.Anything).
		Return(appErr.New(appErr.CodeMismatch, "batch references stories outside the project"))

	h := NewStoriesHandler(svc)
	rec := httptest.NewRecorder()
	body := `{"items":[{"story_id":"` + storyA.String() + `","status":"TODO","position":1}]}`
	h.Reorder(rec, newStoryRequest(http.MethodPost, "/reorder", body, actor,
		map[string]string{"projectID": projectID.String()}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "mismatch", resp.Error.Code)
	svc.AssertExpectations(t)
}

func TestStoriesReorderRejectsBadPayload(t *testing.T) {
	actor := uuid.New()
	projectID := uuid.New()
	params := map[string]string{"projectID": projectID.String()}

	cases := []struct {
		name string
		body string
	}{
		{"empty batch", `{"items":[]}`},
		{"bad status", `{"items":[{"story_id":"` + uuid.NewString() + `","status":"PARKED","position":1}]}`},
		{"bad uuid", `{"items":[{"story_id":"not-a-uuid","status":"TODO","position":1}]}`},
		{"not json", `{{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(mockStoryService)
			h := NewStoriesHandler(svc)
			rec := httptest.NewRecorder()
			h.Reorder(rec, newStoryRequest(http.MethodPost, "/reorder", tc.body, actor, params))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			svc.AssertNotCalled(t, "ReorderStories")
		})
	}
}

func TestStoriesCreate(t *testing.T) {
	actor := uuid.New()
	projectID := uuid.New()
	slug := "TK-7"
	created := &models.Story{ID: uuid.New(), ProjectID: projectID, Slug: &slug, Title: "ship it", Status: models.StatusTodo}

	svc := new(mockStoryService)
	svc.On("CreateStory", mock.Anything, actor, projectID, &services.CreateStoryInput{Title: "ship it"}).
		Return(created, nil)

	h := NewStoriesHandler(svc)
	rec := httptest.NewRecorder()
	h.Create(rec, newStoryRequest(http.MethodPost, "/stories", `{"title":"ship it"}`, actor,
		map[string]string{"projectID": projectID.String()}))

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.True(t, resp.Success)
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var got models.Story
	require.NoError(t, json.Unmarshal(data, &got))
	require.NotNil(t, got.Slug)
	assert.Equal(t, "TK-7", *got.Slug)
	svc.AssertExpectations(t)
}

func TestStoriesCreateForbidden(t *testing.T) {
	actor := uuid.New()
	projectID := uuid.New()

	svc := new(mockStoryService)
	svc.On("CreateStory", mock.Anything, actor, projectID, mock.Anything).
		Return(nil, appErr.New(appErr.CodeForbidden, "role VIEWER may not story:create"))

	h := NewStoriesHandler(svc)
	rec := httptest.NewRecorder()
	h.Create(rec, newStoryRequest(http.MethodPost, "/stories", `{"title":"nope"}`, actor,
		map[string]string{"projectID": projectID.String()}))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, decodeEnvelope(t, rec).Success)
}

func TestStoriesCreateRequiresIdentity(t *testing.T) {
	svc := new(mockStoryService)
	h := NewStoriesHandler(svc)
	rec := httptest.NewRecorder()

	r := httptest.NewRequest(http.MethodPost, "/stories", strings.NewReader(`{"title":"x"}`))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("projectID", uuid.NewString())
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	h.Create(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	svc.AssertNotCalled(t, "CreateStory")
}

func TestStoriesBackfill(t *testing.T) {
	actor := uuid.New()
	projectID := uuid.New()
	params := map[string]string{"projectID": projectID.String()}

	t.Run("inline", func(t *testing.T) {
		svc := new(mockStoryService)
		svc.On("BackfillSlugs", mock.Anything, actor, projectID).
			Return(&services.BackfillResult{AssignedCount: 4, FinalCounter: 9}, nil)

		h := NewStoriesHandler(svc)
		rec := httptest.NewRecorder()
		h.BackfillSlugs(rec, newStoryRequest(http.MethodPost, "/stories/backfill-slugs", "", actor, params))

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decodeEnvelope(t, rec)
		assert.True(t, resp.Success)
		svc.AssertExpectations(t)
	})

	t.Run("async enqueues", func(t *testing.T) {
		svc := new(mockStoryService)
		svc.On("EnqueueBackfill", mock.Anything, actor, projectID).Return(nil)

		h := NewStoriesHandler(svc)
		rec := httptest.NewRecorder()
		h.BackfillSlugs(rec, newStoryRequest(http.MethodPost, "/stories/backfill-slugs?async=1", "", actor, params))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		svc.AssertNotCalled(t, "BackfillSlugs")
		svc.AssertExpectations(t)
	})

	t.Run("conflict maps to 409", func(t *testing.T) {
		svc := new(mockStoryService)
		svc.On("BackfillSlugs", mock.Anything, actor, projectID).
			Return(nil, appErr.New(appErr.CodeConflict, "story counter moved concurrently, retry backfill"))

		h := NewStoriesHandler(svc)
		rec := httptest.NewRecorder()
		h.BackfillSlugs(rec, newStoryRequest(http.MethodPost, "/stories/backfill-slugs", "", actor, params))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestStoriesGetNotFound(t *testing.T) {
	actor := uuid.New()
	storyID := uuid.New()

	svc := new(mockStoryService)
	svc.On("GetStory", mock.Anything, actor, storyID).
		Return(nil, appErr.New(appErr.CodeNotFound, "story not found"))

	h := NewStoriesHandler(svc)
	rec := httptest.NewRecorder()
	h.Get(rec, newStoryRequest(http.MethodGet, "/stories/"+storyID.String(), "", actor,
		map[string]string{"storyID": storyID.String()}))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_found", resp.Error.Code)
}
