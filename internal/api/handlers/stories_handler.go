package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/trackio/engine/internal/api/types"
	"github.com/trackio/engine/internal/api/validators"
	"github.com/trackio/engine/internal/models"
	"github.com/trackio/engine/internal/services"
)

type StoriesHandler struct {
	stories services.StoryService
}

func NewStoriesHandler(stories services.StoryService) *StoriesHandler {
	return &StoriesHandler{stories: stories}
}

func optionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (h *StoriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	projectID, ok := pathUUID(w, r, "projectID")
	if !ok {
		return
	}
	var req types.StoryCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	sprintID, err := optionalUUID(req.SprintID)
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid sprint_id")
		return
	}
	assigneeID, err := optionalUUID(req.AssigneeID)
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid assignee_id")
		return
	}

	st, err := h.stories.CreateStory(r.Context(), actor, projectID, &services.CreateStoryInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      models.StoryStatus(req.Status),
		Position:    req.Position,
		SprintID:    sprintID,
		AssigneeID:  assigneeID,
		Labels:      req.Labels,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: st})
}

func (h *StoriesHandler) Board(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	projectID, ok := pathUUID(w, r, "projectID")
	if !ok {
		return
	}
	items, err := h.stories.ListBoard(r.Context(), actor, projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items, Meta: &types.Meta{Total: int64(len(items))}})
}

func (h *StoriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	storyID, ok := pathUUID(w, r, "storyID")
	if !ok {
		return
	}
	st, err := h.stories.GetStory(r.Context(), actor, storyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: st})
}

func (h *StoriesHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	storyID, ok := pathUUID(w, r, "storyID")
	if !ok {
		return
	}
	var req types.StoryUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	in := &services.UpdateStoryInput{
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Status != nil {
		s := models.StoryStatus(*req.Status)
		in.Status = &s
	}
	if req.SprintID != nil {
		id, err := uuid.Parse(*req.SprintID)
		if err != nil {
			writeErrorStr(w, http.StatusBadRequest, "invalid sprint_id")
			return
		}
		in.SprintID = &id
	}
	if req.AssigneeID != nil {
		id, err := uuid.Parse(*req.AssigneeID)
		if err != nil {
			writeErrorStr(w, http.StatusBadRequest, "invalid assignee_id")
			return
		}
		in.AssigneeID = &id
	}

	st, err := h.stories.UpdateStory(r.Context(), actor, storyID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: st})
}

func (h *StoriesHandler) Archive(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	storyID, ok := pathUUID(w, r, "storyID")
	if !ok {
		return
	}
	if err := h.stories.ArchiveStory(r.Context(), actor, storyID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

func (h *StoriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	storyID, ok := pathUUID(w, r, "storyID")
	if !ok {
		return
	}
	if err := h.stories.DeleteStory(r.Context(), actor, storyID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

func (h *StoriesHandler) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	storyID, ok := pathUUID(w, r, "storyID")
	if !ok {
		return
	}
	items, err := h.stories.StoryHistory(r.Context(), actor, storyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

// Reorder applies a drag-and-drop batch: every listed story gets its new
// status and position in one transaction, or the whole batch is rejected.
func (h *StoriesHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	projectID, ok := pathUUID(w, r, "projectID")
	if !ok {
		return
	}
	var req types.ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}

	items := make([]services.ReorderItem, 0, len(req.Items))
	for _, it := range req.Items {
		id, err := uuid.Parse(it.StoryID)
		if err != nil {
			writeErrorStr(w, http.StatusBadRequest, "invalid story_id")
			return
		}
		items = append(items, services.ReorderItem{
			StoryID:  id,
			Status:   models.StoryStatus(it.Status),
			Position: it.Position,
		})
	}

	if err := h.stories.ReorderStories(r.Context(), actor, projectID, items); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

// BackfillSlugs runs slug backfill for a project. With ?async=1 the work is
// queued to the background worker instead of running inline.
func (h *StoriesHandler) BackfillSlugs(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	projectID, ok := pathUUID(w, r, "projectID")
	if !ok {
		return
	}

	if r.URL.Query().Get("async") == "1" {
		if err := h.stories.EnqueueBackfill(r.Context(), actor, projectID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, types.APIResponse{Success: true})
		return
	}

	res, err := h.stories.BackfillSlugs(r.Context(), actor, projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: res})
}
