package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/trackio/engine/internal/api/types"
	"github.com/trackio/engine/internal/api/validators"
	"github.com/trackio/engine/internal/services"
)

type SprintsHandler struct {
	sprints services.SprintService
}

func NewSprintsHandler(sprints services.SprintService) *SprintsHandler {
	return &SprintsHandler{sprints: sprints}
}

func parseSprintInput(req *types.SprintRequest) (*services.SprintInput, error) {
	in := &services.SprintInput{Name: req.Name, Goal: req.Goal}
	if req.StartsAt != "" {
		t, err := time.Parse("2006-01-02", req.StartsAt)
		if err != nil {
			return nil, err
		}
		in.StartsAt = &t
	}
	if req.EndsAt != "" {
		t, err := time.Parse("2006-01-02", req.EndsAt)
		if err != nil {
			return nil, err
		}
		in.EndsAt = &t
	}
	return in, nil
}

func (h *SprintsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	projectID, ok := pathUUID(w, r, "projectID")
	if !ok {
		return
	}
	var req types.SprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	in, err := parseSprintInput(&req)
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid date")
		return
	}
	sp, err := h.sprints.CreateSprint(r.Context(), actor, projectID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: sp})
}

func (h *SprintsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	projectID, ok := pathUUID(w, r, "projectID")
	if !ok {
		return
	}
	items, err := h.sprints.ListSprints(r.Context(), actor, projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

func (h *SprintsHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	sprintID, ok := pathUUID(w, r, "sprintID")
	if !ok {
		return
	}
	var req types.SprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	in, err := parseSprintInput(&req)
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid date")
		return
	}
	sp, err := h.sprints.UpdateSprint(r.Context(), actor, sprintID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: sp})
}

func (h *SprintsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	sprintID, ok := pathUUID(w, r, "sprintID")
	if !ok {
		return
	}
	if err := h.sprints.DeleteSprint(r.Context(), actor, sprintID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}
