package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/trackio/engine/internal/api/types"
	"github.com/trackio/engine/internal/api/validators"
	"github.com/trackio/engine/internal/services"
)

type ProjectsHandler struct {
	projects services.ProjectService
}

func NewProjectsHandler(projects services.ProjectService) *ProjectsHandler {
	return &ProjectsHandler{projects: projects}
}

func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	orgID, ok := pathUUID(w, r, "orgID")
	if !ok {
		return
	}
	var req types.ProjectCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.projects.CreateProject(r.Context(), actor, orgID, &services.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
		Settings:    req.Settings,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: p})
}

func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	orgID, ok := pathUUID(w, r, "orgID")
	if !ok {
		return
	}
	items, err := h.projects.ListProjects(r.Context(), actor, orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items, Meta: &types.Meta{Total: int64(len(items))}})
}

func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	projectID, ok := pathUUID(w, r, "projectID")
	if !ok {
		return
	}
	p, err := h.projects.GetProject(r.Context(), actor, projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: p})
}

func (h *ProjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	projectID, ok := pathUUID(w, r, "projectID")
	if !ok {
		return
	}
	var req types.ProjectUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := h.projects.UpdateProject(r.Context(), actor, projectID, &services.UpdateProjectInput{
		Description: req.Description,
		Settings:    req.Settings,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: p})
}

func (h *ProjectsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	projectID, ok := pathUUID(w, r, "projectID")
	if !ok {
		return
	}
	if err := h.projects.ArchiveProject(r.Context(), actor, projectID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	projectID, ok := pathUUID(w, r, "projectID")
	if !ok {
		return
	}
	if err := h.projects.DeleteProject(r.Context(), actor, projectID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}
