package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/trackio/engine/internal/api/types"
	"github.com/trackio/engine/internal/api/validators"
	"github.com/trackio/engine/internal/permissions"
	"github.com/trackio/engine/internal/services"
)

type OrganizationsHandler struct {
	orgs services.OrganizationService
}

func NewOrganizationsHandler(orgs services.OrganizationService) *OrganizationsHandler {
	return &OrganizationsHandler{orgs: orgs}
}

func (h *OrganizationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	var req types.OrgCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	org, err := h.orgs.CreateOrganization(r.Context(), actor, req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: org})
}

func (h *OrganizationsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	items, err := h.orgs.ListOrganizations(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items})
}

func (h *OrganizationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	orgID, ok := pathUUID(w, r, "orgID")
	if !ok {
		return
	}
	org, err := h.orgs.GetOrganization(r.Context(), actor, orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: org})
}

func (h *OrganizationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	orgID, ok := pathUUID(w, r, "orgID")
	if !ok {
		return
	}
	if err := h.orgs.DeleteOrganization(r.Context(), actor, orgID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

func (h *OrganizationsHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	orgID, ok := pathUUID(w, r, "orgID")
	if !ok {
		return
	}
	var req types.MemberAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	m, err := h.orgs.AddMember(r.Context(), actor, orgID, userID, permissions.Role(req.Role))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.APIResponse{Success: true, Data: m})
}

func (h *OrganizationsHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	orgID, ok := pathUUID(w, r, "orgID")
	if !ok {
		return
	}
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	var req types.MemberRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validators.New().Struct(req); err != nil {
		writeErrorStr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.orgs.UpdateMemberRole(r.Context(), actor, orgID, userID, permissions.Role(req.Role)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

func (h *OrganizationsHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	orgID, ok := pathUUID(w, r, "orgID")
	if !ok {
		return
	}
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.orgs.RemoveMember(r.Context(), actor, orgID, userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true})
}

func (h *OrganizationsHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeErrorStr(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	orgID, ok := pathUUID(w, r, "orgID")
	if !ok {
		return
	}
	members, err := h.orgs.ListMembers(r.Context(), actor, orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: members})
}
