package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mealsync/mealsync/internal/api/middleware"
	"github.com/mealsync/mealsync/internal/directory"
	"github.com/mealsync/mealsync/internal/domain"
	"github.com/mealsync/mealsync/internal/registry"
	syncpkg "github.com/mealsync/mealsync/internal/sync"
)

// GroupHandler handles family group endpoints.
type GroupHandler struct {
	registry  *registry.Registry
	directory *directory.Directory
	syncMgr   *syncpkg.Manager
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(reg *registry.Registry, dir *directory.Directory, syncMgr *syncpkg.Manager) *GroupHandler {
	return &GroupHandler{registry: reg, directory: dir, syncMgr: syncMgr}
}

// Create creates a family group with the caller as its first member.
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.MemberID(r.Context())

	var req domain.CreateGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CreatorName == "" {
		respondError(w, http.StatusBadRequest, "creator_name is required")
		return
	}
	if req.CreatorRole == "" {
		req.CreatorRole = domain.RoleParent
	}

	group, err := h.registry.CreateGroup(r.Context(), req.Name, memberID, req.Settings)
	if err != nil {
		handleError(w, err)
		return
	}
	member, err := h.directory.JoinGroup(r.Context(), group.ID, memberID, req.CreatorName, req.CreatorRole)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"group":  group,
		"member": member,
	})
}

// Get gets a group by id.
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	group, err := h.registry.GetGroup(r.Context(), chi.URLParam(r, "group_id"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

// GetByCode resolves a join code. A well-formed but unknown code is a
// user-facing not-found, not an internal error.
func (h *GroupHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	group, err := h.registry.FindByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		handleError(w, err)
		return
	}
	if group == nil {
		respondError(w, http.StatusNotFound, "no group with that code")
		return
	}
	respondJSON(w, http.StatusOK, group)
}

// UpdateSettings overwrites the group's joining policy.
func (h *GroupHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "group_id")

	var req domain.UpdateGroupSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.registry.UpdateSettings(r.Context(), groupID, req.Settings); err != nil {
		handleError(w, err)
		return
	}

	group, err := h.registry.GetGroup(r.Context(), groupID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

// Delete removes a group.
func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.DeleteGroup(r.Context(), chi.URLParam(r, "group_id")); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Join joins a group by code. Groups requiring approval get a pending
// join request instead of an immediate member.
func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	memberID := middleware.MemberID(r.Context())

	var req domain.JoinGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleParent
	}

	group, err := h.registry.FindByCode(r.Context(), req.Code)
	if err != nil {
		handleError(w, err)
		return
	}
	if group == nil {
		respondError(w, http.StatusNotFound, "no group with that code")
		return
	}

	if group.Settings.RequireApproval {
		jr, err := h.registry.CreateJoinRequest(r.Context(), group.ID, req.Name, memberID)
		if err != nil {
			handleError(w, err)
			return
		}
		respondJSON(w, http.StatusAccepted, jr)
		return
	}

	member, err := h.directory.JoinGroup(r.Context(), group.ID, memberID, req.Name, req.Role)
	if err != nil {
		handleError(w, err)
		return
	}

	h.syncMgr.Broadcast(r.Context(), group.ID, syncpkg.KindMembers)
	respondJSON(w, http.StatusCreated, map[string]any{
		"group":  group,
		"member": member,
	})
}

// ListJoinRequests lists a group's join requests.
func (h *GroupHandler) ListJoinRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.registry.ListJoinRequests(r.Context(), chi.URLParam(r, "group_id"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, requests)
}

// RespondJoinRequest approves or rejects a pending join request.
func (h *GroupHandler) RespondJoinRequest(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "group_id")

	var req domain.RespondJoinRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	member, err := h.registry.RespondToJoinRequest(r.Context(), chi.URLParam(r, "request_id"), req.Approved)
	if err != nil {
		handleError(w, err)
		return
	}
	if member == nil {
		respondJSON(w, http.StatusOK, map[string]any{"status": domain.JoinRequestRejected})
		return
	}

	h.syncMgr.Broadcast(r.Context(), groupID, syncpkg.KindMembers)
	respondJSON(w, http.StatusOK, member)
}
