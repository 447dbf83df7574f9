package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mealsync/mealsync/internal/directory"
	"github.com/mealsync/mealsync/internal/domain"
	syncpkg "github.com/mealsync/mealsync/internal/sync"
)

// MemberHandler handles family member endpoints.
type MemberHandler struct {
	directory *directory.Directory
	syncMgr   *syncpkg.Manager
}

// NewMemberHandler creates a new MemberHandler.
func NewMemberHandler(dir *directory.Directory, syncMgr *syncpkg.Manager) *MemberHandler {
	return &MemberHandler{directory: dir, syncMgr: syncMgr}
}

// Create adds a member to the group roster.
func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "group_id")

	var req domain.AddMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleChild
	}

	member, err := h.directory.AddMember(r.Context(), groupID, req.Name, req.Role, req.IsProxy)
	if err != nil {
		handleError(w, err)
		return
	}

	h.syncMgr.Broadcast(r.Context(), groupID, syncpkg.KindMembers)
	respondJSON(w, http.StatusCreated, member)
}

// List lists the group roster.
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.directory.ListMembers(r.Context(), chi.URLParam(r, "group_id"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, members)
}

// Get gets a member by id.
func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	member, err := h.directory.GetMember(r.Context(), chi.URLParam(r, "member_id"))
	if err != nil {
		handleError(w, err)
		return
	}
	if member.FamilyID != chi.URLParam(r, "group_id") {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	respondJSON(w, http.StatusOK, member)
}

// Update overwrites a member's profile, including the proxy flag.
func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "group_id")

	var req domain.UpdateMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	member, err := h.directory.UpdateMember(r.Context(), chi.URLParam(r, "member_id"), req.Name, req.Role, req.IsProxy)
	if err != nil {
		handleError(w, err)
		return
	}

	h.syncMgr.Broadcast(r.Context(), groupID, syncpkg.KindMembers)
	respondJSON(w, http.StatusOK, member)
}

// Delete removes a member from the roster.
func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "group_id")

	if err := h.directory.DeleteMember(r.Context(), chi.URLParam(r, "member_id")); err != nil {
		handleError(w, err)
		return
	}

	h.syncMgr.Broadcast(r.Context(), groupID, syncpkg.KindMembers)
	w.WriteHeader(http.StatusNoContent)
}
