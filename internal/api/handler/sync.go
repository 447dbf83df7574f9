package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mealsync/mealsync/internal/domain"
	syncpkg "github.com/mealsync/mealsync/internal/sync"
)

// SyncHandler handles sync session endpoints.
type SyncHandler struct {
	syncMgr *syncpkg.Manager
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncMgr *syncpkg.Manager) *SyncHandler {
	return &SyncHandler{syncMgr: syncMgr}
}

type syncStatus struct {
	FamilyID     string     `json:"family_id"`
	Connected    bool       `json:"connected"`
	Transport    string     `json:"transport"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
}

func statusOf(s *syncpkg.Session) syncStatus {
	st := syncStatus{
		FamilyID:  s.FamilyID(),
		Connected: s.Connected(),
		Transport: s.TransportName(),
	}
	if last := s.LastSyncTime(); !last.IsZero() {
		st.LastSyncTime = &last
	}
	return st
}

// Start begins following a group's change streams. Any previous
// session is torn down first.
func (h *SyncHandler) Start(w http.ResponseWriter, r *http.Request) {
	session, err := h.syncMgr.StartSync(r.Context(), chi.URLParam(r, "group_id"), syncpkg.Callbacks{})
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, statusOf(session))
}

// Stop tears down the active session, if any.
func (h *SyncHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.syncMgr.StopSync()
	w.WriteHeader(http.StatusNoContent)
}

// Status reports the active session's connectivity and last sync time.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := h.syncMgr.Active()
	if session == nil {
		handleError(w, domain.ErrNoActiveSession)
		return
	}
	respondJSON(w, http.StatusOK, statusOf(session))
}

// SyncOffline replays writes buffered while offline into the shared
// store.
func (h *SyncHandler) SyncOffline(w http.ResponseWriter, r *http.Request) {
	session := h.syncMgr.Active()
	if session == nil {
		handleError(w, domain.ErrNoActiveSession)
		return
	}

	applied, err := session.SyncOfflineData(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"applied": applied})
}
