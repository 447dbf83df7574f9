package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mealsync/mealsync/internal/api/middleware"
	"github.com/mealsync/mealsync/internal/domain"
	"github.com/mealsync/mealsync/internal/ledger"
	syncpkg "github.com/mealsync/mealsync/internal/sync"
)

// AttendanceHandler handles attendance ledger endpoints.
type AttendanceHandler struct {
	reconciler *ledger.Reconciler
	syncMgr    *syncpkg.Manager
}

// NewAttendanceHandler creates a new AttendanceHandler.
func NewAttendanceHandler(rec *ledger.Reconciler, syncMgr *syncpkg.Manager) *AttendanceHandler {
	return &AttendanceHandler{reconciler: rec, syncMgr: syncMgr}
}

// entryView decorates an entry with its computed state.
type entryView struct {
	*domain.AttendanceEntry
	State domain.EntryState `json:"state"`
}

func viewOf(e *domain.AttendanceEntry) entryView {
	return entryView{AttendanceEntry: e, State: e.StateAt(time.Now())}
}

// List lists a group's entries, optionally filtered by ?date=.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.reconciler.ListEntries(r.Context(), chi.URLParam(r, "group_id"), r.URL.Query().Get("date"))
	if err != nil {
		handleError(w, err)
		return
	}
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, viewOf(e))
	}
	respondJSON(w, http.StatusOK, views)
}

// Get gets the entry for one date and meal.
func (h *AttendanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.reconciler.GetEntry(r.Context(),
		chi.URLParam(r, "group_id"),
		chi.URLParam(r, "date"),
		domain.MealType(chi.URLParam(r, "meal")))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(entry))
}

// SubmitResponse folds one member's response into the ledger. Omitting
// member_id answers for the caller; answering for someone else requires
// the caller's proxy flag.
func (h *AttendanceHandler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "group_id")
	actingID := middleware.MemberID(r.Context())

	var req domain.SubmitResponseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	targetID := req.MemberID
	if targetID == "" {
		targetID = actingID
	}

	entry, err := h.reconciler.SubmitResponse(r.Context(), groupID, actingID, targetID, req.Date, req.MealType, req.WillAttend)
	if err != nil {
		handleError(w, err)
		return
	}

	h.syncMgr.Broadcast(r.Context(), groupID, syncpkg.KindAttendance)
	respondJSON(w, http.StatusOK, viewOf(entry))
}

// Register is the bulk registration path: the listed members attend,
// everyone else on the roster does not.
func (h *AttendanceHandler) Register(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "group_id")
	actingID := middleware.MemberID(r.Context())

	var req domain.RegisterAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.reconciler.RegisterAttendance(r.Context(), groupID, actingID, req.Date, req.MealType, req.AttendeeIDs)
	if err != nil {
		handleError(w, err)
		return
	}

	h.syncMgr.Broadcast(r.Context(), groupID, syncpkg.KindAttendance)
	respondJSON(w, http.StatusOK, viewOf(entry))
}

// ClearExpired removes entries whose deadline has passed.
func (h *AttendanceHandler) ClearExpired(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "group_id")

	removed, err := h.reconciler.ClearExpired(r.Context(), groupID)
	if err != nil {
		handleError(w, err)
		return
	}
	if removed > 0 {
		h.syncMgr.Broadcast(r.Context(), groupID, syncpkg.KindAttendance)
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// ResetDate removes every entry for one date.
func (h *AttendanceHandler) ResetDate(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "group_id")

	removed, err := h.reconciler.ResetForDate(r.Context(), groupID, chi.URLParam(r, "date"))
	if err != nil {
		handleError(w, err)
		return
	}
	if removed > 0 {
		h.syncMgr.Broadcast(r.Context(), groupID, syncpkg.KindAttendance)
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
