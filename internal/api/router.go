package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mealsync/mealsync/internal/api/handler"
	"github.com/mealsync/mealsync/internal/api/middleware"
	"github.com/mealsync/mealsync/internal/directory"
	"github.com/mealsync/mealsync/internal/ledger"
	"github.com/mealsync/mealsync/internal/registry"
	syncpkg "github.com/mealsync/mealsync/internal/sync"
)

// Deps are the wired application services the router exposes.
type Deps struct {
	Registry      *registry.Registry
	Directory     *directory.Directory
	Reconciler    *ledger.Reconciler
	SyncManager   *syncpkg.Manager
	JWTSecret     []byte
	TokenDuration time.Duration
	Logger        *zap.Logger
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(deps.Logger))

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)

		// Sign-in (no auth required)
		authHandler := handler.NewAuthHandler(deps.JWTSecret, deps.TokenDuration)
		r.Post("/auth/anonymous", authHandler.SignInAnonymous)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(deps.JWTSecret))

			groupHandler := handler.NewGroupHandler(deps.Registry, deps.Directory, deps.SyncManager)
			r.Post("/groups", groupHandler.Create)
			r.Post("/groups/join", groupHandler.Join)
			r.Get("/groups/code/{code}", groupHandler.GetByCode)

			syncHandler := handler.NewSyncHandler(deps.SyncManager)
			r.Get("/sync/status", syncHandler.Status)
			r.Post("/sync/stop", syncHandler.Stop)
			r.Post("/sync/offline", syncHandler.SyncOffline)

			r.Route("/groups/{group_id}", func(r chi.Router) {
				r.Get("/", groupHandler.Get)
				r.Put("/settings", groupHandler.UpdateSettings)
				r.Delete("/", groupHandler.Delete)

				r.Get("/join-requests", groupHandler.ListJoinRequests)
				r.Post("/join-requests/{request_id}/respond", groupHandler.RespondJoinRequest)

				memberHandler := handler.NewMemberHandler(deps.Directory, deps.SyncManager)
				r.Post("/members", memberHandler.Create)
				r.Get("/members", memberHandler.List)
				r.Get("/members/{member_id}", memberHandler.Get)
				r.Put("/members/{member_id}", memberHandler.Update)
				r.Delete("/members/{member_id}", memberHandler.Delete)

				attendanceHandler := handler.NewAttendanceHandler(deps.Reconciler, deps.SyncManager)
				r.Get("/attendance", attendanceHandler.List)
				r.Get("/attendance/{date}/{meal}", attendanceHandler.Get)
				r.Post("/attendance/responses", attendanceHandler.SubmitResponse)
				r.Post("/attendance/register", attendanceHandler.Register)
				r.Post("/attendance/clear-expired", attendanceHandler.ClearExpired)
				r.Delete("/attendance/{date}", attendanceHandler.ResetDate)

				r.Post("/sync/start", syncHandler.Start)
			})
		})
	})

	return r
}
