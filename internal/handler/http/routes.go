package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Init wires the route tree.
//
// Route groups:
//   - public: liveness probe
//   - authenticated: the sync protocol
//   - authenticated + rate-limited: the caller-facing migration surface
//   - authenticated + admin: privileged migration control
func (h *Handler) Init() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(h.withLogging)

	router.Group(func(r chi.Router) {
		r.Get("/api/ping", h.ping)
	})

	router.Group(func(r chi.Router) {
		r.Use(h.auth)

		r.Post("/api/sync/push", h.push)
		r.Get("/api/sync/pull", h.pull)
		r.Post("/api/sync/conflicts/resolve", h.resolveConflict)
	})

	router.Group(func(r chi.Router) {
		r.Use(h.auth)
		r.Use(h.withRateLimit)

		r.Get("/api/migration/status", h.migrationStatus)
		r.Post("/api/migration/request", h.requestMigration)
	})

	router.Group(func(r chi.Router) {
		r.Use(h.auth)
		r.Use(h.requireAdmin)

		r.Post("/api/migration/execute", h.executeMigration)
		r.Post("/api/migration/rollback", h.rollbackMigration)
	})

	return router
}
