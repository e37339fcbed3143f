package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - user must be logged in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Inbox endpoints
			r.Route("/inbox", func(r chi.Router) {
				r.Get("/", s.handleListInbox)
				r.Delete("/", s.handleClearInbox)

				r.Route("/{uid}", func(r chi.Router) {
					r.Get("/", s.handleGetInboxEntry)
					r.Delete("/", s.handleDeleteInboxEntry)
					r.Post("/approve", s.handleApproveInboxEntry)
					r.Post("/ignore", s.handleIgnoreInboxEntry)
					r.Post("/unignore", s.handleUnignoreInboxEntry)
				})
			})

			// Discovery endpoints
			r.Route("/discovery", func(r chi.Router) {
				r.Post("/scan", s.handleScanAll)
				r.Post("/abort", s.handleAbortScans)

				r.Route("/services", func(r chi.Router) {
					r.Get("/", s.handleListDiscoveryServices)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleGetDiscoveryService)
						r.Get("/results", s.handleDiscoveryServiceResults)
						r.Post("/scan", s.handleStartScan)
						r.Post("/abort", s.handleAbortServiceScan)
						r.Put("/background", s.handleSetBackgroundDiscovery)
					})
				})
			})

			// Thing endpoints
			r.Route("/things", func(r chi.Router) {
				r.Get("/", s.handleListThings)
				r.Post("/", s.handleCreateThing)

				r.Route("/{uid}", func(r chi.Router) {
					r.Get("/", s.handleGetThing)
					r.Patch("/", s.handleUpdateThing)
					r.Delete("/", s.handleDeleteThing)
					r.Put("/enabled", s.handleSetThingEnabled)
				})
			})

			// Item/channel link endpoints
			r.Route("/links", func(r chi.Router) {
				r.Get("/", s.handleListLinks)
				r.Post("/", s.handleCreateLink)
				r.Get("/{item}/{channel}", s.handleGetLink)
				r.Put("/{item}/{channel}", s.handlePutLink)
				r.Delete("/{item}/{channel}", s.handleDeleteLink)
			})

			// Rule endpoints
			r.Route("/rules", func(r chi.Router) {
				r.Get("/", s.handleListRules)
				r.Post("/", s.handleCreateRule)
				r.Post("/test", s.handleTestRule)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRule)
					r.Patch("/", s.handleUpdateRule)
					r.Delete("/", s.handleDeleteRule)
					r.Put("/enabled", s.handleSetRuleEnabled)
				})
			})

			// Event history (requires InfluxDB)
			r.Get("/persistence/events", s.handlePersistenceEvents)

			// System management
			r.Post("/system/factory-reset", s.handleFactoryReset)

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
