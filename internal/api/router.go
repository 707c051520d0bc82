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

	r.Route("/gotapi", func(r chi.Router) {
		// Availability probe, no credential required
		r.Get("/availability", s.handleAvailability)

		// Local OAuth flow
		r.Route("/authorization", func(r chi.Router) {
			r.Get("/grant", s.handleGrant)
			r.Post("/grant", s.handleGrant)
			r.Delete("/grant", s.handleRevokeGrant)
			r.Get("/accessToken", s.handleAccessToken)
			r.Get("/sessionTicket", s.handleSessionTicket)

			// Interactive approval surface for the local confirmation UI
			r.Route("/approvals", func(r chi.Router) {
				r.Get("/", s.handleListApprovals)
				r.Put("/{id}/approve", s.handleApprove)
				r.Put("/{id}/deny", s.handleDeny)
			})
		})

		// Discovery fans out to every online plugin
		r.Get("/serviceDiscovery", s.handleServiceDiscovery)

		// Event delivery channel
		r.Get("/websocket", s.handleWebSocket)

		// Everything else is a profile operation routed by the broker
		r.HandleFunc("/{profile}", s.handleGotapi)
		r.HandleFunc("/{profile}/{attribute}", s.handleGotapi)
		r.HandleFunc("/{profile}/{interface}/{attribute}", s.handleGotapi)
	})

	return r
}

// handleAvailability reports that the manager is alive. Kept outside
// the broker because it must answer even while plugins are down.
func (s *Server) handleAvailability(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"result":  resultOK,
		"name":    "DeviceHub",
		"version": s.version,
	})
}
