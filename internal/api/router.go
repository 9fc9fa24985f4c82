/**
 * @description
 * This file sets up the HTTP router using the go-chi/chi router. It defines
 * the API routes, applies middleware for logging and CORS, and maps the
 * routes to their corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the dashboard routes.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Renewal service is healthy"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.handleListClients)
			r.Post("/", h.handleCreateClient)
			r.Get("/stats", h.handleClientStats)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGetClient)
				r.Put("/", h.handleUpdateClient)
				r.Delete("/", h.handleDeleteClient)
				r.Post("/renew", h.handleRenewClient)
			})
		})

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", h.handleListMessages)
			r.Get("/stats", h.handleMessageStats)
			r.Post("/test", h.handleTestMessage)
			r.Post("/{id}/retry", h.handleRetryMessage)
		})

		r.Route("/ai", func(r chi.Router) {
			r.Get("/config", h.handleGetAIConfig)
			r.Put("/config", h.handleUpdateAIConfig)
			r.Post("/test", h.handleTestAI)
		})

		r.Route("/whatsapp", func(r chi.Router) {
			r.Get("/config", h.handleGetGatewayConfig)
			r.Put("/config", h.handleUpdateGatewayConfig)
			r.Get("/status", h.handleGatewayStatus)
		})

		r.Route("/export", func(r chi.Router) {
			r.Get("/clients", h.handleExportClients)
			r.Get("/messages", h.handleExportMessages)
		})
	})

	return r
}
