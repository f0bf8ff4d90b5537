// Package http wires the owner API routes.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rezkam/greet/internal/http/handler"
)

// NewRouter creates the Chi router with middleware and routes.
func NewRouter(server *handler.Server) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			slog.ErrorContext(r.Context(), "failed to write health check response", "error", err)
		}
	})

	r.Route("/owners", func(r chi.Router) {
		r.Post("/", wrap("CreateOwner", server.CreateOwner))
		r.Get("/{ownerID}", wrap("GetOwner", server.GetOwner))
		r.Patch("/{ownerID}", wrap("UpdateOwner", server.UpdateOwner))
		r.Delete("/{ownerID}", wrap("DeleteOwner", server.DeleteOwner))
		r.Get("/{ownerID}/events", wrap("ListOwnerEvents", server.ListOwnerEvents))
	})

	return r
}

// wrap names the handler span for tracing.
func wrap(operation string, h http.HandlerFunc) http.HandlerFunc {
	return otelhttp.NewHandler(h, operation).ServeHTTP
}
