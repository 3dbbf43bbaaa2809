package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"beacon/internal/platform/metrics"
	"beacon/pkg/platform/middleware/request"
)

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires the shared middleware chain, /metrics and every module's
// routes. Handlers own their own paths.
func NewRouter(logger *slog.Logger, m *metrics.Metrics, registrars ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	r.Use(request.ClientMetadata)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(request.AccessLog(logger))

	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	for _, reg := range registrars {
		reg.Register(r)
	}
	return r
}
