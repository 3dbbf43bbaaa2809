// Package health serves liveness and dependency readiness.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"beacon/pkg/platform/httputil"
)

const checkTimeout = 2 * time.Second

// Checker reports whether a dependency is reachable.
type Checker interface {
	Health(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Health(ctx context.Context) error {
	return f(ctx)
}

// Report is the /healthz body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type Handler struct {
	checkers map[string]Checker
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Handler {
	return &Handler{checkers: make(map[string]Checker), logger: logger}
}

// Add registers a named dependency. Nil checkers are ignored so disabled
// backends can be passed straight through.
func (h *Handler) Add(name string, c Checker) {
	if c == nil {
		return
	}
	h.checkers[name] = c
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/runningStatus", h.HandleRunningStatus)
	r.Get("/healthz", h.HandleHealthz)
}

// HandleRunningStatus is the legacy liveness probe.
func (h *Handler) HandleRunningStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteStatus(w, http.StatusOK, "server running")
}

// HandleHealthz checks every registered dependency concurrently.
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]error, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			results[i] = h.checkers[name].Health(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Status: "ok", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for i, name := range names {
		if err := results[i]; err != nil {
			report.Checks[name] = err.Error()
			report.Status = "degraded"
			status = http.StatusServiceUnavailable
			h.logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
			continue
		}
		report.Checks[name] = "ok"
	}
	httputil.WriteJSON(w, status, report)
}
