package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"beacon/internal/presence/models"
	"beacon/pkg/platform/httputil"
	"beacon/pkg/requestcontext"
)

// Service reads presence flags.
type Service interface {
	Online(ctx context.Context, practice, patient string) (models.State, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts presence endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/presence/{practice}/{patient}", h.HandleGet)
}

// HandleGet handles GET /presence/{practice}/{patient}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := h.service.Online(ctx, chi.URLParam(r, "practice"), chi.URLParam(r, "patient"))
	if err != nil {
		h.logger.WarnContext(ctx, "presence lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}
