package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"beacon/internal/subscription/models"
	"beacon/pkg/platform/httputil"
	"beacon/pkg/requestcontext"
)

// Service defines the subscription operations the handler needs.
type Service interface {
	Subscribe(ctx context.Context, kind, id string, desc models.Descriptor) (models.Interest, error)
	Unsubscribe(ctx context.Context, kind, id string) error
}

// Handler exposes subscription registration over HTTP.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a subscription handler over the registration service.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts subscription endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/addSubscription", h.HandleAdd)
	r.Post("/removeSubscription", h.HandleRemove)
	r.Post("/removeSubscription/{model}/{uid}", h.HandleRemove)
}

// HandleAdd handles POST /addSubscription.
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[AddSubscriptionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	_, err := h.service.Subscribe(ctx, req.Model, req.UID, models.Descriptor{
		Filter:    req.Filter,
		Expand:    req.Expand(),
		CountOnly: req.Count,
	})
	if err != nil {
		httputil.WriteStatusError(w, err)
		return
	}
	httputil.WriteStatus(w, http.StatusOK, "Subscription added successfully")
}

// HandleRemove handles POST /removeSubscription with model and uid taken from
// the path, the query string or a form body.
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	model, uid := removeParams(w, r)
	if model == "" || uid == "" {
		h.logger.DebugContext(ctx, "remove subscription without model or uid",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteStatus(w, http.StatusOK, "Subscription removed successfully")
		return
	}
	if err := h.service.Unsubscribe(ctx, model, uid); err != nil {
		httputil.WriteStatusError(w, err)
		return
	}
	httputil.WriteStatus(w, http.StatusOK, "Subscription removed successfully")
}

func removeParams(w http.ResponseWriter, r *http.Request) (model, uid string) {
	model = chi.URLParam(r, "model")
	uid = chi.URLParam(r, "uid")
	if (model == "" || uid == "") && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if body, err := httputil.DecodeJSON[removeBody](w, r); err == nil {
			model = firstNonEmpty(model, body.Model)
			uid = firstNonEmpty(uid, body.UID)
		}
	}
	model = firstNonEmpty(model, r.FormValue("model"))
	uid = firstNonEmpty(uid, r.FormValue("uid"))
	return strings.TrimSpace(model), strings.TrimSpace(uid)
}

type removeBody struct {
	Model string `json:"model"`
	UID   string `json:"uid"`
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
