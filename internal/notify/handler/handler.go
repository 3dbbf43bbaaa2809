package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"beacon/internal/notify/models"
	dErrors "beacon/pkg/domain-errors"
	"beacon/pkg/platform/httputil"
	"beacon/pkg/requestcontext"
)

const maxBatchBytes = 4 << 20

// Dispatcher runs change batches.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []models.ChangeEvent) (models.DispatchSummary, error)
}

// GroupEmitter pushes pre-resolved payloads.
type GroupEmitter interface {
	EmitGroups(ctx context.Context, op models.Operation, targets []models.GroupTarget) error
}

// Handler exposes the notify engine over HTTP.
type Handler struct {
	dispatcher Dispatcher
	groups     GroupEmitter
	logger     *slog.Logger
}

// New constructs a notify handler over the dispatcher and group emitter.
func New(dispatcher Dispatcher, groups GroupEmitter, logger *slog.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, groups: groups, logger: logger}
}

// Register mounts notify endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/notifyGroup", h.HandleNotifyGroup)
	r.Post("/changes", h.HandleChanges)
}

// HandleNotifyGroup handles POST /notifyGroup: every target's data is emitted to
// its room under the item's operation. A failed item does not stop the rest;
// the failures are reported together in one 400.
func (h *Handler) HandleNotifyGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[NotifyGroupRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	var errs []error
	for i, item := range *req {
		targets := make([]models.GroupTarget, 0, len(item.GroupIDArray))
		for _, t := range item.GroupIDArray {
			targets = append(targets, models.GroupTarget{GroupName: t.GroupName, Data: t.Data})
		}
		if err := h.groups.EmitGroups(ctx, models.Operation(item.Operation), targets); err != nil {
			h.logger.WarnContext(ctx, "notify group failed",
				"request_id", requestID,
				"item", i,
				"operation", item.Operation,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		httputil.WriteStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteStatus(w, http.StatusOK, "Update Successfully")
}

// HandleChanges handles POST /changes: a single change or a list of changes is
// matched against the registry and broadcast. Responds 202 with a summary.
func (h *Handler) HandleChanges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBatchBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read body"))
		return
	}
	batch, err := models.DecodeChangeBatch(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events := make([]models.ChangeEvent, 0, len(batch))
	for _, wire := range batch {
		event, err := wire.Event()
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		events = append(events, event)
	}

	summary, err := h.dispatcher.Dispatch(ctx, events)
	if err != nil {
		h.logger.ErrorContext(ctx, "change batch failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "change batch dispatched",
		"request_id", requestID,
		"events", summary.Events,
		"outcomes", summary.Outcomes,
		"broadcast_failures", summary.BroadcastFailures,
	)
	httputil.WriteJSON(w, http.StatusAccepted, summary)
}
