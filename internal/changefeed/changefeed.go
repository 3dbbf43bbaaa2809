// Package changefeed turns change feed records into dispatched change events.
//
// Each record value is a JSON change or a JSON list of changes, in the same
// shape POST /changes accepts. Payloads that cannot be decoded are logged and
// acknowledged; they would fail the same way on every redelivery.
package changefeed

import (
	"context"
	"errors"
	"log/slog"

	"beacon/internal/changefeed/metrics"
	"beacon/internal/notify/models"
	"beacon/internal/platform/kafka/consumer"
)

// Dispatcher runs a batch of change events.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []models.ChangeEvent) (models.DispatchSummary, error)
}

// Handler adapts change feed records to the dispatcher.
type Handler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// New constructs a change feed handler over dispatcher.
func New(dispatcher Dispatcher, opts ...Option) (*Handler, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	h := &Handler{dispatcher: dispatcher}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h, nil
}

// Handle decodes and dispatches one record. It returns an error only when the
// dispatch itself did not complete, which leaves the record uncommitted.
func (h *Handler) Handle(ctx context.Context, msg consumer.Message) error {
	h.metrics.IncrementRecords()
	logAttrs := []any{
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	}

	batch, err := models.DecodeChangeBatch(msg.Value)
	if err != nil {
		h.metrics.IncrementMalformed("batch")
		h.logger.WarnContext(ctx, "skipping malformed change batch", append(logAttrs, "error", err)...)
		return nil
	}

	events := make([]models.ChangeEvent, 0, len(batch))
	for i, wire := range batch {
		event, err := wire.Event()
		if err != nil {
			h.metrics.IncrementMalformed("event")
			h.logger.WarnContext(ctx, "skipping invalid change event",
				append(logAttrs, "index", i, "model", wire.Model, "error", err)...)
			continue
		}
		events = append(events, event)
	}
	if len(events) == 0 {
		return nil
	}

	h.metrics.AddEvents(len(events))
	summary, err := h.dispatcher.Dispatch(ctx, events)
	if err != nil {
		h.metrics.IncrementDispatchError()
		return err
	}
	h.logger.DebugContext(ctx, "change batch dispatched",
		append(logAttrs,
			"events", summary.Events,
			"outcomes", summary.Outcomes,
			"interest_failures", summary.InterestFailures,
			"broadcast_failures", summary.BroadcastFailures,
		)...)
	return nil
}
