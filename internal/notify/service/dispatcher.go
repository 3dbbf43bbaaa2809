package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"beacon/internal/notify/metrics"
	"beacon/internal/notify/models"
	"beacon/internal/notify/ports"
	dErrors "beacon/pkg/domain-errors"
	"beacon/pkg/requestcontext"
)

const tracerName = "beacon/internal/notify"

// Dispatcher runs change batches through the processor and the broadcaster.
// Events are handled in order; within an event outcomes are delivered
// concurrently.
type Dispatcher struct {
	registry    ports.Registry
	processor   *Processor
	broadcaster *Broadcaster
	sink        ports.RecordSink
	tracer      trace.Tracer
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithRecordSink mirrors every accepted event into sink before broadcast.
func WithRecordSink(sink ports.RecordSink) Option {
	return func(d *Dispatcher) {
		d.sink = sink
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = t
	}
}

// New constructs a Dispatcher.
func New(registry ports.Registry, processor *Processor, broadcaster *Broadcaster, opts ...Option) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	if broadcaster == nil {
		return nil, errors.New("broadcaster is required")
	}
	d := &Dispatcher{registry: registry, processor: processor, broadcaster: broadcaster}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	return d, nil
}

// Dispatch processes and broadcasts a batch. Invalid events and per-interest or
// per-delivery failures are counted in the summary and logged; they do not stop
// the batch. Only a cancelled context ends it early.
func (d *Dispatcher) Dispatch(ctx context.Context, events []models.ChangeEvent) (models.DispatchSummary, error) {
	ctx, span := d.tracer.Start(ctx, "notify.Dispatch", trace.WithAttributes(
		attribute.Int("notify.batch_size", len(events)),
	))
	defer span.End()

	var summary models.DispatchSummary
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return summary, dErrors.Wrap(err, dErrors.CodeTimeout, "dispatch cancelled")
		}
		summary.Events++
		d.dispatchOne(ctx, event, &summary)
	}

	span.SetAttributes(
		attribute.Int("notify.outcomes", summary.Outcomes),
		attribute.Int("notify.rejected", summary.Rejected),
		attribute.Int("notify.broadcast_failures", summary.BroadcastFailures),
	)
	return summary, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, event models.ChangeEvent, summary *models.DispatchSummary) {
	ctx, span := d.tracer.Start(ctx, "notify.Event", trace.WithAttributes(
		attribute.String("notify.kind", event.Kind),
		attribute.String("notify.operation", string(event.Operation)),
	))
	defer span.End()
	d.metrics.IncrementEvent(event.Kind, string(event.Operation))

	interests, err := d.registry.Interests(ctx, event.Kind)
	if err != nil {
		summary.Rejected++
		span.RecordError(err)
		span.SetStatus(codes.Error, "registry unavailable")
		d.logger.ErrorContext(ctx, "failed to read registry",
			"request_id", requestcontext.RequestID(ctx),
			"kind", event.Kind,
			"error", err,
		)
		return
	}

	start := time.Now()
	result, err := d.processor.Process(ctx, event, interests)
	d.metrics.ObserveProcessLatency(time.Since(start))
	if err != nil {
		summary.Rejected++
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid event")
		d.logger.WarnContext(ctx, "change event rejected",
			"request_id", requestcontext.RequestID(ctx),
			"kind", event.Kind,
			"operation", event.Operation,
			"error", err,
		)
		return
	}

	for range result.Failures {
		d.metrics.IncrementInterestFailure(event.Kind)
	}
	for _, outcome := range result.Outcomes {
		d.metrics.IncrementOutcome(event.Kind, string(outcome.Operation))
	}
	summary.Outcomes += len(result.Outcomes)
	summary.InterestFailures += len(result.Failures)

	if err := d.mirror(ctx, event); err != nil {
		d.metrics.IncrementBroadcastFailure(event.Kind, "mirror")
		span.RecordError(err)
		d.logger.WarnContext(ctx, "failed to mirror change into record store",
			"request_id", requestcontext.RequestID(ctx),
			"kind", event.Kind,
			"operation", event.Operation,
			"error", err,
		)
	}

	failures := d.broadcaster.Broadcast(ctx, event.Kind, event.NewData, result.Outcomes)
	summary.BroadcastFailures += len(failures)

	span.SetAttributes(
		attribute.Int("notify.interests", len(interests)),
		attribute.Int("notify.outcomes", len(result.Outcomes)),
		attribute.Int("notify.interest_failures", len(result.Failures)),
		attribute.Int("notify.broadcast_failures", len(failures)),
	)
	if len(failures) > 0 {
		span.SetStatus(codes.Error, "partial broadcast")
	}
	d.logger.DebugContext(ctx, "change event dispatched",
		"request_id", requestcontext.RequestID(ctx),
		"kind", event.Kind,
		"operation", event.Operation,
		"interests", len(interests),
		"outcomes", len(result.Outcomes),
	)
}

func (d *Dispatcher) mirror(ctx context.Context, event models.ChangeEvent) error {
	if d.sink == nil {
		return nil
	}
	if event.Operation == models.OperationDeleted {
		id, ok := models.RecordID(event.NewData)
		if !ok {
			return nil
		}
		return d.sink.Delete(ctx, event.Kind, id)
	}
	return d.sink.Upsert(ctx, event.Kind, event.NewData)
}
