package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"beacon/internal/notify"
	"beacon/internal/notify/metrics"
	"beacon/internal/notify/models"
	"beacon/internal/notify/ports"
	"beacon/pkg/platform/sentinel"
)

const defaultBroadcastConcurrency = 8

// Broadcaster resolves the payload of each outcome and emits it to the room named
// by the interest. Delivery is best-effort: a failed outcome never blocks or
// cancels the others.
type Broadcaster struct {
	records     ports.RecordSource
	emitter     ports.Emitter
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type BroadcasterOption func(*Broadcaster)

func WithBroadcasterLogger(logger *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

func WithBroadcasterMetrics(m *metrics.Metrics) BroadcasterOption {
	return func(b *Broadcaster) {
		b.metrics = m
	}
}

// WithConcurrency bounds the number of outcomes resolved at once.
func WithConcurrency(n int) BroadcasterOption {
	return func(b *Broadcaster) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBroadcaster constructs a Broadcaster that fetches records from records and
// emits through emitter.
func NewBroadcaster(records ports.RecordSource, emitter ports.Emitter, opts ...BroadcasterOption) (*Broadcaster, error) {
	if records == nil {
		return nil, errors.New("record source is required")
	}
	if emitter == nil {
		return nil, errors.New("emitter is required")
	}
	b := &Broadcaster{records: records, emitter: emitter, concurrency: defaultBroadcastConcurrency}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b, nil
}

// Broadcast delivers every outcome and returns the failures, each wrapping
// notify.ErrBroadcastFailure. newData is the event's raw payload, used when the
// record can no longer be fetched.
func (b *Broadcaster) Broadcast(ctx context.Context, kind string, newData map[string]any, outcomes []models.MatchOutcome) []error {
	if len(outcomes) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { b.metrics.ObserveBroadcastLatency(time.Since(start)) }()

	var (
		mu       sync.Mutex
		failures []error
	)
	// no errgroup.WithContext: one failed outcome must not cancel the rest
	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for _, outcome := range outcomes {
		g.Go(func() error {
			if err := b.deliver(ctx, kind, newData, outcome); err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				b.logger.WarnContext(ctx, "broadcast failed",
					"kind", kind,
					"interest_id", outcome.InterestID,
					"operation", outcome.Operation,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

func (b *Broadcaster) deliver(ctx context.Context, kind string, newData map[string]any, outcome models.MatchOutcome) error {
	data, err := b.payload(ctx, kind, newData, outcome)
	if err != nil {
		return err
	}
	msg := models.Message{Data: data, Operation: outcome.Operation, UID: outcome.InterestID}
	if err := b.emitter.EmitToRoom(ctx, outcome.InterestID, models.EventData, msg); err != nil {
		b.metrics.IncrementBroadcastFailure(kind, "emit")
		return fmt.Errorf("%w: emit to %s: %w", notify.ErrBroadcastFailure, outcome.InterestID, err)
	}
	return nil
}

func (b *Broadcaster) payload(ctx context.Context, kind string, newData map[string]any, outcome models.MatchOutcome) (any, error) {
	if outcome.CountOnly {
		n, err := b.records.Count(ctx, kind, outcome.Filter)
		if err != nil {
			b.metrics.IncrementBroadcastFailure(kind, "count")
			return nil, fmt.Errorf("%w: count for %s: %w", notify.ErrBroadcastFailure, outcome.InterestID, err)
		}
		return models.CountPayload{Count: n}, nil
	}

	id, ok := models.RecordID(newData)
	if !ok {
		return AliasID(newData), nil
	}
	record, err := b.records.FetchByID(ctx, kind, id, outcome.Expand)
	if errors.Is(err, sentinel.ErrNotFound) {
		// deleted, or not yet visible to the store
		return AliasID(newData), nil
	}
	if err != nil {
		b.metrics.IncrementBroadcastFailure(kind, "fetch")
		return nil, fmt.Errorf("%w: fetch %v for %s: %w", notify.ErrBroadcastFailure, id, outcome.InterestID, err)
	}
	return AliasID(record), nil
}

// AliasID returns a shallow copy of data with "id" set from "_id".
func AliasID(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	if id, ok := data["_id"]; ok && id != nil {
		out["id"] = id
	}
	return out
}

// EmitGroups pushes pre-resolved payloads without matching or fetching. Every
// target is attempted; the returned error joins the failures.
func (b *Broadcaster) EmitGroups(ctx context.Context, op models.Operation, targets []models.GroupTarget) error {
	var errs []error
	for _, target := range targets {
		msg := models.Message{Data: AliasID(target.Data), Operation: op, UID: target.GroupName}
		if err := b.emitter.EmitToRoom(ctx, target.GroupName, models.EventData, msg); err != nil {
			b.metrics.IncrementBroadcastFailure("group", "emit")
			errs = append(errs, fmt.Errorf("%w: emit to %s: %w", notify.ErrBroadcastFailure, target.GroupName, err))
		}
	}
	return errors.Join(errs...)
}
