package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"beacon/internal/presence/metrics"
	"beacon/internal/presence/models"
	dErrors "beacon/pkg/domain-errors"
	"beacon/pkg/platform/sentinel"
	"beacon/pkg/requestcontext"
)

// DefaultRoomPrefix marks rooms that carry unread counters for a
// practice/patient pair.
const DefaultRoomPrefix = "unread-count"

// Store persists presence flags.
type Store interface {
	SetOnline(ctx context.Context, key models.Key, online bool) error
	Get(ctx context.Context, key models.Key) (bool, error)
}

// Tracker flips a patient's presence when a connection joins or leaves one of the
// reserved rooms. Other rooms are ignored.
type Tracker struct {
	store   Store
	prefix  string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Tracker)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// WithRoomPrefix overrides DefaultRoomPrefix.
func WithRoomPrefix(prefix string) Option {
	return func(t *Tracker) {
		if p := strings.TrimSpace(prefix); p != "" {
			t.prefix = p
		}
	}
}

func New(store Store, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	t := &Tracker{store: store, prefix: DefaultRoomPrefix}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t, nil
}

// IsPresenceRoom reports whether room is the reserved prefix itself or starts
// with the prefix followed by "-".
func (t *Tracker) IsPresenceRoom(room string) bool {
	return room == t.prefix || strings.HasPrefix(room, t.prefix+"-")
}

// Join marks the patient online when room is reserved and both ids are set.
// It reports whether presence was touched.
func (t *Tracker) Join(ctx context.Context, room, practice, patient string) (bool, error) {
	return t.toggle(ctx, room, practice, patient, true)
}

// Leave mirrors Join, marking the patient offline.
func (t *Tracker) Leave(ctx context.Context, room, practice, patient string) (bool, error) {
	return t.toggle(ctx, room, practice, patient, false)
}

// Online returns the current flag. Keys never seen are offline.
func (t *Tracker) Online(ctx context.Context, practice, patient string) (models.State, error) {
	key, err := models.NewKey(practice, patient)
	if err != nil {
		return models.State{}, err
	}
	online, err := t.store.Get(ctx, key)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return models.State{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read presence")
	}
	return models.State{Practice: key.Practice, Patient: key.Patient, Online: online}, nil
}

func (t *Tracker) toggle(ctx context.Context, room, practice, patient string, online bool) (bool, error) {
	if !t.IsPresenceRoom(room) {
		return false, nil
	}
	key, err := models.NewKey(practice, patient)
	if err != nil {
		// reserved room joined without both ids: membership only
		return false, nil
	}
	if err := t.store.SetOnline(ctx, key, online); err != nil {
		t.metrics.IncrementFailure()
		t.logger.WarnContext(ctx, "failed to update presence",
			"connection_id", requestcontext.ConnectionID(ctx),
			"room", room,
			"practice", key.Practice,
			"patient", key.Patient,
			"online", online,
			"error", err,
		)
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to update presence")
	}
	t.metrics.IncrementTransition(online)
	t.logger.DebugContext(ctx, "presence updated",
		"connection_id", requestcontext.ConnectionID(ctx),
		"practice", key.Practice,
		"patient", key.Patient,
		"online", online,
	)
	return true, nil
}
