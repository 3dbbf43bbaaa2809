package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"beacon/internal/filter"
	"beacon/internal/schema"
	"beacon/internal/subscription/metrics"
	"beacon/internal/subscription/models"
	dErrors "beacon/pkg/domain-errors"
	"beacon/pkg/platform/sentinel"
	"beacon/pkg/requestcontext"
)

const maxExpandPaths = 16

// Store is the registry backing the service.
type Store interface {
	Upsert(ctx context.Context, interest models.Interest) error
	Remove(ctx context.Context, kind, id string) (bool, error)
	Get(ctx context.Context, kind, id string) (models.Interest, error)
	Snapshot(ctx context.Context, kind string) ([]models.Interest, error)
	CountByKind() map[string]int
}

// Catalog is the schema capability the service validates against.
type Catalog interface {
	schema.Resolver
	HasKind(kind string) bool
	Relation(kind, field string) (string, bool)
}

// Service registers and removes interests. Filters are compiled once here; a
// filter that does not compile is rejected rather than stored.
type Service struct {
	store      Store
	catalog    Catalog
	typecaster *filter.Typecaster
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(store Store, catalog Catalog, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	s := &Service{store: store, catalog: catalog}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.typecaster = filter.NewTypecaster(catalog, filter.WithCoercionHook(func(kind, path string, err error) {
		s.metrics.IncrementCoercionFailure(kind)
		s.logger.Debug("filter value left uncoerced", "kind", kind, "field", path, "error", err)
	}))
	return s, nil
}

// Subscribe validates and stores an interest, replacing any previous registration
// for (kind, id).
func (s *Service) Subscribe(ctx context.Context, kind, id string, desc models.Descriptor) (models.Interest, error) {
	kind = strings.TrimSpace(kind)
	id = strings.TrimSpace(id)
	if kind == "" {
		return models.Interest{}, dErrors.New(dErrors.CodeValidation, "model is required")
	}
	if id == "" {
		return models.Interest{}, dErrors.New(dErrors.CodeValidation, "uid is required")
	}
	if !s.catalog.HasKind(kind) {
		s.metrics.IncrementRejection(kind)
		return models.Interest{}, dErrors.New(dErrors.CodeValidation, "unknown model "+kind)
	}
	if err := s.validateExpand(kind, desc.Expand); err != nil {
		s.metrics.IncrementRejection(kind)
		return models.Interest{}, err
	}

	compiled, err := filter.Compile(s.typecaster, kind, desc.Filter)
	if err != nil {
		s.metrics.IncrementRejection(kind)
		s.logger.WarnContext(ctx, "subscription rejected",
			"request_id", requestcontext.RequestID(ctx),
			"kind", kind,
			"uid", id,
			"error", err,
		)
		return models.Interest{}, err
	}
	if desc.Filter == nil {
		desc.Filter = map[string]any{}
	}

	interest := models.Interest{
		Kind:         kind,
		ID:           id,
		Descriptor:   desc,
		Compiled:     compiled,
		RegisteredAt: requestcontext.Now(ctx),
	}
	if err := s.store.Upsert(ctx, interest); err != nil {
		return models.Interest{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store subscription")
	}
	s.metrics.IncrementRegistration(kind)
	s.refreshActive(kind)

	s.logger.InfoContext(ctx, "subscription registered",
		"request_id", requestcontext.RequestID(ctx),
		"kind", kind,
		"uid", id,
		"expand", desc.Expand,
		"count_only", desc.CountOnly,
	)
	return interest, nil
}

// Unsubscribe removes (kind, id). Removing an unknown interest is not an error.
func (s *Service) Unsubscribe(ctx context.Context, kind, id string) error {
	removed, err := s.store.Remove(ctx, kind, id)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove subscription")
	}
	if removed {
		s.metrics.IncrementRemoval(kind)
		s.refreshActive(kind)
		s.logger.InfoContext(ctx, "subscription removed",
			"request_id", requestcontext.RequestID(ctx),
			"kind", kind,
			"uid", id,
		)
	}
	return nil
}

// Get returns a copy of a registered interest.
func (s *Service) Get(ctx context.Context, kind, id string) (models.Interest, error) {
	interest, err := s.store.Get(ctx, kind, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Interest{}, dErrors.New(dErrors.CodeNotFound, "subscription not found")
		}
		return models.Interest{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subscription")
	}
	return interest, nil
}

// Interests returns a snapshot of the interests registered for kind.
func (s *Service) Interests(ctx context.Context, kind string) ([]models.Interest, error) {
	return s.store.Snapshot(ctx, kind)
}

// ForEach calls fn for every interest of kind registered at the time of the call.
// fn may subscribe or unsubscribe. Iteration stops at the first error.
func (s *Service) ForEach(ctx context.Context, kind string, fn func(models.Interest) error) error {
	interests, err := s.store.Snapshot(ctx, kind)
	if err != nil {
		return err
	}
	for _, interest := range interests {
		if err := fn(interest); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns the number of interests per kind.
func (s *Service) Stats() map[string]int {
	return s.store.CountByKind()
}

// Typecaster exposes the service's typecaster so record payloads are coerced
// with the same rules as filters.
func (s *Service) Typecaster() *filter.Typecaster {
	return s.typecaster
}

func (s *Service) validateExpand(kind string, paths []string) error {
	if len(paths) > maxExpandPaths {
		return dErrors.New(dErrors.CodeValidation, "too many populate paths")
	}
	for _, path := range paths {
		current := kind
		for _, segment := range strings.Split(path, ".") {
			next, ok := s.catalog.Relation(current, segment)
			if !ok {
				return dErrors.New(dErrors.CodeValidation, "cannot populate "+path+" on "+kind)
			}
			current = next
		}
	}
	return nil
}

func (s *Service) refreshActive(kind string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SetActive(kind, s.store.CountByKind()[kind])
}
