package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"beacon/internal/filter"
	"beacon/internal/notify"
	"beacon/internal/notify/models"
	subModels "beacon/internal/subscription/models"
	dErrors "beacon/pkg/domain-errors"
)

// Processor classifies a change event against the interests of its kind.
// It is pure apart from logging.
type Processor struct {
	typecaster *filter.Typecaster
	logger     *slog.Logger
}

type ProcessorOption func(*Processor)

func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor constructs a Processor. The typecaster must use the same schema
// the interests were compiled against.
func NewProcessor(typecaster *filter.Typecaster, opts ...ProcessorOption) (*Processor, error) {
	if typecaster == nil {
		return nil, errors.New("typecaster is required")
	}
	p := &Processor{typecaster: typecaster}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Process returns, for each interest, whether the event adds, updates or removes
// the record from its view:
//
//   - new data matches: the event's own operation
//   - only old data matches: "updated" for count-only interests (the count
//     changed), "removed" otherwise
//   - neither matches: no outcome
//
// An interest whose filter cannot be evaluated is reported in Result.Failures
// and skipped. The error return is reserved for events that cannot be processed
// at all.
func (p *Processor) Process(ctx context.Context, event models.ChangeEvent, interests []subModels.Interest) (models.Result, error) {
	if err := event.Validate(); err != nil {
		return models.Result{}, err
	}
	newData, err := p.typecaster.Record(event.Kind, event.NewData)
	if err != nil {
		return models.Result{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid change data")
	}
	var oldData map[string]any
	if event.OldData != nil {
		oldData, err = p.typecaster.Record(event.Kind, event.OldData)
		if err != nil {
			return models.Result{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid previous change data")
		}
	}

	var result models.Result
	for _, interest := range interests {
		compiled, err := p.compiled(event.Kind, interest)
		if err != nil {
			result.Failures = append(result.Failures, models.InterestFailure{
				InterestID: interest.ID,
				Err:        fmt.Errorf("%w: %s: %w", notify.ErrInterestFailure, interest.ID, err),
			})
			p.logger.WarnContext(ctx, "interest skipped",
				"kind", event.Kind,
				"interest_id", interest.ID,
				"error", err,
			)
			continue
		}

		var op models.Operation
		switch {
		case compiled.Matches(newData):
			op = event.Operation
		case oldData != nil && compiled.Matches(oldData):
			op = models.OperationRemoved
			if interest.Descriptor.CountOnly {
				op = models.OperationUpdated
			}
		default:
			continue
		}
		result.Outcomes = append(result.Outcomes, models.MatchOutcome{
			InterestID: interest.ID,
			Kind:       event.Kind,
			Operation:  op,
			CountOnly:  interest.Descriptor.CountOnly,
			Filter:     compiled,
			Expand:     append([]string(nil), interest.Descriptor.Expand...),
		})
	}
	return result, nil
}

// compiled returns the interest's compiled filter, compiling on the spot for
// interests stored without one.
func (p *Processor) compiled(kind string, interest subModels.Interest) (filter.Compiled, error) {
	if interest.Compiled.Expr != nil {
		return interest.Compiled, nil
	}
	return filter.Compile(p.typecaster, kind, interest.Descriptor.Filter)
}
