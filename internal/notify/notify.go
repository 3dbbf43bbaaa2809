// Package notify decides, for each change to a record, which registered
// interests gained, kept or lost the record, and pushes the result to the
// realtime room named after each interest.
//
// The pipeline is:
//
//	ChangeEvent → Processor (typecast + match) → []MatchOutcome → Broadcaster → rooms
//
// The Dispatcher in service ties the two stages together for batches arriving
// over HTTP or the change feed.
package notify

import "errors"

var (
	// ErrBroadcastFailure marks a payload that could not be resolved or emitted.
	// Broadcast failures are logged and never retried.
	ErrBroadcastFailure = errors.New("broadcast failure")
	// ErrInterestFailure marks an interest that could not be evaluated for an
	// event. Other interests are unaffected.
	ErrInterestFailure = errors.New("interest failure")
)
