package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors:
// - ErrNotFound: record, presence entry or subscription does not exist
// - ErrUnavailable: a backing store or broker cannot be reached
// - ErrClosed: the component was shut down
//
// Validation failures (bad filters, malformed payloads) use pkg/domain-errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
	ErrClosed      = errors.New("closed")
)
