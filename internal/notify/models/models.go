package models

import (
	"strings"

	"beacon/internal/filter"
	dErrors "beacon/pkg/domain-errors"
)

// Operation is what happened to a record, or, on an outcome, what the receiving
// interest should do with it.
type Operation string

const (
	OperationCreated Operation = "created"
	OperationUpdated Operation = "updated"
	OperationDeleted Operation = "deleted"
	// OperationRemoved tells an interest a record left its filter.
	OperationRemoved Operation = "removed"
)

// ParseOperation accepts the canonical names and the synonyms persistence
// notifiers use.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "created", "create", "insert", "inserted":
		return OperationCreated, nil
	case "updated", "update", "replace", "replaced":
		return OperationUpdated, nil
	case "deleted", "delete":
		return OperationDeleted, nil
	case "removed", "remove":
		return OperationRemoved, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown operation "+s)
}

// ChangeEvent is a single change to a record of Kind. OldData is set for updates
// and deletes when the notifier has the previous version.
type ChangeEvent struct {
	Kind      string
	Operation Operation
	NewData   map[string]any
	OldData   map[string]any
}

// Validate checks the fields the processor relies on.
func (e ChangeEvent) Validate() error {
	if strings.TrimSpace(e.Kind) == "" {
		return dErrors.New(dErrors.CodeValidation, "model is required")
	}
	switch e.Operation {
	case OperationCreated, OperationUpdated, OperationDeleted:
	default:
		return dErrors.New(dErrors.CodeValidation, "unsupported operation "+string(e.Operation))
	}
	if e.NewData == nil {
		return dErrors.New(dErrors.CodeValidation, "data is required")
	}
	return nil
}

// RecordID returns the record identifier from "_id" or "id".
func RecordID(data map[string]any) (any, bool) {
	if id, ok := data["_id"]; ok && id != nil {
		return id, true
	}
	if id, ok := data["id"]; ok && id != nil {
		return id, true
	}
	return nil, false
}

// MatchOutcome is the decision for one interest and one event.
type MatchOutcome struct {
	InterestID string
	Kind       string
	Operation  Operation
	CountOnly  bool
	Filter     filter.Compiled
	Expand     []string
}

// InterestFailure records an interest skipped for one event.
type InterestFailure struct {
	InterestID string
	Err        error
}

// Result is the processor's output for one event.
type Result struct {
	Outcomes []MatchOutcome
	Failures []InterestFailure
}

// Message is the payload of the outbound "data" event.
type Message struct {
	Data      any       `json:"data"`
	Operation Operation `json:"operation"`
	UID       string    `json:"uid"`
}

// CountPayload replaces the record for count-only interests.
type CountPayload struct {
	Count int64 `json:"count"`
}

// DispatchSummary aggregates a dispatched batch.
type DispatchSummary struct {
	Events            int `json:"events"`
	Rejected          int `json:"rejected"`
	Outcomes          int `json:"outcomes"`
	InterestFailures  int `json:"interest_failures"`
	BroadcastFailures int `json:"broadcast_failures"`
}

// EventData is the name of the outbound event carrying a Message.
const EventData = "data"

// GroupTarget is a pre-resolved delivery: Data is pushed to room GroupName as is.
type GroupTarget struct {
	GroupName string
	Data      map[string]any
}
