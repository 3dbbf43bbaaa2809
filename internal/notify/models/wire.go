package models

import (
	"bytes"
	"encoding/json"

	dErrors "beacon/pkg/domain-errors"
)

// ChangeWire is the JSON form of a change event, shared by POST /changes and
// the change feed.
type ChangeWire struct {
	Model     string         `json:"model"`
	Operation string         `json:"operation"`
	Data      map[string]any `json:"data"`
	OldData   map[string]any `json:"oldData,omitempty"`
}

// Event converts the wire form, normalising operation synonyms.
func (w ChangeWire) Event() (ChangeEvent, error) {
	op, err := ParseOperation(w.Operation)
	if err != nil {
		return ChangeEvent{}, err
	}
	event := ChangeEvent{Kind: w.Model, Operation: op, NewData: w.Data, OldData: w.OldData}
	if err := event.Validate(); err != nil {
		return ChangeEvent{}, err
	}
	return event, nil
}

// DecodeChangeBatch decodes either a single change or a list of changes. Numbers
// are kept as json.Number.
func DecodeChangeBatch(raw []byte) ([]ChangeWire, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "empty change batch")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if raw[0] == '[' {
		var batch []ChangeWire
		if err := dec.Decode(&batch); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid change batch")
		}
		return batch, nil
	}
	var single ChangeWire
	if err := dec.Decode(&single); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid change")
	}
	return []ChangeWire{single}, nil
}
