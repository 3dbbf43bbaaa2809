package handler

import (
	"encoding/json"
	"strings"

	dErrors "beacon/pkg/domain-errors"
	platformStrings "beacon/pkg/platform/strings"
)

const (
	maxModelLength = 64
	maxUIDLength   = 256
)

// AddSubscriptionRequest is the body of POST /addSubscription.
type AddSubscriptionRequest struct {
	Filter   map[string]any  `json:"filter"`
	Model    string          `json:"model"`
	UID      string          `json:"uid"`
	Populate json.RawMessage `json:"populate,omitempty"`
	Count    bool            `json:"count,omitempty"`

	expand []string
}

// Validate implements httputil.Validatable.
func (r *AddSubscriptionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Model = strings.TrimSpace(r.Model)
	r.UID = strings.TrimSpace(r.UID)
	if len(r.Model) > maxModelLength {
		return dErrors.New(dErrors.CodeValidation, "model is too long")
	}
	if len(r.UID) > maxUIDLength {
		return dErrors.New(dErrors.CodeValidation, "uid is too long")
	}
	if r.Model == "" {
		return dErrors.New(dErrors.CodeValidation, "model is required")
	}
	if r.UID == "" {
		return dErrors.New(dErrors.CodeValidation, "uid is required")
	}
	expand, err := parsePopulate(r.Populate)
	if err != nil {
		return err
	}
	r.expand = expand
	return nil
}

// Expand returns the parsed populate paths.
func (r *AddSubscriptionRequest) Expand() []string {
	return r.expand
}

// parsePopulate accepts "a,b", ["a", "b"], [{"path": "a"}] or {"path": "a"}.
func parsePopulate(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid populate")
	}

	var paths []string
	add := func(p string) {
		paths = append(paths, platformStrings.SplitList(p, ", ")...)
	}
	var walk func(any) error
	walk = func(v any) error {
		switch x := v.(type) {
		case string:
			add(x)
		case []any:
			for _, e := range x {
				if err := walk(e); err != nil {
					return err
				}
			}
		case map[string]any:
			p, ok := x["path"].(string)
			if !ok {
				return dErrors.New(dErrors.CodeValidation, "populate objects need a path")
			}
			add(p)
		default:
			return dErrors.New(dErrors.CodeValidation, "populate must be a string or a list")
		}
		return nil
	}
	if err := walk(v); err != nil {
		return nil, err
	}
	return platformStrings.DedupeAndTrim(paths), nil
}
