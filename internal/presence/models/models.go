package models

import (
	"strings"

	dErrors "beacon/pkg/domain-errors"
)

// Key identifies a patient within a practice.
type Key struct {
	Practice string
	Patient  string
}

// keySeparator joins the ids in storage keys and may not appear inside them.
const keySeparator = ":"

// NewKey trims and validates both endpoints.
func NewKey(practice, patient string) (Key, error) {
	k := Key{Practice: strings.TrimSpace(practice), Patient: strings.TrimSpace(patient)}
	if k.Practice == "" || k.Patient == "" {
		return Key{}, dErrors.New(dErrors.CodeValidation, "practice and patient are required")
	}
	if strings.Contains(k.Practice, keySeparator) || strings.Contains(k.Patient, keySeparator) {
		return Key{}, dErrors.New(dErrors.CodeValidation, "practice and patient must not contain ':'")
	}
	return k, nil
}

// State is the last known presence of a key.
type State struct {
	Practice string `json:"practice"`
	Patient  string `json:"patient"`
	Online   bool   `json:"online"`
}
