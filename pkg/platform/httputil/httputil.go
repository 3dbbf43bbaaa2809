// Package httputil holds the JSON response helpers shared by handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "beacon/pkg/domain-errors"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates err into the JSON error envelope. Internal errors never
// leak their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		body["error_description"] = err.Error()
	}
	WriteJSON(w, dErrors.HTTPStatus(code), body)
}

// MaxBodyBytes caps the JSON bodies DecodeJSON reads.
const MaxBodyBytes = 1 << 20

// DecodeJSON decodes at most MaxBodyBytes of the request body into T.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return v, dErrors.Wrap(err, dErrors.CodeBadRequest, "request body too large")
		}
		return v, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body")
	}
	return v, nil
}

// Validatable is implemented by request bodies that normalise and check
// themselves after decoding.
type Validatable interface {
	Validate() error
}

// DecodeAndPrepare decodes the body into T and validates it. On failure the error
// has already been written as a {status, message} envelope and ok is false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req, err := DecodeJSON[T](w, r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"request_id", requestID,
			"error", err,
		)
		WriteStatusError(w, err)
		return nil, false
	}
	if err := PT(&req).Validate(); err != nil {
		logger.WarnContext(ctx, "invalid request body",
			"request_id", requestID,
			"error", err,
		)
		WriteStatusError(w, err)
		return nil, false
	}
	return &req, true
}

// StatusMessage is the {status, message} envelope used by the public endpoints.
type StatusMessage struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// WriteStatus writes a {status, message} envelope with a matching HTTP status.
func WriteStatus(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, StatusMessage{Status: status, Message: message})
}

// WriteStatusError is WriteError for the {status, message} envelope.
func WriteStatusError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.HTTPStatus(code)
	message := err.Error()
	if code == dErrors.CodeInternal {
		message = http.StatusText(status)
	}
	WriteStatus(w, status, message)
}
