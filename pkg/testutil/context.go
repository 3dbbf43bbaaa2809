package testutil

import (
	"net/http"

	"beacon/pkg/requestcontext"
)

// WithRequestID sets the request ID the request middleware would assign.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
