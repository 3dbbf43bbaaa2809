// Package testutil provides common test utilities for handler and integration tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewJSONRequest builds a request with a JSON body. Strings and byte slices are
// sent as-is so tests can post malformed payloads; anything else is marshaled.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err, "failed to marshal request body")
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DoRequest executes a request against a handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// UnmarshalResponse decodes the response body into T.
func UnmarshalResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) *T {
	t.Helper()
	var result T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result), "failed to unmarshal response: %s", rr.Body.String())
	return &result
}

// AssertStatusMessage checks a {status, message} envelope and that its status
// matches the HTTP status.
func AssertStatusMessage(t *testing.T, rr *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	body := UnmarshalResponse[struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	}](t, rr)
	assert.Equal(t, status, rr.Code, "unexpected status code")
	assert.Equal(t, status, body.Status, "envelope status")
	if message != "" {
		assert.Contains(t, body.Message, message)
	}
}

// AssertErrorCode checks an {error, error_description} response.
func AssertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	body := UnmarshalResponse[map[string]string](t, rr)
	assert.Equal(t, status, rr.Code, "unexpected status code")
	assert.Equal(t, code, (*body)["error"], "unexpected error code")
}
