package domainerrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("field not in schema")
	err := Wrap(cause, CodeValidation, "invalid filter")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "invalid filter: field not in schema", err.Error())
	assert.True(t, HasCode(err, CodeValidation))
	assert.False(t, HasCode(err, CodeNotFound))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotFound, CodeOf(New(CodeNotFound, "missing")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeBadRequest:  http.StatusBadRequest,
		CodeValidation:  http.StatusBadRequest,
		CodeNotFound:    http.StatusNotFound,
		CodeUnavailable: http.StatusServiceUnavailable,
		CodeInternal:    http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), string(code))
	}
}
