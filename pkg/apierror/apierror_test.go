package apierror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	assert.Equal(t, "BAD_REQUEST: bad body", BadRequest("bad body", "").Error())
	assert.Equal(t, "BAD_REQUEST: bad body (field)", BadRequest("bad body", "field").Error())

	var nilErr *APIError
	assert.Equal(t, "", nilErr.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, "INTERNAL_ERROR", "unexpected", http.StatusInternalServerError)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
	assert.Equal(t, "INTERNAL_ERROR: unexpected", err.Error())
}
