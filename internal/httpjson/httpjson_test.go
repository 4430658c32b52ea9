package httpjson

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrite(t *testing.T) {
	rr := httptest.NewRecorder()
	Write(rr, http.StatusCreated, map[string]int{"n": 1})

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":1}`, rr.Body.String())
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusBadRequest, "invalid json")
	assert.JSONEq(t, `{"error":"invalid json"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	WriteCodedError(rr, http.StatusForbidden, "permission_denied", "nope")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.JSONEq(t, `{"error":"nope","code":"permission_denied"}`, rr.Body.String())
}

func TestWrite_NilBody(t *testing.T) {
	rr := httptest.NewRecorder()
	Write(rr, http.StatusAccepted, nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Empty(t, rr.Body.String())
}
