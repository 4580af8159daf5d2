package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestHandler_NotFound(t *testing.T) {
	h := New()

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	rec := httptest.NewRecorder()

	h.NotFound(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeError(t, rec)
	assert.Equal(t, "NOT_FOUND", body.Code)
	assert.Equal(t, "resource not found", body.Message)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := New()

	req := httptest.NewRequest(http.MethodPut, "/api/generate-key", nil)
	rec := httptest.NewRecorder()

	h.MethodNotAllowed(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, rec).Code)
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Key string `json:"key"`
	}

	t.Run("valid", func(t *testing.T) {
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"key":"abc"}`))
		require.NoError(t, decodeJSON(req, &p))
		assert.Equal(t, "abc", p.Key)
	})

	t.Run("empty body is zero value", func(t *testing.T) {
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		require.NoError(t, decodeJSON(req, &p))
		assert.Empty(t, p.Key)
	})

	t.Run("malformed", func(t *testing.T) {
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"key":`))
		assert.Error(t, decodeJSON(req, &p))
	})

	t.Run("too large", func(t *testing.T) {
		var p payload
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"key":"`+strings.Repeat("a", 64)+`"}`))
		req.Body = http.MaxBytesReader(rec, req.Body, 16)
		assert.ErrorIs(t, decodeJSON(req, &p), errBodyTooLarge)
	})
}
