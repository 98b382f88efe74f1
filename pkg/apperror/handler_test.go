package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHandler(t *testing.T, method string, err error) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/api/v1/ci-types", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	HTTPErrorHandler(slog.Default())(err, c)

	if method == http.MethodHead {
		return rec, nil
	}
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp["error"].(map[string]any)
}

func TestHTTPErrorHandler_AppError(t *testing.T) {
	rec, body := runHandler(t, http.MethodGet, NewValidationErrors("bad", []string{"/a: required"}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "validation_error", body["code"])
	assert.NotNil(t, body["details"])
}

func TestHTTPErrorHandler_WrappedAppError(t *testing.T) {
	rec, body := runHandler(t, http.MethodGet, fmt.Errorf("create: %w", NewConflict("dup")))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", body["code"])
	assert.Equal(t, "dup", body["message"])
}

func TestHTTPErrorHandler_EchoStringErrors(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusBadRequest, "bad_request"},
		{http.StatusUnauthorized, "unauthorized"},
		{http.StatusForbidden, "forbidden"},
		{http.StatusNotFound, "not_found"},
		{http.StatusConflict, "conflict"},
		{http.StatusUnprocessableEntity, "validation_error"},
		{http.StatusTooManyRequests, "rate_limited"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec, body := runHandler(t, http.MethodGet, echo.NewHTTPError(tt.status, "msg"))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, "msg", body["message"])
		})
	}
}

func TestHTTPErrorHandler_EchoStructuredError(t *testing.T) {
	rec, body := runHandler(t, http.MethodGet, ErrForbidden.ToEchoError())

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", body["code"])
}

func TestHTTPErrorHandler_UnknownError(t *testing.T) {
	rec, body := runHandler(t, http.MethodGet, errors.New("secret detail"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", body["code"])
	assert.NotContains(t, body["message"], "secret")
}

func TestHTTPErrorHandler_Head(t *testing.T) {
	rec, _ := runHandler(t, http.MethodHead, ErrNotFound)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}
