package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/context"
)

func newTestEcho() *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = Error(logger)
	e.Use(Context())
	e.Use(Logger(logger))
	return e
}

func TestContext_PropagatesIDs(t *testing.T) {
	e := newTestEcho()
	var gotRequestID, gotProjectID string
	e.GET("/ping", func(c echo.Context) error {
		gotRequestID = context.GetRequestID(c.Request().Context())
		gotProjectID = context.GetProjectID(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-123")
	req.Header.Set(HeaderProjectID, "proj-9")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "req-123", gotRequestID)
	assert.Equal(t, "proj-9", gotProjectID)
	assert.Equal(t, "req-123", rec.Header().Get(echo.HeaderXRequestID))
}

func TestContext_GeneratesRequestID(t *testing.T) {
	e := newTestEcho()
	e.GET("/ping", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 36)
}

func TestError_Envelope(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"http error", httperror.NewHTTPError(http.StatusNotFound, "rule r1 not found"), http.StatusNotFound, "not_found"},
		{"code override", httperror.NewHTTPError(http.StatusInternalServerError, "duplicate check failed").AddMetaValue(MetaCode, "duplicate_check_failed"), http.StatusInternalServerError, "duplicate_check_failed"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
		{"echo error", echo.NewHTTPError(http.StatusBadRequest, "bad json"), http.StatusBadRequest, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEcho()
			e.GET("/fail", func(c echo.Context) error { return tt.err })

			req := httptest.NewRequest(http.MethodGet, "/fail", nil)
			req.Header.Set(echo.HeaderXRequestID, "req-err")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
			assert.Equal(t, "req-err", body.RequestID)
			assert.NotContains(t, body.Error.Meta, MetaCode)
		})
	}
}

func TestCodeForStatus(t *testing.T) {
	assert.Equal(t, "internal_error", CodeForStatus(http.StatusBadGateway))
	assert.Equal(t, "too_many_requests", CodeForStatus(http.StatusTooManyRequests))
}

func TestRequireProject(t *testing.T) {
	e := newTestEcho()
	g := e.Group("/api", RequireProject())
	g.GET("/ping", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bad_request", body.Error.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set(HeaderProjectID, "p1")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIsQuiet(t *testing.T) {
	assert.True(t, isQuiet("/api/v1/health/live"))
	assert.True(t, isQuiet("/metrics"))
	assert.False(t, isQuiet("/api/v1/orders/evaluate"))
}
