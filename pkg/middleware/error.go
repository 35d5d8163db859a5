package middleware

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/context"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing"
)

// MetaCode is the httperror meta key that overrides the machine error code.
const MetaCode = "code"

type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type ErrorResponse struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// Error renders every error as {"error":{"code","message"},"request_id"}.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		if he, ok := err.(*echo.HTTPError); ok {
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		}

		if httperror.IsHTTPError(err) {
			httperr := httperror.ToHTTPError(err)
			status = httperror.GetStatusCode(err)
			message = httperr.Error()
			if httperr.Meta != nil {
				meta = httperr.Meta
			}
		}

		code := CodeForStatus(status)
		if override, ok := meta[MetaCode].(string); ok && override != "" {
			code = override
			delete(meta, MetaCode)
		}

		log := logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"status": status,
			"code":   code,
		})
		if status >= http.StatusInternalServerError {
			log.Error("api is returning an error")
		} else {
			log.Debug("api is returning a client error")
		}

		_ = c.JSON(status, ErrorResponse{
			Error: ErrorBody{
				Code:    code,
				Message: message,
				Meta:    meta,
			},
			RequestID: context.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
		})
	}
}

// CodeForStatus maps an HTTP status to the default machine error code.
func CodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	}
	if status >= http.StatusInternalServerError {
		return "internal_error"
	}
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}
