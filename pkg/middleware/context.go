package middleware

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/context"
)

// HeaderProjectID is the header carrying the caller's project scope
const HeaderProjectID = "X-Project-ID"

// Context stores the request id and project id on the request context and
// echoes the request id back to the caller.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := context.WithScope(req.Context(), context.Scope{
				RequestID: requestID,
				ProjectID: strings.TrimSpace(req.Header.Get(HeaderProjectID)),
				Method:    req.Method,
				Route:     req.URL.Path,
				RemoteIP:  c.RealIP(),
			})
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// RequireProject rejects requests without a project scope.
func RequireProject() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if context.GetProjectID(c.Request().Context()) == "" {
				return httperror.NewHTTPErrorf(http.StatusBadRequest, "%s header is required", HeaderProjectID)
			}
			return next(c)
		}
	}
}
