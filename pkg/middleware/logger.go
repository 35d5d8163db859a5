package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/context"
)

// quietPrefixes are health check and scrape paths logged at debug.
var quietPrefixes = []string{"/api/v1/health", "/metrics"}

// Logger writes one access log line per request once the error handler has
// rendered the response, so the logged status is the one the caller saw.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			scope := context.ScopeFrom(req.Context())

			log := logger.WithContext(req.Context()).WithFields(map[string]any{
				"request_id": scope.RequestID,
				"project_id": scope.ProjectID,
				"method":     req.Method,
				"route":      c.Path(),
				"status":     res.Status,
				"remote_ip":  scope.RemoteIP,
				"latency_ms": time.Since(start).Milliseconds(),
				"bytes_out":  res.Size,
				"user_agent": req.UserAgent(),
			})

			switch {
			case isQuiet(req.URL.Path):
				log.Debug("request")
			case res.Status >= http.StatusInternalServerError:
				log.Error("request failed")
			case res.Status >= http.StatusBadRequest:
				log.Warn("request rejected")
			default:
				log.Info("request")
			}
			return nil
		}
	}
}

func isQuiet(path string) bool {
	for _, prefix := range quietPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
