package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/metrics"
)

// AssignRequestID reuses an incoming X-Request-Id or mints a UUID, echoes it back
// and attaches it to the request logger.
func AssignRequestID(log *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			c.Set(ctxRequestID, id)
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			c.SetRequest(req.WithContext(log.WithRequestID(req.Context(), id)))
			return next(c)
		}
	}
}

// AccessLog logs request.complete once the handler chain returns and feeds
// the HTTP metrics. Errors are resolved through c.Error first so the logged
// status matches what the client received.
func AccessLog(log *logging.Logger, m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)
			req := c.Request()
			status := c.Response().Status
			m.Observe(req.Method, c.Path(), status, elapsed)

			ctx := log.WithFields(req.Context(), map[string]any{
				"method":      req.Method,
				"path":        req.URL.Path,
				"route":       c.Path(),
				"status":      status,
				"duration_ms": elapsed.Milliseconds(),
				"bytes_out":   c.Response().Size,
				"remote_ip":   c.RealIP(),
			})
			if status >= 500 {
				log.Error(ctx, "request.complete", nil)
			} else {
				log.Info(ctx, "request.complete")
			}
			return nil
		}
	}
}
