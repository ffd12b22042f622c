package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/metrics"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/validation"
)

// bodyLimit leaves room for a portfolio album upload.
const bodyLimit = "25M"

// New builds the Echo instance with the shared middleware chain: panic
// recovery, request ids, access logging and the JSON error envelope.
func New(log *logging.Logger, m *metrics.HTTPMetrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(log)

	e.Use(echomw.Recover())
	e.Use(middleware.AssignRequestID(log))
	e.Use(middleware.AccessLog(log, m))
	e.Use(echomw.BodyLimit(bodyLimit))
	return e
}

// RegisterRoutes registers the unauthenticated operational routes: health,
// metrics and the uploaded files.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, metricsHandler http.Handler, upload config.UploadConfig) {
	e.GET("/health", handler.Health(db))
	if metricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(metricsHandler))
	}
	e.Static(upload.BaseURL, upload.Root)
}

// API returns the /api group behind the Redis rate limiter.
func API(e *echo.Echo, cfg config.RateLimitConfig, rdb *redis.Client, log *logging.Logger) *echo.Group {
	return e.Group("/api", middleware.RateLimit(cfg, rdb, log))
}
