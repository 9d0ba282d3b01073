// Package api exposes the character media aggregation engine over HTTP for
// the bot's companion site.
package api

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soratane/chardex-go/internal/charstore"
	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/logging"
	"github.com/soratane/chardex-go/internal/mediacache"
)

// Controller wires the HTTP routes to the character catalog and the media
// cache.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	store    charstore.Store
	cache    *mediacache.Cache
	settings *conf.Settings
	logger   *slog.Logger
	registry *prometheus.Registry
}

// New creates the API controller and registers all routes on e. registry may
// be nil to disable the metrics endpoint.
func New(e *echo.Echo, store charstore.Store, cache *mediacache.Cache, settings *conf.Settings, registry *prometheus.Registry) *Controller {
	c := &Controller{
		Echo:     e,
		store:    store,
		cache:    cache,
		settings: settings,
		logger:   logging.ForService("api"),
		registry: registry,
	}

	c.Group = e.Group("/api/v1")
	c.Group.Use(middleware.Recover())
	c.Group.Use(middleware.CORS())
	c.Group.Use(middleware.BodyLimit("1M"))
	c.Group.Use(c.loggingMiddleware())

	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/characters/search", c.SearchCharacters)
	c.Group.GET("/characters/:id/media", c.GetCharacterMedia)

	c.Echo.GET("/healthz", c.Healthz)
	if c.registry != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})))
	}
}

// Healthz reports liveness for load balancers and uptime checks.
func (c *Controller) Healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": c.settings.Version,
	})
}

// loggingMiddleware logs one structured line per API request.
func (c *Controller) loggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			c.logger.Info("API request",
				"method", ctx.Request().Method,
				"path", ctx.Request().URL.Path,
				"status", ctx.Response().Status,
				"ip", ctx.RealIP(),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return err
		}
	}
}

// ErrorResponse is the JSON error body returned by all API endpoints.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// handleError logs err with a correlation ID and writes the JSON error body.
func (c *Controller) handleError(ctx echo.Context, err error, message string, code int) error {
	resp := &ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID(),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	c.logger.Error("API Error",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"error", resp.Error,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP(),
	)
	return ctx.JSON(code, resp)
}

// correlationID generates a short random identifier for error tracking.
func correlationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}
