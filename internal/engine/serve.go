package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/soratane/chardex-go/internal/api"
	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/logging"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// termination signal.
const shutdownTimeout = 10 * time.Second

// Serve assembles the pipeline and runs the HTTP API until SIGINT or
// SIGTERM.
func Serve(settings *conf.Settings) error {
	engine, err := New(settings)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			logging.Error("Engine shutdown error", "error", cerr)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.New(e, engine.Store, engine.Cache, settings, engine.Registry)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	logger := logging.ForService("server")

	if settings.Main.Log.Enabled {
		fileLogger, closeLog, lerr := logging.NewFileLogger(settings.Main.Log.Path, "server", slog.LevelInfo)
		if lerr != nil {
			// Continue on stdout rather than failing startup.
			logger.Warn("Failed to initialize file logging", "path", settings.Main.Log.Path, "error", lerr)
		} else {
			defer func() {
				if cerr := closeLog(); cerr != nil {
					logging.Error("Closing log file failed", "error", cerr)
				}
			}()
			logger = fileLogger
			logging.Info("File logging initialized", "path", settings.Main.Log.Path)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", "addr", addr, "version", settings.Version)
		if serr := e.Start(addr); serr != nil && serr != http.ErrServerClosed {
			errCh <- serr
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case sig := <-quit:
		logger.Info("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}
