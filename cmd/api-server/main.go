package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/provider-slot-booking/internal/api"
	"github.com/hackgods/provider-slot-booking/internal/bootstrap"
	"github.com/hackgods/provider-slot-booking/internal/config"
	"github.com/hackgods/provider-slot-booking/internal/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("api-server", "dev", "info")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New("api-server", cfg.Env, cfg.LogLevel)
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("storage", cfg.StorageDriver).
		Str("lock", cfg.LockDriver).
		Str("timezone", cfg.Timezone.String()).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(rootCtx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api-server failed")
	}
	logger.Info().Msg("shutting down api-server")
}

// run serves the API until ctx ends, then shuts down gracefully.
func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	bootCtx, cancelBoot := context.WithTimeout(ctx, 15*time.Second)
	rt, err := bootstrap.Build(bootCtx, cfg, "api-server", logger)
	cancelBoot()
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer rt.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           newHandler(rt, cfg, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func newHandler(rt *bootstrap.Runtime, cfg config.Config, logger zerolog.Logger) http.Handler {
	var metricsHandler http.Handler
	if rt.Registry != nil {
		metricsHandler = promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{})
	}

	return api.NewRouter(api.RouterConfig{
		Appointments:       rt.Appointments,
		Schedules:          rt.Schedules,
		Checks:             rt.Checks,
		Logger:             logger,
		Metrics:            rt.Metrics,
		MetricsHandler:     metricsHandler,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CORSOrigins:        cfg.CORSOrigins,
		Env:                cfg.Env,
		Version:            version,
	})
}
