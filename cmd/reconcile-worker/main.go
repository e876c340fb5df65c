package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/provider-slot-booking/internal/appointment"
	"github.com/hackgods/provider-slot-booking/internal/bootstrap"
	"github.com/hackgods/provider-slot-booking/internal/config"
	"github.com/hackgods/provider-slot-booking/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("reconcile-worker", "dev", "info")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New("reconcile-worker", cfg.Env, cfg.LogLevel)
	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Msg("reconcile-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(rootCtx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("reconcile-worker failed")
	}
	logger.Info().Msg("reconcile-worker stopped")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	if cfg.StorageDriver == config.StorageMemory {
		logger.Warn().Msg("memory storage is private to this process, reconciliation has nothing to check")
	}

	bootCtx, cancelBoot := context.WithTimeout(ctx, 15*time.Second)
	rt, err := bootstrap.Build(bootCtx, cfg, "reconcile-worker", logger)
	cancelBoot()
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer rt.Close()

	if rt.Registry != nil && cfg.MetricsPort != "" {
		srv := &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           metricsRouter(rt),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", srv.Addr).Msg("metrics listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Run once at startup
	runOnce(ctx, rt.Appointments, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutdown signal received, stopping reconcile worker")
			return nil
		case <-ticker.C:
			runOnce(ctx, rt.Appointments, logger)
		}
	}
}

func metricsRouter(rt *bootstrap.Runtime) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}))
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func runOnce(ctx context.Context, svc *appointment.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	report, err := svc.ReconcileSlots(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("reconcile run failed")
		return
	}

	ev := logger.Info()
	if report.Failed > 0 || report.DoubleBooked > 0 {
		ev = logger.Warn()
	}
	ev.Int("checked", report.Checked).
		Int("repaired", report.Repaired).
		Int("failed", report.Failed).
		Int("double_booked", report.DoubleBooked).
		Dur("took", time.Since(start)).
		Msg("reconcile run complete")
}
