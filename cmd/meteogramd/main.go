// Command meteogramd runs the scheduled meteogram service: it downloads each new
// run, renders the configured cities and serves health, metrics and images over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/ens-meteogram/internal/adapter/httpadapter"
	"github.com/couchcryptid/ens-meteogram/internal/app"
	"github.com/couchcryptid/ens-meteogram/internal/config"
	"github.com/couchcryptid/ens-meteogram/internal/observability"
	"github.com/couchcryptid/ens-meteogram/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := app.Build(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(scheduler.Options{
		Schedule:          cfg.RunSchedule,
		AvailabilityDelay: cfg.RunAvailabilityDelay,
		DataDir:           cfg.ModelDataFolder,
		Cities:            cfg.Cities,
	}, components.Downloader, components.Batch, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, sched, cfg.ImagesFolder, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		stop()
	}

	// Process the latest run right away instead of waiting for the first tick.
	go func() {
		if err := sched.RunCycle(ctx); err != nil && ctx.Err() == nil {
			logger.Error("initial cycle failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	components.Close()

	logger.Info("shutdown complete")
}
