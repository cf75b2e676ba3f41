// Command download retrieves the ensemble fields of one run:
//
//	download <YYYYMMDD> <HH>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/ens-meteogram/internal/app"
	"github.com/couchcryptid/ens-meteogram/internal/config"
	"github.com/couchcryptid/ens-meteogram/internal/domain"
	"github.com/couchcryptid/ens-meteogram/internal/observability"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: download <YYYYMMDD> <HH>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)

	run, err := domain.ParseRun(os.Args[1], os.Args[2])
	if err != nil {
		logger.Error("invalid run", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	downloader := app.NewDownloader(cfg, logger, observability.NewMetrics())
	paths, err := downloader.DownloadRun(ctx, run, cfg.ModelDataFolder)
	if err != nil {
		logger.Error("download failed", "run", run.String(), "error", err)
		os.Exit(1)
	}
	logger.Info("download complete", "run", run.String(), "files", paths)
}
