// Command meteogram draws meteograms for the given cities:
//
//	meteogram [-date YYYYMMDD -hour HH] [city ...]
//
// Without cities the configured default list is used. Without -date the
// latest available run is assumed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/ens-meteogram/internal/app"
	"github.com/couchcryptid/ens-meteogram/internal/config"
	"github.com/couchcryptid/ens-meteogram/internal/domain"
	"github.com/couchcryptid/ens-meteogram/internal/observability"
	"github.com/couchcryptid/ens-meteogram/internal/pipeline"
)

func main() {
	date := flag.String("date", "", "run date, YYYYMMDD (default: latest available run)")
	hour := flag.String("hour", "", "run hour, 00/06/12/18")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)

	run, err := selectRun(*date, *hour, cfg)
	if err != nil {
		logger.Error("invalid run", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := app.Build(ctx, cfg, logger, observability.NewMetrics())
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer components.Close()

	report, err := components.Batch.Run(ctx, pipeline.Request{Run: run, Cities: flag.Args()})
	if err != nil {
		var ioErr *domain.CacheIOError
		if errors.As(err, &ioErr) {
			logger.Error("coordinate table unavailable", "path", ioErr.Path, "error", err)
		} else {
			logger.Error("batch failed", "error", err)
		}
		components.Close()
		os.Exit(1)
	}
	for _, f := range report.Failures {
		logger.Warn("no meteogram", "city", f.City, "stage", f.Stage, "error", f.Err)
	}
}

func selectRun(date, hour string, cfg *config.Config) (domain.ForecastRun, error) {
	switch {
	case date == "" && hour == "":
		return domain.LatestRunNow(cfg.RunAvailabilityDelay), nil
	case date == "" || hour == "":
		return domain.ForecastRun{}, fmt.Errorf("-date and -hour must be given together")
	default:
		return domain.ParseRun(date, hour)
	}
}
