// Package app wires configuration into the adapters and the batch used by
// the commands.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/ens-meteogram/internal/adapter/cdo"
	"github.com/couchcryptid/ens-meteogram/internal/adapter/csvstore"
	"github.com/couchcryptid/ens-meteogram/internal/adapter/ecmwf"
	kafkaadapter "github.com/couchcryptid/ens-meteogram/internal/adapter/kafka"
	"github.com/couchcryptid/ens-meteogram/internal/adapter/mapbox"
	"github.com/couchcryptid/ens-meteogram/internal/adapter/pgstore"
	"github.com/couchcryptid/ens-meteogram/internal/adapter/plot"
	"github.com/couchcryptid/ens-meteogram/internal/config"
	"github.com/couchcryptid/ens-meteogram/internal/domain"
	"github.com/couchcryptid/ens-meteogram/internal/observability"
	"github.com/couchcryptid/ens-meteogram/internal/pipeline"
)

// Components holds everything a command needs. Close releases the
// database and Kafka connections.
type Components struct {
	Resolver   *domain.CoordinateResolver
	Downloader *ecmwf.Downloader
	Batch      *pipeline.Batch

	db     *sql.DB
	writer *kafkaadapter.Writer
	logger *slog.Logger
}

// NewDownloader builds the open-data downloader.
func NewDownloader(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *ecmwf.Downloader {
	client := ecmwf.NewClient(ecmwf.Options{
		BaseURL:     cfg.ECMWFBaseURL,
		Resolution:  cfg.ECMWFResolution,
		Concurrency: cfg.DownloadConcurrency,
		Timeout:     cfg.DownloadTimeout,
	}, logger, metrics)
	return ecmwf.NewDownloader(client)
}

// NewCoordinateStore returns the Postgres store when a database URL is
// configured and the CSV file store otherwise. The returned *sql.DB is nil
// for the file store.
func NewCoordinateStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.CoordinateStore, *sql.DB, error) {
	if cfg.CoordinatesDatabaseURL == "" {
		logger.Info("using coordinate file", "path", cfg.CoordinatesFile)
		return csvstore.New(cfg.CoordinatesFile), nil, nil
	}

	db, err := pgstore.Open(ctx, cfg.CoordinatesDatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	store := pgstore.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.Info("using coordinate database")
	return store, db, nil
}

// NewResolver builds the coordinate resolver. Geocoding is disabled, and
// only cached cities resolve, when no Mapbox token is configured.
func NewResolver(store domain.CoordinateStore, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *domain.CoordinateResolver {
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		geocoder = mapbox.NewClient(mapbox.Options{
			Token:       cfg.MapboxToken,
			Timeout:     cfg.MapboxTimeout,
			MaxAttempts: cfg.MapboxMaxAttempts,
		}, logger, metrics)
		logger.Info("mapbox geocoding enabled", "timeout", cfg.MapboxTimeout)
	} else {
		logger.Warn("mapbox geocoding disabled, only cached cities resolve")
	}
	return domain.NewCoordinateResolver(store, geocoder, logger)
}

// Build wires every component from cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Components, error) {
	store, db, err := NewCoordinateStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("coordinate store: %w", err)
	}
	c := &Components{db: db, logger: logger}
	c.Resolver = NewResolver(store, cfg, logger, metrics)
	c.Downloader = NewDownloader(cfg, logger, metrics)

	extractor := cdo.NewExtractor(cdo.Options{
		Path:    cfg.CDOPath,
		Threads: cfg.CDOThreads,
		DataDir: cfg.ModelDataFolder,
	}, logger)

	plotter, err := plot.NewPlotter(plot.Options{
		Command:         cfg.PlotCommand,
		ImageDir:        cfg.ImagesFolder,
		ClimatologyT2M:  cfg.ClimatologyT2M,
		ClimatologyT850: cfg.ClimatologyT850,
	}, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	var notifier pipeline.Notifier
	if cfg.NotificationsEnabled() {
		c.writer = kafkaadapter.NewWriter(cfg, logger)
		notifier = c.writer
		logger.Info("meteogram notifications enabled", "topic", cfg.KafkaTopic)
	}

	c.Batch = pipeline.NewBatch(c.Resolver, extractor, plotter, notifier, pipeline.Options{
		Workers:       cfg.Workers,
		DefaultCities: cfg.Cities,
	}, logger, metrics)
	return c, nil
}

// Close releases external connections.
func (c *Components) Close() {
	if c.writer != nil {
		if err := c.writer.Close(); err != nil {
			c.logger.Error("kafka writer close error", "error", err)
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("database close error", "error", err)
		}
	}
}
