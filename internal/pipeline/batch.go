package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/ens-meteogram/internal/domain"
	"github.com/couchcryptid/ens-meteogram/internal/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Stages recorded on CityFailure and in the failure metric.
const (
	StageResolve = "resolve"
	StageExtract = "extract"
	StagePlot    = "plot"
	StageNotify  = "notify"
)

// Resolver maps a city name to coordinates, reporting whether the answer
// came from the persisted table.
type Resolver interface {
	Lookup(ctx context.Context, city string) (domain.Coordinates, bool, error)
}

// Extractor produces the point dataset of a city from the run's files.
type Extractor interface {
	Extract(ctx context.Context, city string, coords domain.Coordinates, run domain.ForecastRun) (string, error)
}

// Plotter renders one meteogram and returns the image path.
type Plotter interface {
	Plot(ctx context.Context, job domain.MeteogramJob) (string, error)
}

// Notifier announces rendered meteograms.
type Notifier interface {
	Publish(ctx context.Context, meteograms []domain.Meteogram) error
}

// Options configures a Batch.
type Options struct {
	Workers       int
	DefaultCities []string
}

// Request is one batch: a run and the cities to draw.
type Request struct {
	Run    domain.ForecastRun
	Cities []string
}

// CityFailure records why a city produced no meteogram.
type CityFailure struct {
	City  string
	Stage string
	Err   error
}

// Report summarises a batch.
type Report struct {
	ID       string
	Run      domain.ForecastRun
	Rendered []domain.Meteogram
	Failures []CityFailure
	Duration time.Duration
}

// Failed returns the failures of one stage.
func (r Report) Failed(stage string) []CityFailure {
	var out []CityFailure
	for _, f := range r.Failures {
		if f.Stage == stage {
			out = append(out, f)
		}
	}
	return out
}

// Batch resolves, extracts and plots meteograms for a list of cities.
type Batch struct {
	resolver      Resolver
	extractor     Extractor
	plotter       Plotter
	notifier      Notifier // optional
	workers       int
	defaultCities []string
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// NewBatch creates a Batch. notifier may be nil.
func NewBatch(r Resolver, e Extractor, p Plotter, n Notifier, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Batch {
	defaults := opts.DefaultCities
	if len(defaults) == 0 {
		defaults = []string{"Hamburg"}
	}
	return &Batch{
		resolver:      r,
		extractor:     e,
		plotter:       p,
		notifier:      n,
		workers:       max(opts.Workers, 1),
		defaultCities: defaults,
		logger:        logger,
		metrics:       metrics,
	}
}

type cityJob struct {
	city    string
	coords  domain.Coordinates
	dataset string
}

// Run executes the three phases of a batch. Resolution and extraction run
// one city at a time; plotting runs on a pool of workers. A city that fails
// geocoding, extraction or plotting is reported and skipped. A coordinate
// table I/O error aborts the batch.
func (b *Batch) Run(ctx context.Context, req Request) (report Report, err error) {
	start := time.Now()
	report = Report{ID: uuid.NewString(), Run: req.Run}
	defer func() {
		report.Duration = time.Since(start)
		b.metrics.BatchDuration.Observe(report.Duration.Seconds())
	}()

	if _, err = req.Run.Steps(); err != nil {
		return report, err
	}

	cities := cleanCities(req.Cities)
	if len(cities) == 0 {
		b.logger.Info("no cities given, using defaults", "cities", b.defaultCities)
		cities = b.defaultCities
	}
	log := b.logger.With("batch", report.ID, "run", req.Run.String())
	log.Info("batch started", "cities", len(cities), "workers", b.workers)

	resolved, err := b.resolveAll(ctx, log, cities, &report)
	if err != nil {
		return report, err
	}

	extracted, err := b.extractAll(ctx, log, req.Run, resolved, &report)
	if err != nil {
		return report, err
	}

	b.plotAll(ctx, log, req.Run, extracted, &report)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	b.notify(ctx, log, &report)

	log.Info("batch finished",
		"rendered", len(report.Rendered),
		"failed", len(report.Failures),
		"duration", time.Since(start))
	return report, nil
}

func (b *Batch) resolveAll(ctx context.Context, log *slog.Logger, cities []string, report *Report) ([]cityJob, error) {
	jobs := make([]cityJob, 0, len(cities))
	for _, city := range cities {
		coords, cached, err := b.resolver.Lookup(ctx, city)
		if err != nil {
			var geoErr *domain.GeocodingError
			if !errors.As(err, &geoErr) {
				log.Error("coordinate lookup failed, aborting batch", "city", city, "error", err)
				return nil, fmt.Errorf("resolve %s: %w", city, err)
			}
			log.Warn("could not geocode city, skipping", "city", city, "error", err)
			b.fail(report, city, StageResolve, err)
			continue
		}

		result := "miss"
		if cached {
			result = "hit"
		}
		b.metrics.CoordinateCache.WithLabelValues(result).Inc()
		log.Debug("resolved city", "city", city, "lon", coords.Lon, "lat", coords.Lat, "cached", cached)
		jobs = append(jobs, cityJob{city: city, coords: coords})
	}
	return jobs, nil
}

func (b *Batch) extractAll(ctx context.Context, log *slog.Logger, run domain.ForecastRun, jobs []cityJob, report *Report) ([]cityJob, error) {
	out := jobs[:0]
	for _, job := range jobs {
		dataset, err := b.extractor.Extract(ctx, job.city, job.coords, run)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Warn("extraction failed, skipping", "city", job.city, "error", err)
			b.fail(report, job.city, StageExtract, err)
			continue
		}
		job.dataset = dataset
		out = append(out, job)
	}
	return out, nil
}

func (b *Batch) plotAll(ctx context.Context, log *slog.Logger, run domain.ForecastRun, jobs []cityJob, report *Report) {
	results := make([]*domain.Meteogram, len(jobs))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(b.workers)
	for i, job := range jobs {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			b.metrics.WorkersBusy.Inc()
			defer b.metrics.WorkersBusy.Dec()

			path, err := b.plotter.Plot(ctx, domain.MeteogramJob{
				City:        job.city,
				Run:         run,
				Coordinates: job.coords,
				Dataset:     job.dataset,
			})
			if err != nil {
				log.Warn("plotting failed", "city", job.city, "error", err)
				mu.Lock()
				b.fail(report, job.city, StagePlot, err)
				mu.Unlock()
				return nil
			}

			b.metrics.MeteogramsRendered.Inc()
			log.Info("meteogram written", "city", job.city, "path", path)
			results[i] = &domain.Meteogram{
				ID:          uuid.NewString(),
				City:        job.city,
				Run:         run.String(),
				Coordinates: job.coords,
				ImagePath:   path,
				RenderedAt:  domain.Now().UTC(),
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, m := range results {
		if m != nil {
			report.Rendered = append(report.Rendered, *m)
		}
	}
}

func (b *Batch) notify(ctx context.Context, log *slog.Logger, report *Report) {
	if b.notifier == nil || len(report.Rendered) == 0 {
		return
	}
	if err := b.notifier.Publish(ctx, report.Rendered); err != nil {
		log.Error("publishing meteograms failed", "count", len(report.Rendered), "error", err)
		b.metrics.MeteogramFailures.WithLabelValues(StageNotify).Inc()
	}
}

func (b *Batch) fail(report *Report, city, stage string, err error) {
	report.Failures = append(report.Failures, CityFailure{City: city, Stage: stage, Err: err})
	b.metrics.MeteogramFailures.WithLabelValues(stage).Inc()
}

// cleanCities trims names and drops blanks and repeats, keeping order.
func cleanCities(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
