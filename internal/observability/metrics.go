package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "meteogram"

// Metrics holds the Prometheus counters, histograms, and gauges for downloads,
// geocoding and meteogram rendering.
type Metrics struct {
	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeAPIDuration prometheus.Histogram
	CoordinateCache    *prometheus.CounterVec // labels: result={hit,miss}

	// Download metrics.
	DownloadBytes      prometheus.Counter
	DownloadDuration   *prometheus.HistogramVec // labels: param
	DownloadFailures   prometheus.Counter
	BreakerStateChange *prometheus.CounterVec // labels: to

	// Batch metrics.
	MeteogramsRendered prometheus.Counter
	MeteogramFailures  *prometheus.CounterVec // labels: stage={resolve,extract,plot,notify}
	BatchDuration      prometheus.Histogram
	WorkersBusy        prometheus.Gauge

	// Scheduler metrics.
	ScheduledRuns *prometheus.CounterVec // labels: outcome={success,error,skipped}
	LastRunTime   prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.GeocodeRequests,
		m.GeocodeAPIDuration,
		m.CoordinateCache,
		m.DownloadBytes,
		m.DownloadDuration,
		m.DownloadFailures,
		m.BreakerStateChange,
		m.MeteogramsRendered,
		m.MeteogramFailures,
		m.BatchDuration,
		m.WorkersBusy,
		m.ScheduledRuns,
		m.LastRunTime,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API lookups by outcome.",
		}, []string{"outcome"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API lookup duration in seconds, retries included.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		CoordinateCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coordinate_cache_total",
			Help:      "Coordinate table lookups by result.",
		}, []string{"result"}),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "GRIB bytes downloaded from the open-data portal.",
		}),
		DownloadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Duration of a complete parameter retrieval.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"param"}),
		DownloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_failures_total",
			Help:      "Parameter retrievals that failed.",
		}),
		BreakerStateChange: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_breaker_transitions_total",
			Help:      "Circuit breaker state transitions by target state.",
		}, []string{"to"}),
		MeteogramsRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rendered_total",
			Help:      "Meteograms written.",
		}),
		MeteogramFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Cities dropped from a batch by failing stage.",
		}, []string{"stage"}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of a complete resolve-extract-plot batch.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		WorkersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Plot workers currently rendering.",
		}),
		ScheduledRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_cycles_total",
			Help:      "Scheduler cycles by outcome.",
		}, []string{"outcome"}),
		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_processed_run_timestamp_seconds",
			Help:      "Initialisation time of the last fully processed forecast run.",
		}),
	}
}
