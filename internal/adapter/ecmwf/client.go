// Package ecmwf retrieves ensemble fields from the ECMWF open-data portal.
//
// Each forecast step is published as a GRIB2 file with a JSON-lines .index
// next to it. Retrieval reads the index, selects the wanted fields and pulls
// only their byte ranges, so no GRIB decoding happens here.
package ecmwf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/ens-meteogram/internal/domain"
	"github.com/couchcryptid/ens-meteogram/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaseURL    = "https://data.ecmwf.int/forecasts"
	DefaultResolution = "0p25"

	model      = "ifs"
	maxBackoff = 10 * time.Second
)

// ErrNoMatchingFields is returned when a step's index lists none of the
// requested fields.
var ErrNoMatchingFields = errors.New("no matching fields in index")

// Options configures a Client.
type Options struct {
	BaseURL     string
	Resolution  string
	Concurrency int           // steps fetched in parallel, defaults to 1
	Timeout     time.Duration // per HTTP request
	MaxAttempts int           // per HTTP request, defaults to 3
}

// Request selects one parameter over a set of steps of a run.
type Request struct {
	Run      domain.ForecastRun
	Stream   string
	Type     string
	Param    string
	Levelist string
	Steps    []int
	Target   string
}

// Client downloads fields from the open-data portal.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	resolution  string
	concurrency int
	maxAttempts int
	backoff     time.Duration
	breaker     *gobreaker.CircuitBreaker
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewClient creates an open-data client.
func NewClient(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	resolution := opts.Resolution
	if resolution == "" {
		resolution = DefaultResolution
	}
	concurrency := max(opts.Concurrency, 1)
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: opts.Timeout},
		baseURL:     baseURL,
		resolution:  resolution,
		concurrency: concurrency,
		maxAttempts: attempts,
		backoff:     500 * time.Millisecond,
		metrics:     metrics,
		logger:      logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ecmwf-opendata",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.BreakerStateChange.WithLabelValues(to.String()).Inc()
		},
	})
	return c
}

// Retrieve downloads every step of req into req.Target. Steps are fetched
// concurrently into part files and concatenated in step order.
func (c *Client) Retrieve(ctx context.Context, req Request) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.DownloadDuration.WithLabelValues(req.Param).Observe(time.Since(start).Seconds())
		if err != nil {
			c.metrics.DownloadFailures.Inc()
		}
	}()

	if len(req.Steps) == 0 {
		return errors.New("retrieve: no steps requested")
	}
	if req.Target == "" {
		return errors.New("retrieve: empty target")
	}
	if err := os.MkdirAll(filepath.Dir(req.Target), 0o755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}

	parts := make([]string, len(req.Steps))
	for i := range req.Steps {
		parts[i] = fmt.Sprintf("%s.part%03d", req.Target, i)
	}
	defer removeAll(parts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, step := range req.Steps {
		g.Go(func() error {
			return c.retrieveStep(gctx, req, step, parts[i])
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("retrieve %s: %w", req.Param, err)
	}

	if err := concat(req.Target, parts); err != nil {
		return fmt.Errorf("assemble %s: %w", req.Target, err)
	}
	c.logger.Info("retrieved field", "param", req.Param, "levelist", req.Levelist,
		"run", req.Run.String(), "steps", len(req.Steps), "path", req.Target)
	return nil
}

func (c *Client) retrieveStep(ctx context.Context, req Request, step int, part string) error {
	indexURL := c.stepURL(req.Run, req.Stream, step, "index")
	resp, err := c.get(ctx, indexURL, "")
	if err != nil {
		return fmt.Errorf("step %d: fetch index: %w", step, err)
	}
	entries, err := parseIndex(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("step %d: %w", step, err)
	}

	ranges := selectRanges(entries, req)
	if len(ranges) == 0 {
		return fmt.Errorf("step %d: %w", step, ErrNoMatchingFields)
	}

	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("step %d: %w", step, err)
	}
	defer f.Close()

	dataURL := c.stepURL(req.Run, req.Stream, step, "grib2")
	for _, r := range ranges {
		if err := c.copyRange(ctx, dataURL, r, f); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
	}
	c.logger.Debug("retrieved step", "param", req.Param, "step", step, "ranges", len(ranges))
	return f.Close()
}

func (c *Client) copyRange(ctx context.Context, url string, r byteRange, w io.Writer) error {
	resp, err := c.get(ctx, url, r.header())
	if err != nil {
		return fmt.Errorf("fetch %s: %w", r.header(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("fetch %s: server ignored range request (status %d)", r.header(), resp.StatusCode)
	}
	n, err := io.Copy(w, resp.Body)
	c.metrics.DownloadBytes.Add(float64(n))
	if err != nil {
		return fmt.Errorf("read %s: %w", r.header(), err)
	}
	if want := r.End - r.Start; n != want {
		return fmt.Errorf("read %s: got %d bytes, want %d", r.header(), n, want)
	}
	return nil
}

// stepURL builds the URL of a step file, for example
// <root>/20240301/00z/ifs/0p25/enfo/20240301000000-24h-enfo-ef.index.
func (c *Client) stepURL(run domain.ForecastRun, stream string, step int, ext string) string {
	date := run.DateString()
	return fmt.Sprintf("%s/%s/%sz/%s/%s/%s/%s%s0000-%dh-%s-ef.%s",
		c.baseURL, date, run.Hour, model, c.resolution, stream,
		date, run.Hour, step, stream, ext)
}

// get issues a GET through the circuit breaker, retrying transient failures.
func (c *Client) get(ctx context.Context, url, rangeHeader string) (*http.Response, error) {
	backoff := c.backoff
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if rangeHeader != "" {
			req.Header.Set("Range", rangeHeader)
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				resp.Body.Close()
				return nil, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
			}
			return resp, nil
		})
		if err == nil {
			return result.(*http.Response), nil
		}
		lastErr = err

		if !retryable(err) || attempt == c.maxAttempts {
			return nil, lastErr
		}
		c.logger.Warn("open-data request failed, retrying", "url", url, "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return nil, lastErr
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("open-data error: status %d: %s", e.Code, e.Body)
}

func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// concat writes parts, in order, to target via a temporary file.
func concat(target string, parts []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	for _, p := range parts {
		if err := appendFile(tmp, p); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func appendFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func removeAll(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
