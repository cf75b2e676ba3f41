package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/ens-meteogram/internal/domain"
	"github.com/couchcryptid/ens-meteogram/internal/observability"
)

// DefaultBaseURL is the Mapbox places endpoint.
const DefaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// Options configures a Client.
type Options struct {
	Token       string
	Timeout     time.Duration
	BaseURL     string // defaults to DefaultBaseURL
	MaxAttempts int    // total attempts per lookup, defaults to 1
}

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token       string
	httpClient  *http.Client
	baseURL     string
	maxAttempts int
	backoff     time.Duration
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		token: opts.Token,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		baseURL:     baseURL,
		maxAttempts: attempts,
		backoff:     200 * time.Millisecond,
		metrics:     metrics,
		logger:      logger,
	}
}

// ForwardGeocode returns the coordinates of the first feature Mapbox returns
// for name. No confidence threshold is applied.
func (c *Client) ForwardGeocode(ctx context.Context, name string) (_ domain.Coordinates, err error) {
	start := time.Now()
	defer func() {
		c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())
		c.metrics.GeocodeRequests.WithLabelValues(outcome(err)).Inc()
	}()

	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(name))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}
	fullURL := u + "?" + params.Encode()

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	})
	if err != nil {
		return domain.Coordinates{}, err
	}
	defer resp.Body.Close()

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.Coordinates{}, fmt.Errorf("%w: decode response: %v", domain.ErrMalformedResponse, err)
	}

	if len(mapboxResp.Features) == 0 {
		return domain.Coordinates{}, domain.ErrNoCandidates
	}

	f := mapboxResp.Features[0]
	if len(f.Center) != 2 {
		return domain.Coordinates{}, fmt.Errorf("%w: center has %d values", domain.ErrMalformedResponse, len(f.Center))
	}

	c.logger.Debug("mapbox forward geocode",
		"query", name,
		"place_name", f.PlaceName,
		"relevance", f.Relevance,
	)
	return domain.Coordinates{Lon: f.Center[0], Lat: f.Center[1]}, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward geocode request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &statusError{Code: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrNoCandidates):
		return "empty"
	default:
		return "error"
	}
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
