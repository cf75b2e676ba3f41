package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// CoordinateResolver answers city lookups from a persisted table and falls
// back to a geocoder for cities it has never seen, appending every new result.
//
// A resolver is the single owner of its table within a process: lookups are
// serialised so the read-check-append sequence cannot interleave. When the
// store implements StoreLocker the same sequence is also guarded across
// processes.
type CoordinateResolver struct {
	store    CoordinateStore
	geocoder Geocoder
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewCoordinateResolver creates a resolver. geocoder may be nil, in which
// case only cities already in the table can be resolved.
func NewCoordinateResolver(store CoordinateStore, geocoder Geocoder, logger *slog.Logger) *CoordinateResolver {
	return &CoordinateResolver{
		store:    store,
		geocoder: geocoder,
		logger:   logger,
	}
}

// Resolve returns the coordinates of city.
func (r *CoordinateResolver) Resolve(ctx context.Context, city string) (Coordinates, error) {
	c, _, err := r.Lookup(ctx, city)
	return c, err
}

// Lookup is Resolve that also reports whether the answer came from the table.
func (r *CoordinateResolver) Lookup(ctx context.Context, city string) (Coordinates, bool, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Coordinates{}, false, &GeocodingError{City: city, Err: errors.New("empty city name")}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if locker, ok := r.store.(StoreLocker); ok {
		unlock, err := locker.Lock(ctx)
		if err != nil {
			return Coordinates{}, false, asCacheIOError("lock", err)
		}
		defer func() {
			if err := unlock(); err != nil {
				r.logger.Warn("release coordinate table lock failed", "error", err)
			}
		}()
	}

	table, err := r.store.Load(ctx)
	if err != nil {
		return Coordinates{}, false, asCacheIOError("read", err)
	}
	if c, ok := table[city]; ok {
		r.logger.Debug("coordinate cache hit", "city", city, "lon", c.Lon, "lat", c.Lat)
		return c, true, nil
	}

	if r.geocoder == nil {
		return Coordinates{}, false, &GeocodingError{City: city, Err: errors.New("geocoding disabled")}
	}

	c, err := r.geocoder.ForwardGeocode(ctx, city)
	if err != nil {
		return Coordinates{}, false, &GeocodingError{City: city, Err: err}
	}
	if err := c.Validate(); err != nil {
		return Coordinates{}, false, &GeocodingError{City: city, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	c = c.Normalized()

	if err := r.store.Append(ctx, CoordinateEntry{City: city, Coordinates: c}); err != nil {
		return Coordinates{}, false, asCacheIOError("write", err)
	}
	r.logger.Info("resolved new city", "city", city, "lon", c.Lon, "lat", c.Lat)
	return c, false, nil
}

// asCacheIOError makes sure store failures surface as *CacheIOError.
func asCacheIOError(op string, err error) error {
	var cacheErr *CacheIOError
	if errors.As(err, &cacheErr) {
		return err
	}
	return &CacheIOError{Op: op, Err: err}
}
