package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCandidates is returned when the geocoding provider found nothing.
	ErrNoCandidates = errors.New("no geocoding candidates")

	// ErrMalformedResponse is returned when a provider payload cannot be used.
	ErrMalformedResponse = errors.New("malformed geocoding response")
)

// GeocodingError reports a failed remote lookup for a single city. It is
// recoverable: the batch skips the city and carries on.
type GeocodingError struct {
	City string
	Err  error
}

func (e *GeocodingError) Error() string {
	return fmt.Sprintf("geocode %q: %v", e.City, e.Err)
}

func (e *GeocodingError) Unwrap() error { return e.Err }

// CacheIOError reports that the persisted coordinate table could not be read
// or written. It is fatal to a batch.
type CacheIOError struct {
	Op   string // "read", "write" or "lock"
	Path string
	Err  error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("coordinate cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CacheIOError) Unwrap() error { return e.Err }
