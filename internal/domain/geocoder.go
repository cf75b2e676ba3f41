package domain

import "context"

// Geocoder resolves a place name to the coordinates of its best candidate.
type Geocoder interface {
	// ForwardGeocode returns the first (highest-ranked) candidate for name.
	// It fails with ErrNoCandidates when the provider returns nothing.
	ForwardGeocode(ctx context.Context, name string) (Coordinates, error)
}

// CoordinateStore persists resolved city coordinates.
type CoordinateStore interface {
	// Load returns the whole table keyed by city name. A table that does not
	// exist yet is empty, not an error.
	Load(ctx context.Context) (map[string]Coordinates, error)

	// Append adds a single new entry.
	Append(ctx context.Context, entry CoordinateEntry) error
}

// StoreLocker is implemented by stores that can be shared between processes.
// Lock blocks until the caller owns the table and returns the release func.
type StoreLocker interface {
	Lock(ctx context.Context) (unlock func() error, err error)
}
