package domain

import (
	"fmt"
	"math"
)

// Coordinates is a WGS-84 position in (longitude, latitude) order.
type Coordinates struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// CoordinateEntry is one row of the persisted coordinate table.
type CoordinateEntry struct {
	City string
	Coordinates
}

// Normalized returns c with the longitude folded into [-180, 180).
func (c Coordinates) Normalized() Coordinates {
	return Coordinates{Lon: NormalizeLongitude(c.Lon), Lat: c.Lat}
}

// Validate rejects non-finite values and latitudes outside [-90, 90].
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) || math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) {
		return fmt.Errorf("non-finite coordinates (%v, %v)", c.Lon, c.Lat)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", c.Lat)
	}
	return nil
}

// NormalizeLongitude folds lon into [-180, 180). In-range values are returned unchanged.
func NormalizeLongitude(lon float64) float64 {
	if lon >= -180 && lon < 180 {
		return lon
	}
	l := math.Mod(lon+180, 360)
	if l < 0 {
		l += 360
	}
	return l - 180
}
