package domain

import "context"

type LocationRepository interface {
	// Write paths
	UpsertLocation(ctx context.Context, l Location) error
	LogMiss(ctx context.Context, source, ref string, status int, reason string) error

	// Read paths
	GetLocation(ctx context.Context, id string) (Location, error)
	ListLocations(ctx context.Context, q LocationsQuery) (LocationsPage, error)
}

// PlacesClient is the third-party places API (Foursquare).
type PlacesClient interface {
	Nearby(ctx context.Context, lat, lng float64, radiusM int, query string) ([]map[string]any, error)
}

// CMSClient reads location records from the headless CMS.
type CMSClient interface {
	ListLocations(ctx context.Context, page, limit int) (docs []map[string]any, hasNext bool, err error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// Bounds is a viewport in degrees.
type Bounds struct {
	West, South, East, North float64
}

func (b Bounds) Contains(lat, lng float64) bool {
	if lat < b.South || lat > b.North {
		return false
	}
	if b.West <= b.East {
		return lng >= b.West && lng <= b.East
	}
	// antimeridian crossing
	return lng >= b.West || lng <= b.East
}

// Center returns the middle of b, wrapping longitude across the antimeridian.
func (b Bounds) Center() (lat, lng float64) {
	east := b.East
	if b.West > east {
		east += 360
	}
	lng = (b.West + east) / 2
	if lng > 180 {
		lng -= 360
	}
	return (b.South + b.North) / 2, lng
}

type LocationsQuery struct {
	Bounds   *Bounds
	Category *string
	Q        *string
	Limit    int
}

type LocationsPage struct {
	Items []Location
}

// ViewportQuery is what a map view asks for: a box and a zoom level.
type ViewportQuery struct {
	Bounds   *Bounds
	Zoom     float64
	Category *string
	Limit    int
}
