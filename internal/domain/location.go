package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

const (
	SourceFoursquare = "foursquare"
	SourceCMS        = "cms"
)

// Location is a renderable point on the map. Latitude/Longitude are only
// trusted after they pass geo.IsValidCoordinate.
type Location struct {
	ID          string
	Name        string
	Latitude    float64
	Longitude   float64
	Categories  []string
	Rating      *float64
	Images      []string
	Description *string
	Address     *string
	Source      string
	SourceID    string
	RawJSON     []byte `json:"-"`
}

// Category returns the primary category, or "" when none is known.
func (l Location) Category() string {
	if len(l.Categories) == 0 {
		return ""
	}
	return l.Categories[0]
}

// ImageURL returns the first image, or "".
func (l Location) ImageURL() string {
	if len(l.Images) == 0 {
		return ""
	}
	return l.Images[0]
}

// Seed is one import target for the places API.
type Seed struct {
	Lat, Lng float64
	RadiusM  int
	Query    string
}
