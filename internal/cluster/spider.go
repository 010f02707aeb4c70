package cluster

import (
	"math"

	"github.com/paulmach/orb"

	"placemap/internal/domain"
	"placemap/internal/geo"
)

// DefaultSpiderRadius is the fan-out radius in screen pixels.
const DefaultSpiderRadius = 60.0

// SpiderLeg is a candidate anchor for one member of a fanned-out cluster.
type SpiderLeg struct {
	Location domain.Location
	Position orb.Point // [lng, lat]
}

// SpiderPositions spreads the members of c evenly on a circle of
// radiusPixels around the cluster center, at the given zoom.
// Leg i sits at angle i*2π/n, measured counter-clockwise from east.
func SpiderPositions(c Cluster, zoom, radiusPixels float64) []SpiderLeg {
	if len(c.Locations) == 0 {
		return nil
	}
	if len(c.Locations) == 1 {
		return []SpiderLeg{{Location: c.Locations[0], Position: c.Center}}
	}
	if radiusPixels <= 0 {
		radiusPixels = DefaultSpiderRadius
	}

	centerLat, centerLng := c.Center.Lat(), c.Center.Lon()
	radiusM := radiusPixels * geo.MetersPerPixel(centerLat, zoom)
	step := 2 * math.Pi / float64(len(c.Locations))

	legs := make([]SpiderLeg, 0, len(c.Locations))
	for i, loc := range c.Locations {
		angle := float64(i) * step
		lat, lng := geo.Offset(centerLat, centerLng, radiusM*math.Sin(angle), radiusM*math.Cos(angle))
		legs = append(legs, SpiderLeg{Location: loc, Position: orb.Point{lng, lat}})
	}
	return legs
}
