// Package cluster groups nearby locations for map display.
package cluster

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"placemap/internal/adapters/observability"
	"placemap/internal/domain"
	"placemap/internal/geo"
)

// MinThreshold is the floor for the grouping distance, in meters.
const MinThreshold = 50.0

// Cluster is one group of locations. A single-member cluster means no
// clustering occurred for that location.
type Cluster struct {
	ID        string
	Locations []domain.Location
	Center    orb.Point // [lng, lat]
}

func (c Cluster) IsSingle() bool { return len(c.Locations) == 1 }

func (c Cluster) Size() int { return len(c.Locations) }

// Contains reports whether any member has the given location id.
func (c Cluster) Contains(id string) bool {
	if id == "" {
		return false
	}
	for _, l := range c.Locations {
		if l.ID == id {
			return true
		}
	}
	return false
}

// Threshold returns the grouping distance in meters for a zoom level.
// It doubles for every zoom level below 10 and never drops under MinThreshold.
func Threshold(zoom float64) float64 {
	return math.Max(MinThreshold, 500/math.Pow(2, zoom-10))
}

// Detect partitions points into clusters with a greedy single pass.
//
// Each unprocessed point seeds a group; every other unprocessed point within
// Threshold(zoom) meters of the seed (not of the group's centroid) joins it.
// The result depends on input order. Points are assumed to have valid
// coordinates; see geo.FilterValid.
func Detect(points []domain.Location, zoom float64) []Cluster {
	threshold := Threshold(zoom)
	processed := make([]bool, len(points))
	seen := make(map[string]struct{}, len(points))
	out := make([]Cluster, 0, len(points))

	for i, seed := range points {
		if processed[i] {
			continue
		}
		processed[i] = true
		if _, dup := seen[seed.ID]; dup {
			// same id twice in the input: keep the first occurrence only
			continue
		}
		seen[seed.ID] = struct{}{}

		group := []domain.Location{seed}
		for j := i + 1; j < len(points); j++ {
			if processed[j] {
				continue
			}
			p := points[j]
			if geo.Distance(seed.Latitude, seed.Longitude, p.Latitude, p.Longitude) <= threshold {
				processed[j] = true
				if _, dup := seen[p.ID]; dup {
					continue
				}
				seen[p.ID] = struct{}{}
				group = append(group, p)
			}
		}
		out = append(out, newCluster(group))
	}

	observability.ObserveClusters(len(points), len(out))
	return out
}

func newCluster(group []domain.Location) Cluster {
	if len(group) == 1 {
		p := group[0]
		return Cluster{
			ID:        "single-" + p.ID,
			Locations: group,
			Center:    orb.Point{p.Longitude, p.Latitude},
		}
	}
	var sumLat, sumLng float64
	for _, p := range group {
		sumLat += p.Latitude
		sumLng += p.Longitude
	}
	n := float64(len(group))
	lat, lng := sumLat/n, sumLng/n
	return Cluster{
		ID:        "cluster-" + formatCoord(lat) + "-" + formatCoord(lng),
		Locations: group,
		Center:    orb.Point{lng, lat},
	}
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Signature identifies a clustering result by cluster ids and membership.
// Two results with the same signature render the same marker set.
func Signature(cs []Cluster) string {
	var b strings.Builder
	for _, c := range cs {
		b.WriteString(c.ID)
		b.WriteByte('[')
		for i, l := range c.Locations {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(l.ID)
		}
		b.WriteString("];")
	}
	return b.String()
}
