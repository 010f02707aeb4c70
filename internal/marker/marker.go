// Package marker turns clusters into interactive map markers and owns
// their lifecycle on a map.
package marker

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/paulmach/orb"

	"placemap/internal/cluster"
	"placemap/internal/domain"
)

type Kind string

const (
	KindSingle  Kind = "single"
	KindCluster Kind = "cluster"
)

const (
	zBase     = 1
	zSelected = 10

	snippetLen = 120

	// DefaultLongPress is how long a touch must be held to count as "view details".
	DefaultLongPress = 500 * time.Millisecond
)

// Preview is what a hover (or tap on a cluster) shows without navigating.
type Preview struct {
	Name     string   `json:"name"`
	ImageURL string   `json:"image_url,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
	Category string   `json:"category,omitempty"`
	Snippet  string   `json:"snippet,omitempty"`
}

// MemberRow is one entry in a cluster badge's list.
type MemberRow struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

// View is the toolkit-neutral view-model of one marker.
type View struct {
	Key      string      `json:"key"`
	Kind     Kind        `json:"kind"`
	Position orb.Point   `json:"position"`
	Selected bool        `json:"selected"`
	ZIndex   int         `json:"z_index"`
	Count    int         `json:"count"`
	Label    string      `json:"label"`
	Preview  *Preview    `json:"preview,omitempty"`
	Members  []MemberRow `json:"members,omitempty"`
}

// Callbacks are the only outward signals of the marker layer.
// Nil callbacks are ignored.
type Callbacks struct {
	OnMarkerClick func(domain.Location)
	OnViewDetail  func(domain.Location)
	OnMapClick    func(orb.Point)
	OnMapMove     func(center orb.Point, zoom float64)
}

func (c Callbacks) markerClick(l domain.Location) {
	if c.OnMarkerClick != nil {
		c.OnMarkerClick(l)
	}
}

func (c Callbacks) viewDetail(l domain.Location) {
	if c.OnViewDetail != nil {
		c.OnViewDetail(l)
	}
}

// Renderable is a marker variant that can describe itself and bind handlers.
type Renderable interface {
	Key() string
	Render() View
	Bind(cb Callbacks, longPress time.Duration) Binding
}

// Binding is the live set of handlers attached to one rendered marker.
type Binding interface {
	Handle(ev Event) Reaction
}

// Map is the capability surface of a loaded map.
type Map interface {
	AddMarker(v View) (Handle, error)
	FlyTo(center orb.Point, zoom float64) error
	Loaded() bool
}

// Handle is one marker attached to a Map.
type Handle interface {
	SetLngLat(p orb.Point) error
	Remove() error
}

// Provider initializes a map and blocks until it signals it has loaded.
type Provider interface {
	Initialize(ctx context.Context) (Map, error)
}

// Build picks the marker variant for a cluster.
func Build(c cluster.Cluster, selectedID string) Renderable {
	if c.IsSingle() {
		return &SingleMarker{Location: c.Locations[0], Position: c.Center, Selected: c.Locations[0].ID == selectedID}
	}
	return &ClusterBadgeMarker{Cluster: c, Selected: c.Contains(selectedID)}
}

func previewOf(l domain.Location) *Preview {
	p := &Preview{
		Name:     l.Name,
		ImageURL: l.ImageURL(),
		Rating:   l.Rating,
		Category: l.Category(),
	}
	if l.Description != nil {
		p.Snippet = snippet(*l.Description, snippetLen)
	}
	return p
}

func snippet(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

func zIndex(selected bool) int {
	if selected {
		return zSelected
	}
	return zBase
}
