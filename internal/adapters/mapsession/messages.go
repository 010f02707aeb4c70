// Package mapsession drives the marker layer of a browser map over a websocket.
// The browser owns the real map; the server owns clustering and the marker
// registry and tells the browser which markers to add and remove.
package mapsession

import (
	"time"

	"github.com/paulmach/orb"

	"placemap/internal/marker"
)

// client -> server
const (
	msgLoad        = "load"
	msgMove        = "move"
	msgSelect      = "select"
	msgMarker      = "marker"
	msgMapClick    = "map_click"
	msgDataChanged = "data_changed"
)

// server -> client
const (
	msgHello        = "hello"
	msgMarkerAdd    = "marker_add"
	msgMarkerMove   = "marker_move"
	msgMarkerRemove = "marker_remove"
	msgFlyTo        = "fly_to"
	msgPreview      = "preview"
	msgPreviewHide  = "preview_hide"
	msgSelected     = "select"
	msgViewDetail   = "view_detail"
	msgError        = "error"
)

// inbound is every field a client message may carry; Type picks which apply.
type inbound struct {
	Type string `json:"type"`

	// move
	Center *orb.Point  `json:"center,omitempty"`
	Zoom   *float64    `json:"zoom,omitempty"`
	Bounds *[4]float64 `json:"bounds,omitempty"` // west, south, east, north

	// select
	ID string `json:"id,omitempty"`

	// marker
	Key      string           `json:"key,omitempty"`
	Event    marker.EventType `json:"event,omitempty"`
	MemberID string           `json:"member_id,omitempty"`
	At       *time.Time       `json:"at,omitempty"`

	// map_click
	LngLat *orb.Point `json:"lng_lat,omitempty"`
}

type outbound struct {
	Type     string             `json:"type"`
	Session  string             `json:"session,omitempty"`
	Marker   *marker.View       `json:"marker,omitempty"`
	Key      string             `json:"key,omitempty"`
	Position *orb.Point         `json:"position,omitempty"`
	Center   *orb.Point         `json:"center,omitempty"`
	Zoom     *float64           `json:"zoom,omitempty"`
	Preview  *marker.Preview    `json:"preview,omitempty"`
	Members  []marker.MemberRow `json:"members,omitempty"`
	Location *locationOut       `json:"location,omitempty"`
	Detail   string             `json:"detail,omitempty"`
}

type locationOut struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Category string   `json:"category,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}
