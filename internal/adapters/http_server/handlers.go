// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"placemap/internal/app"
	"placemap/internal/cluster"
	"placemap/internal/domain"
	"placemap/internal/marker"
)

const maxListLimit = 1000

type Handlers struct {
	Q *app.QueryService
	// Maps renders markers for /v1/map/markers. Defaults to a headless map.
	Maps marker.Provider
	// Live serves /v1/map/ws when set.
	Live http.Handler
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// locationDTO is the wire shape of a location.
type locationDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Category    string   `json:"category,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	Images      []string `json:"images,omitempty"`
	Description *string  `json:"description,omitempty"`
	Address     *string  `json:"address,omitempty"`
	Source      string   `json:"source,omitempty"`
}

func toDTO(l domain.Location) locationDTO {
	return locationDTO{
		ID: l.ID, Name: l.Name, Lat: l.Latitude, Lng: l.Longitude,
		Category: l.Category(), Categories: l.Categories, Rating: l.Rating,
		Images: l.Images, Description: l.Description, Address: l.Address, Source: l.Source,
	}
}

func (s *Server) MountHandlers(h *Handlers) {
	if h.Maps == nil {
		h.Maps = marker.HeadlessProvider{}
	}
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Group(func(r chi.Router) {
		r.Use(Timeout(requestTimeout))
		r.Get("/v1/locations", h.listLocations)
		r.Get("/v1/locations/{id}", h.getLocation)
		r.Get("/v1/map/clusters", h.clusters)
		r.Get("/v1/map/markers", h.markers)
		r.Get("/v1/map/spider", h.spider)
	})

	if h.Live != nil {
		s.mux.Handle("/v1/map/ws", h.Live)
	}
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeErr maps service errors onto problem responses.
func writeErr(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, domain.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", what+" not found")
		return
	}
	log.Error().Err(err).Str("what", what).Msg("query failed")
	writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		// Log but don't fail the whole response; return empty ETag and best-effort body.
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached writes v as contentType with a weak ETag, answering 304 when it matches.
func writeCached(w http.ResponseWriter, r *http.Request, v any, contentType string) {
	etag, body := calcETagAndBody(v)
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

// ---- query parsing ----

// parseBBox reads "west,south,east,north". An empty value means no bounds.
func parseBBox(s string) (*domain.Bounds, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, errors.New("bbox must be west,south,east,north")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.New("bbox values must be numbers")
		}
		v[i] = f
	}
	b := &domain.Bounds{West: v[0], South: v[1], East: v[2], North: v[3]}
	if b.South > b.North || b.South < -90 || b.North > 90 ||
		b.West < -180 || b.West > 180 || b.East < -180 || b.East > 180 {
		return nil, errors.New("bbox out of range")
	}
	return b, nil
}

func parseZoom(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("zoom is required")
	}
	z, err := strconv.ParseFloat(s, 64)
	if err != nil || z < 0 || z > 24 {
		return 0, errors.New("zoom must be a number between 0 and 24")
	}
	return z, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// viewport parses bbox, zoom and category shared by the map routes.
func viewport(w http.ResponseWriter, r *http.Request) (domain.ViewportQuery, bool) {
	q := r.URL.Query()
	b, err := parseBBox(q.Get("bbox"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid bbox", err.Error())
		return domain.ViewportQuery{}, false
	}
	z, err := parseZoom(q.Get("zoom"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid zoom", err.Error())
		return domain.ViewportQuery{}, false
	}
	return domain.ViewportQuery{Bounds: b, Zoom: z, Category: optional(q.Get("category"))}, true
}

// ---- locations ----

func (h *Handlers) getLocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id is required")
		return
	}
	l, err := h.Q.GetLocation(r.Context(), id)
	if err != nil {
		writeErr(w, err, "location")
		return
	}
	writeCached(w, r, toDTO(l), "application/json")
}

func (h *Handlers) listLocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	b, err := parseBBox(q.Get("bbox"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid bbox", err.Error())
		return
	}

	limit := 100
	if ls := q.Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > maxListLimit {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 1000")
			return
		}
		limit = l
	}

	page, err := h.Q.ListLocations(r.Context(), domain.LocationsQuery{
		Bounds:   b,
		Category: optional(q.Get("category")),
		Q:        optional(q.Get("q")),
		Limit:    limit,
	})
	if err != nil {
		writeErr(w, err, "locations")
		return
	}
	items := make([]locationDTO, 0, len(page.Items))
	for _, l := range page.Items {
		items = append(items, toDTO(l))
	}
	writeCached(w, r, map[string]any{"items": items}, "application/json")
}

// ---- map ----

const geoJSONType = "application/geo+json"

func (h *Handlers) clusters(w http.ResponseWriter, r *http.Request) {
	vq, ok := viewport(w, r)
	if !ok {
		return
	}
	cs, err := h.Q.Clusters(r.Context(), vq)
	if err != nil {
		writeErr(w, err, "clusters")
		return
	}
	fc := geojson.NewFeatureCollection()
	for _, c := range cs {
		fc.Append(clusterFeature(c))
	}
	fc.ExtraMembers = geojson.Properties{
		"zoom":      vq.Zoom,
		"threshold": cluster.Threshold(vq.Zoom),
	}
	writeCached(w, r, fc, geoJSONType)
}

func clusterFeature(c cluster.Cluster) *geojson.Feature {
	f := geojson.NewFeature(c.Center)
	f.ID = c.ID
	f.Properties["count"] = c.Size()
	ids := make([]string, 0, c.Size())
	for _, l := range c.Locations {
		ids = append(ids, l.ID)
	}
	f.Properties["member_ids"] = ids
	if c.IsSingle() {
		l := c.Locations[0]
		f.Properties["kind"] = string(marker.KindSingle)
		f.Properties["name"] = l.Name
		if cat := l.Category(); cat != "" {
			f.Properties["category"] = cat
		}
	} else {
		f.Properties["kind"] = string(marker.KindCluster)
	}
	return f
}

// markers runs a full render pass on a headless map and returns the views.
func (h *Handlers) markers(w http.ResponseWriter, r *http.Request) {
	vq, ok := viewport(w, r)
	if !ok {
		return
	}
	cs, err := h.Q.Clusters(r.Context(), vq)
	if err != nil {
		writeErr(w, err, "markers")
		return
	}
	m, err := h.Maps.Initialize(r.Context())
	if err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Map Unavailable", err.Error())
		return
	}
	mgr := marker.NewManager(marker.Callbacks{}, marker.WithLogger(log.Logger))
	mgr.Attach(m)
	defer mgr.Close()
	mgr.Render(cs, r.URL.Query().Get("selected"))

	fc := geojson.NewFeatureCollection()
	for _, v := range mgr.Views() {
		f := geojson.NewFeature(v.Position)
		f.ID = v.Key
		f.Properties["kind"] = string(v.Kind)
		f.Properties["selected"] = v.Selected
		f.Properties["z_index"] = v.ZIndex
		f.Properties["count"] = v.Count
		f.Properties["label"] = v.Label
		if v.Preview != nil {
			f.Properties["preview"] = v.Preview
		}
		if len(v.Members) > 0 {
			f.Properties["members"] = v.Members
		}
		fc.Append(f)
	}
	writeCached(w, r, fc, geoJSONType)
}

// spider returns the fanned-out member positions of one cluster plus a leg
// line from the cluster center to each member.
func (h *Handlers) spider(w http.ResponseWriter, r *http.Request) {
	vq, ok := viewport(w, r)
	if !ok {
		return
	}
	id := r.URL.Query().Get("cluster")
	if id == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid cluster", "cluster is required")
		return
	}
	radius := cluster.DefaultSpiderRadius
	if rs := r.URL.Query().Get("radius"); rs != "" {
		f, err := strconv.ParseFloat(rs, 64)
		if err != nil || f <= 0 || f > 500 {
			writeProblem(w, http.StatusBadRequest, "Invalid radius", "radius must be between 0 and 500 pixels")
			return
		}
		radius = f
	}

	c, legs, err := h.Q.Spider(r.Context(), vq, id, radius)
	if err != nil {
		writeErr(w, err, "cluster")
		return
	}
	fc := geojson.NewFeatureCollection()
	for _, leg := range legs {
		pt := geojson.NewFeature(leg.Position)
		pt.ID = leg.Location.ID
		pt.Properties["kind"] = "member"
		pt.Properties["name"] = leg.Location.Name
		pt.Properties["lat"] = leg.Location.Latitude
		pt.Properties["lng"] = leg.Location.Longitude
		fc.Append(pt)

		line := geojson.NewFeature(orb.LineString{c.Center, leg.Position})
		line.Properties["kind"] = "leg"
		line.Properties["member_id"] = leg.Location.ID
		fc.Append(line)
	}
	fc.ExtraMembers = geojson.Properties{
		"cluster": c.ID,
		"center":  c.Center,
	}
	writeCached(w, r, fc, geoJSONType)
}
