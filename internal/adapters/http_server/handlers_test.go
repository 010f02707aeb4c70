package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	httpserver "placemap/internal/adapters/http_server"
	"placemap/internal/adapters/mapsession"
	"placemap/internal/app"
	"placemap/internal/domain"
)

// ---- fakes ----

type memRepo struct{ locs []domain.Location }

func (m *memRepo) UpsertLocation(ctx context.Context, l domain.Location) error { return nil }
func (m *memRepo) LogMiss(ctx context.Context, source, ref string, status int, reason string) error {
	return nil
}
func (m *memRepo) GetLocation(ctx context.Context, id string) (domain.Location, error) {
	for _, l := range m.locs {
		if l.ID == id {
			return l, nil
		}
	}
	return domain.Location{}, domain.ErrNotFound
}
func (m *memRepo) ListLocations(ctx context.Context, q domain.LocationsQuery) (domain.LocationsPage, error) {
	var out domain.LocationsPage
	for _, l := range m.locs {
		if q.Bounds != nil && !q.Bounds.Contains(l.Latitude, l.Longitude) {
			continue
		}
		out.Items = append(out.Items, l)
	}
	return out, nil
}

type noCache struct{}

func (noCache) Get(ctx context.Context, key string, dst any) (bool, error)     { return false, nil }
func (noCache) Set(ctx context.Context, key string, v any, ttlSec int) error   { return nil }
func (noCache) Del(ctx context.Context, key string) error                     { return nil }
func (noCache) Incr(ctx context.Context, key string) (int64, error)           { return 1, nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo := &memRepo{locs: []domain.Location{
		{ID: "a", Name: "Alpha", Latitude: 40.7128, Longitude: -74.0060, Categories: []string{"Cafe"}},
		{ID: "b", Name: "Bravo", Latitude: 40.71282, Longitude: -74.00602},
		{ID: "c", Name: "Charlie", Latitude: 40.7580, Longitude: -73.9855},
	}}
	q := app.NewQueryService(repo, noCache{}, nil, time.Minute, zerolog.Nop())
	s := httpserver.New(zerolog.Nop())
	s.MountHandlers(&httpserver.Handlers{Q: q})
	ts := httptest.NewServer(s.Mux())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string, hdr ...string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// ---- tests ----

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	if resp := get(t, ts.URL+"/healthz"); resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestGetLocation_ETagAndNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts.URL+"/v1/locations/a")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["id"] != "a" || body["category"] != "Cafe" || body["lat"] != 40.7128 {
		t.Fatalf("unexpected body %v", body)
	}
	etag := resp.Header.Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("missing weak etag: %q", etag)
	}

	if resp := get(t, ts.URL+"/v1/locations/a", "If-None-Match", etag); resp.StatusCode != http.StatusNotModified {
		t.Fatalf("want 304, got %d", resp.StatusCode)
	}

	resp = get(t, ts.URL+"/v1/locations/zzz")
	if resp.StatusCode != http.StatusNotFound || resp.Header.Get("Content-Type") != "application/problem+json" {
		t.Fatalf("want problem 404, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestListLocations_Validation(t *testing.T) {
	ts := newTestServer(t)
	for _, q := range []string{"bbox=1,2,3", "bbox=a,b,c,d", "bbox=0,10,1,5", "limit=0", "limit=5000"} {
		if resp := get(t, ts.URL+"/v1/locations?"+q); resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: want 400, got %d", q, resp.StatusCode)
		}
	}
	resp := get(t, ts.URL+"/v1/locations?bbox=-74.1,40.7,-74.0,40.72&limit=10")
	var body struct {
		Items []map[string]any `json:"items"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if len(body.Items) != 2 {
		t.Fatalf("want 2 items in bbox, got %d", len(body.Items))
	}
}

func TestClusters_GeoJSON(t *testing.T) {
	ts := newTestServer(t)

	if resp := get(t, ts.URL+"/v1/map/clusters"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("zoom required: got %d", resp.StatusCode)
	}

	resp := get(t, ts.URL+"/v1/map/clusters?zoom=14")
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Fatalf("content type %q", ct)
	}
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("want 2 features, got %d", len(fc.Features))
	}
	first := fc.Features[0]
	if first.Properties.MustString("kind") != "cluster" || first.Properties.MustFloat64("count") != 2 {
		t.Fatalf("first feature: %v", first.Properties)
	}
	if fc.Features[1].ID != "single-c" {
		t.Fatalf("second id %v", fc.Features[1].ID)
	}
}

func TestMarkers_HeadlessRender(t *testing.T) {
	ts := newTestServer(t)
	resp := get(t, ts.URL+"/v1/map/markers?zoom=14&selected=c")
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("want 2 markers, got %d", len(fc.Features))
	}
	var selected int
	for _, f := range fc.Features {
		if f.Properties.MustBool("selected", false) {
			selected++
			if f.ID != "c" || f.Properties.MustFloat64("z_index") != 10 {
				t.Fatalf("selected marker wrong: %v %v", f.ID, f.Properties)
			}
		}
	}
	if selected != 1 {
		t.Fatalf("want one selected marker, got %d", selected)
	}
}

func TestSpider(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts.URL+"/v1/map/clusters?zoom=14")
	var fc geojson.FeatureCollection
	_ = json.NewDecoder(resp.Body).Decode(&fc)
	id, _ := fc.Features[0].ID.(string)

	resp = get(t, ts.URL+"/v1/map/spider?zoom=14&cluster="+id)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var sp geojson.FeatureCollection
	_ = json.NewDecoder(resp.Body).Decode(&sp)
	// one point and one leg line per member
	if len(sp.Features) != 4 {
		t.Fatalf("want 4 features, got %d", len(sp.Features))
	}

	if resp := get(t, ts.URL+"/v1/map/spider?zoom=14&cluster=cluster-1-1"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("stale cluster: want 404, got %d", resp.StatusCode)
	}
	if resp := get(t, ts.URL+"/v1/map/spider?zoom=14&cluster="+id+"&radius=-3"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad radius: want 400, got %d", resp.StatusCode)
	}
}

func TestLiveMap_UpgradesThroughMiddleware(t *testing.T) {
	repo := &memRepo{locs: []domain.Location{
		{ID: "c", Name: "Charlie", Latitude: 40.7580, Longitude: -73.9855},
	}}
	q := app.NewQueryService(repo, noCache{}, nil, time.Minute, zerolog.Nop())
	s := httpserver.New(zerolog.Nop())
	s.MountHandlers(&httpserver.Handlers{Q: q, Live: mapsession.NewHandler(q, mapsession.Config{}, zerolog.Nop())})
	ts := httptest.NewServer(s.Mux())
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/map/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status %d", resp.StatusCode)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var hello struct {
		Type    string `json:"type"`
		Session string `json:"session"`
	}
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read: %v", err)
	}
	if hello.Type != "hello" || hello.Session == "" {
		t.Fatalf("unexpected first frame %+v", hello)
	}

	if err := conn.WriteJSON(map[string]any{"type": "load"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(map[string]any{"type": "move", "zoom": 14, "bounds": []float64{-74.1, 40.7, -73.9, 40.8}}); err != nil {
		t.Fatal(err)
	}
	var add struct {
		Type   string         `json:"type"`
		Marker map[string]any `json:"marker"`
	}
	for add.Type != "marker_add" {
		if err := conn.ReadJSON(&add); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if add.Marker["key"] != "c" {
		t.Fatalf("marker %+v", add.Marker)
	}
}
