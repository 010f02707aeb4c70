//go:build integration || !unit

package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"placemap/internal/adapters/foursquare"
	server "placemap/internal/adapters/http_server"
	redisad "placemap/internal/adapters/redis"
	"placemap/internal/app"
	"placemap/internal/domain"
	mysqlrepo "placemap/internal/storage/mysql"
)

// ---------- helpers ----------

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = filepath.Join("..", "..", "migrations")
	}
	if err := mysqlrepo.MigrateUp(db, dir, zerolog.Nop()); err != nil {
		t.Fatalf("migrate %s: %v", dir, err)
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("dockertest: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not reachable: %v", err)
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env:        []string{"MYSQL_ROOT_PASSWORD=root", "MYSQL_DATABASE=placemap"},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/placemap?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		resource.GetPort("3306/tcp"))
	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	applyMigrations(t, db)
	return db
}

// fakePlaces answers the Places search endpoint with three venues in
// lower Manhattan, two of them a few meters apart, plus one broken record.
func fakePlaces(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.Header.Get("Authorization") != "test-key" {
			http.Error(w, "nope", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"fsq_id": "a", "name": "Alpha", "categories": [{"name": "Cafe"}],
			 "geocodes": {"main": {"latitude": 40.7128, "longitude": -74.0060}}},
			{"fsq_id": "b", "name": "Bravo",
			 "geocodes": {"main": {"latitude": 40.71282, "longitude": -74.00602}}},
			{"fsq_id": "c", "name": "Charlie",
			 "geocodes": {"main": {"latitude": 40.7580, "longitude": -73.9855}}},
			{"fsq_id": "x", "name": "Nowhere", "geocodes": {"main": {"latitude": null}}}
		]}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

// ---------- the test ----------
func TestHTTP_EndToEnd_ImportThenMap(t *testing.T) {
	db := startMySQL(t)
	mr := miniredis.RunT(t)

	repo := mysqlrepo.New(db)
	cache := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = cache.Close() })
	ctx := context.Background()

	// import through the real places client against a fake upstream
	places, err := foursquare.New(fakePlaces(t).URL, "test-key", 50)
	if err != nil {
		t.Fatal(err)
	}
	ing := app.NewImportService(places, nil, repo, cache, zerolog.Nop())
	res, err := ing.ImportNearby(ctx, domain.Seed{Lat: 40.72, Lng: -74.0, RadiusM: 5000})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 3 || res.Invalid != 1 {
		t.Fatalf("import result %+v", res)
	}

	index := app.NewIndex(repo, zerolog.Nop())
	if err := index.Refresh(ctx); err != nil {
		t.Fatalf("index: %v", err)
	}
	q := app.NewQueryService(repo, cache, index, time.Minute, zerolog.Nop())

	srv := server.New(zerolog.Nop())
	srv.MountHandlers(&server.Handlers{Q: q})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	// detail read goes through mysql and lands in redis
	res1, err := http.Get(ts.URL + "/v1/locations/fsq:a")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res1.Body.Close()
	if res1.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res1.StatusCode)
	}
	var loc struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Category string `json:"category"`
	}
	if err := json.NewDecoder(res1.Body).Decode(&loc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loc.ID != "fsq:a" || loc.Name != "Alpha" || loc.Category != "Cafe" {
		t.Fatalf("unexpected body: %+v", loc)
	}
	if !mr.Exists("placemap:location:fsq:a") {
		t.Fatalf("detail not cached, keys=%v", mr.Keys())
	}

	// clusters for the viewport come from the index
	res2, err := http.Get(ts.URL + "/v1/map/clusters?zoom=14&bbox=-74.1,40.7,-73.9,40.8")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res2.Body.Close()
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(res2.Body).Decode(&fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("want 2 clusters, got %d", len(fc.Features))
	}
	var sizes []float64
	for _, f := range fc.Features {
		sizes = append(sizes, f.Properties.MustFloat64("count"))
	}
	sort.Float64s(sizes)
	if sizes[0] != 1 || sizes[1] != 2 {
		t.Fatalf("cluster sizes %v", sizes)
	}
}
