package geo_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"placemap/internal/domain"
	"placemap/internal/geo"
)

func TestIsValidCoordinate(t *testing.T) {
	f := 12.5
	cases := []struct {
		name     string
		lat, lng any
		want     bool
	}{
		{"origin", 0.0, 0.0, true},
		{"zero ints", 0, 0, true},
		{"equator string", "0", "-0.1278", true},
		{"bounds", 90.0, -180.0, true},
		{"other bounds", -90.0, 180.0, true},
		{"pointer", &f, 1.0, true},
		{"json number", json.Number("51.5"), json.Number("-0.12"), true},
		{"lat too high", 90.0001, 0.0, false},
		{"lng too low", 0.0, -180.5, false},
		{"nil lat", nil, 1.0, false},
		{"nil lng", 1.0, nil, false},
		{"nil pointer", (*float64)(nil), 1.0, false},
		{"garbage string", "north", 1.0, false},
		{"empty string", "", 1.0, false},
		{"nan", math.NaN(), 0.0, false},
		{"inf", 0.0, math.Inf(1), false},
	}
	for _, tc := range cases {
		if got := geo.IsValidCoordinate(tc.lat, tc.lng); got != tc.want {
			t.Fatalf("%s: IsValidCoordinate(%v, %v) = %v, want %v", tc.name, tc.lat, tc.lng, got, tc.want)
		}
	}
}

func TestIsValidCoordinate_Grid(t *testing.T) {
	for lat := -90.0; lat <= 90; lat += 7.5 {
		for lng := -180.0; lng <= 180; lng += 15 {
			if !geo.IsValidCoordinate(lat, lng) {
				t.Fatalf("expected (%v,%v) to be valid", lat, lng)
			}
		}
	}
}

func TestDistance_SymmetryAndIdentity(t *testing.T) {
	pts := [][2]float64{
		{0, 0}, {51.5074, -0.1278}, {-33.8688, 151.2093}, {40.7128, -74.006}, {89.9, 179.9}, {-45, -170},
	}
	for _, a := range pts {
		if d := geo.Distance(a[0], a[1], a[0], a[1]); d != 0 {
			t.Fatalf("distance to self = %v", d)
		}
		for _, b := range pts {
			ab := geo.Distance(a[0], a[1], b[0], b[1])
			ba := geo.Distance(b[0], b[1], a[0], a[1])
			if ab < 0 || math.IsNaN(ab) {
				t.Fatalf("bad distance %v", ab)
			}
			if ab > 0 && math.Abs(ab-ba)/ab > 1e-6 {
				t.Fatalf("asymmetric: %v vs %v", ab, ba)
			}
		}
	}
}

func TestDistance_Monotonic(t *testing.T) {
	// walk east along the equator up to the antipode
	prev := 0.0
	for step := 1; step <= 1800; step++ {
		lng := float64(step) / 10
		d := geo.Distance(0, 0, 0, lng)
		if d <= prev {
			t.Fatalf("distance not increasing at lng=%v: %v <= %v", lng, d, prev)
		}
		prev = d
	}
}

func TestDistance_KnownValue(t *testing.T) {
	// one degree of latitude on a 6371km sphere
	want := 6371000.0 * math.Pi / 180
	got := geo.Distance(10, 20, 11, 20)
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestMetersPerPixel(t *testing.T) {
	if got := geo.MetersPerPixel(0, 0); math.Abs(got-156543.03392) > 1e-9 {
		t.Fatalf("zoom 0 equator: %v", got)
	}
	z10 := geo.MetersPerPixel(0, 10)
	z11 := geo.MetersPerPixel(0, 11)
	if math.Abs(z10/z11-2) > 1e-9 {
		t.Fatalf("expected halving per zoom level: %v %v", z10, z11)
	}
	if geo.MetersPerPixel(60, 10) >= z10 {
		t.Fatalf("expected smaller ground resolution away from the equator")
	}
}

func TestOffset_RoundTripsDistance(t *testing.T) {
	lat, lng := geo.Offset(48.85, 2.35, 100, 0)
	if d := geo.Distance(48.85, 2.35, lat, lng); math.Abs(d-100) > 0.01 {
		t.Fatalf("north offset distance %v", d)
	}
	lat, lng = geo.Offset(48.85, 2.35, 0, 100)
	if d := geo.Distance(48.85, 2.35, lat, lng); math.Abs(d-100) > 0.01 {
		t.Fatalf("east offset distance %v", d)
	}
}

func TestFilterValid(t *testing.T) {
	in := []domain.Location{
		{ID: "a", Latitude: 0, Longitude: 0},
		{ID: "b", Latitude: 91, Longitude: 0},
		{ID: "c", Latitude: math.NaN(), Longitude: 1},
		{ID: "d", Latitude: 10, Longitude: -10},
		{ID: "", Latitude: 11, Longitude: -11},
		{ID: "", Latitude: 12, Longitude: -12},
	}
	out := geo.FilterValid(in, zerolog.Nop())
	if len(out) != 2 || out[0].ID != "a" || out[1].ID != "d" {
		t.Fatalf("unexpected filter result: %+v", out)
	}
}
