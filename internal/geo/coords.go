package geo

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"placemap/internal/adapters/observability"
	"placemap/internal/domain"
)

// ParseCoordinate coerces a raw coordinate value into a float64.
// Strings are parsed as floating point; anything unparseable is NaN.
// ok is false only when the value is absent (nil).
func ParseCoordinate(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case *float64:
		if t == nil {
			return 0, false
		}
		return *t, true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return math.NaN(), true
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return math.NaN(), true
		}
		return f, true
	default:
		return math.NaN(), true
	}
}

// IsValidCoordinate reports whether lat/lng are present, finite and in range.
// Zero is a valid value on both axes.
func IsValidCoordinate(lat, lng any) bool {
	la, ok := ParseCoordinate(lat)
	if !ok {
		return false
	}
	lo, ok := ParseCoordinate(lng)
	if !ok {
		return false
	}
	if math.IsNaN(la) || math.IsInf(la, 0) || math.IsNaN(lo) || math.IsInf(lo, 0) {
		return false
	}
	return la >= -90 && la <= 90 && lo >= -180 && lo <= 180
}

// FilterValid drops locations whose coordinates fail validation, and
// locations without an id since they cannot be keyed as markers.
// Input order is preserved; drops are logged at debug level.
func FilterValid(locs []domain.Location, l zerolog.Logger) []domain.Location {
	out := make([]domain.Location, 0, len(locs))
	for _, loc := range locs {
		if loc.ID == "" {
			l.Debug().
				Float64("lat", loc.Latitude).
				Float64("lng", loc.Longitude).
				Msg("skipping location without id")
			continue
		}
		if !IsValidCoordinate(loc.Latitude, loc.Longitude) {
			l.Debug().
				Str("id", loc.ID).
				Float64("lat", loc.Latitude).
				Float64("lng", loc.Longitude).
				Msg("skipping location with invalid coordinates")
			observability.ObserveInvalidCoordinate()
			continue
		}
		out = append(out, loc)
	}
	return out
}
