package app

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"placemap/internal/domain"
	"placemap/internal/geo"
)

/********** alias registries (single source of truth) **********/

var locationAliases = map[string][]string{
	"name":        {"name", "title", "displayName"},
	"description": {"description", "summary", "shortDescription", "excerpt"},
	"address": {
		"location.formatted_address", "formattedAddress", "formatted_address",
		"address", "address.line", "location.address", "street_address",
	},
}

// coordPairs lists lat/lng paths in the order they are tried.
var coordPairs = [][2]string{
	{"latitude", "longitude"},
	{"lat", "lng"},
	{"lat", "lon"},
	{"coordinates.lat", "coordinates.lng"},
	{"coordinates.latitude", "coordinates.longitude"},
	{"location.lat", "location.lng"},
	{"location.latitude", "location.longitude"},
	{"geocodes.main.latitude", "geocodes.main.longitude"},
	{"position.lat", "position.lng"},
}

// geoJSONPaths hold either a GeoJSON Point or a bare [lng, lat] array.
var geoJSONPaths = []string{"location", "geometry", "point", "coordinates", "geo"}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns string at path or "".
func lookupStr(m map[string]any, path string) string {
	if v := lookupAny(m, path); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) *string {
	for _, p := range aliases[key] {
		if s := strings.TrimSpace(lookupStr(m, p)); s != "" {
			return &s
		}
	}
	return nil
}

// lookupID returns a string or numeric id at path.
func lookupID(m map[string]any, path string) string {
	switch v := lookupAny(m, path).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

// getFloatFlexible: number from several paths (float64/int/string like "8,0").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// firstSliceStrings: accept []any with either strings or {url/src/name},
// Foursquare {prefix, suffix} photos, or CMS {image: {url}} uploads.
func firstSliceStrings(m map[string]any, paths ...string) []string {
	for _, k := range paths {
		raw, ok := lookupAny(m, k).([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, it := range raw {
			switch t := it.(type) {
			case string:
				if t != "" {
					out = append(out, t)
				}
			case map[string]any:
				if s := itemString(t); s != "" {
					out = append(out, s)
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func itemString(t map[string]any) string {
	for _, k := range []string{"url", "src", "name"} {
		if u, ok := t[k].(string); ok && u != "" {
			return u
		}
	}
	prefix, _ := t["prefix"].(string)
	suffix, _ := t["suffix"].(string)
	if prefix != "" && suffix != "" {
		return prefix + "original" + suffix
	}
	if img, ok := t["image"].(map[string]any); ok {
		return itemString(img)
	}
	return ""
}

/********** coordinates **********/

// resolveCoords finds a lat/lng pair in any accepted record shape.
// It returns the raw values; validation is up to the caller.
func resolveCoords(m map[string]any) (lat, lng any, ok bool) {
	for _, p := range coordPairs {
		la, lo := lookupAny(m, p[0]), lookupAny(m, p[1])
		if la != nil && lo != nil {
			return la, lo, true
		}
	}
	for _, path := range geoJSONPaths {
		switch v := lookupAny(m, path).(type) {
		case map[string]any:
			if arr, ok := v["coordinates"].([]any); ok && len(arr) >= 2 {
				return arr[1], arr[0], true
			}
		case []any:
			if len(v) >= 2 {
				return v[1], v[0], true
			}
		}
	}
	return nil, nil, false
}

/********** location mapper **********/

// mapLocation converts a raw source record into a Location. ok is false when
// the record has no id or no valid coordinates.
func mapLocation(source string, rec map[string]any) (domain.Location, bool) {
	var sourceID string
	switch source {
	case domain.SourceFoursquare:
		sourceID = lookupID(rec, "fsq_id")
	default:
		sourceID = lookupID(rec, "id")
	}
	if sourceID == "" {
		sourceID = lookupID(rec, "id")
	}
	if sourceID == "" {
		return domain.Location{}, false
	}

	rawLat, rawLng, found := resolveCoords(rec)
	if !found || !geo.IsValidCoordinate(rawLat, rawLng) {
		return domain.Location{}, false
	}
	lat, _ := geo.ParseCoordinate(rawLat)
	lng, _ := geo.ParseCoordinate(rawLng)

	raw, err := json.Marshal(rec)
	if err != nil {
		log.Error().Err(err).
			Str("context", "mapLocation").
			Msg("failed to marshal record to JSON")
	}

	l := domain.Location{
		ID:          fmt.Sprintf("%s:%s", sourcePrefix(source), sourceID),
		Name:        deref(firstNonEmptyAlias(rec, locationAliases, "name")),
		Latitude:    lat,
		Longitude:   lng,
		Categories:  categories(rec),
		Rating:      getFloatFlexible(rec, "rating", "averageRating", "rating.value", "score"),
		Images:      firstSliceStrings(rec, "images", "photos", "gallery"),
		Description: firstNonEmptyAlias(rec, locationAliases, "description"),
		Address:     firstNonEmptyAlias(rec, locationAliases, "address"),
		Source:      source,
		SourceID:    sourceID,
		RawJSON:     raw,
	}
	if l.Images == nil {
		if s := lookupStr(rec, "featuredImage.url"); s != "" {
			l.Images = []string{s}
		}
	}
	return l, true
}

func categories(rec map[string]any) []string {
	if cs := firstSliceStrings(rec, "categories", "tags"); len(cs) > 0 {
		return cs
	}
	if s := strings.TrimSpace(lookupStr(rec, "category")); s != "" {
		return []string{s}
	}
	if s := strings.TrimSpace(lookupStr(rec, "category.name")); s != "" {
		return []string{s}
	}
	return nil
}

func sourcePrefix(source string) string {
	if source == domain.SourceFoursquare {
		return "fsq"
	}
	return source
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
