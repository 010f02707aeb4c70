package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for all great-circle math.
const EarthRadiusMeters = 6371000.0

// groundResolution is meters per pixel at zoom 0 on the equator (Web Mercator, 256px tiles).
const groundResolution = 156543.03392

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// Distance returns the Haversine great-circle distance in meters.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push a a hair past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// MetersPerPixel is the Web Mercator ground resolution at lat for zoom.
func MetersPerPixel(lat, zoom float64) float64 {
	return groundResolution * math.Cos(toRad(lat)) / math.Pow(2, zoom)
}

// Offset moves (lat, lng) by north/east meters and returns the new position.
func Offset(lat, lng, northM, eastM float64) (float64, float64) {
	dLat := northM / EarthRadiusMeters * 180 / math.Pi
	cosLat := math.Cos(toRad(lat))
	if math.Abs(cosLat) < 1e-12 {
		return lat + dLat, lng
	}
	dLng := eastM / (EarthRadiusMeters * cosLat) * 180 / math.Pi
	return lat + dLat, lng + dLng
}
