package service

import (
	"fmt"
	"math"
	"strings"

	"firestore-typed/internal/firestore/domain/model"

	"github.com/mmcloughlin/geohash"
)

const (
	// DefaultGeohashPrecision is the number of characters GeohashLocation encodes.
	DefaultGeohashPrecision = 10

	// EarthRadiusKm is the mean radius used for distances.
	EarthRadiusKm = 6371.0

	geohashAlphabet            = "0123456789bcdefghjkmnpqrstuvwxyz"
	bitsPerChar                = 5
	maxBitsPrecision           = 22 * bitsPerChar
	earthMeridianCircumference = 40007860.0
	metersPerDegreeLatitude    = 110574.0
	earthEquatorialRadius      = 6378137.0
	earthEccentricitySquared   = 0.00669447819799
	epsilon                    = 1e-12
)

// GeoBound is a geohash range scanned with startAt(Start) and endAt(End).
type GeoBound struct {
	Start string
	End   string
}

// GeohashLocation builds a Location for the point. precision 0 uses the default.
func GeohashLocation(lat, lng float64, precision uint) model.Location {
	if precision == 0 {
		precision = DefaultGeohashPrecision
	}
	return model.Location{
		Geohash: geohash.EncodeWithPrecision(lat, lng, precision),
		Lat:     lat,
		Lng:     lng,
	}
}

// ValidateLocation checks the coordinates are on the globe.
func ValidateLocation(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("latitude must be in [-90, 90], got %v", lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return fmt.Errorf("longitude must be in [-180, 180], got %v", lng)
	}
	return nil
}

// GeohashQueryBounds returns the geohash ranges covering a circle of radiusM meters
// around the center. There are at most nine, duplicates removed.
func GeohashQueryBounds(lat, lng, radiusM float64) []GeoBound {
	queryBits := max(1, boundingBoxBits(lat, radiusM))
	precision := uint(math.Ceil(float64(queryBits) / bitsPerChar))

	var bounds []GeoBound
	for _, c := range boundingBoxCoordinates(lat, lng, radiusM) {
		b := geohashQuery(geohash.EncodeWithPrecision(c[0], c[1], precision), queryBits)
		duplicate := false
		for _, seen := range bounds {
			if seen == b {
				duplicate = true
				break
			}
		}
		if !duplicate {
			bounds = append(bounds, b)
		}
	}
	return bounds
}

// DistanceKm is the haversine distance between two points.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	latDelta := radians(lat2 - lat1)
	lngDelta := radians(lng2 - lng1)
	a := math.Sin(latDelta/2)*math.Sin(latDelta/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(lngDelta/2)*math.Sin(lngDelta/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func metersToLongitudeDegrees(distance, latitude float64) float64 {
	r := radians(latitude)
	num := math.Cos(r) * earthEquatorialRadius * math.Pi / 180
	denom := 1 / math.Sqrt(1-earthEccentricitySquared*math.Sin(r)*math.Sin(r))
	delta := num * denom
	if delta < epsilon {
		if distance > 0 {
			return 360
		}
		return 0
	}
	return math.Min(360, distance/delta)
}

func longitudeBitsForResolution(resolution, latitude float64) float64 {
	degs := metersToLongitudeDegrees(resolution, latitude)
	if math.Abs(degs) > 0.000001 {
		return math.Max(1, math.Log2(360/degs))
	}
	return 1
}

func latitudeBitsForResolution(resolution float64) float64 {
	return math.Min(math.Log2(earthMeridianCircumference/2/resolution), maxBitsPrecision)
}

func wrapLongitude(lng float64) float64 {
	if lng <= 180 && lng >= -180 {
		return lng
	}
	adjusted := lng + 180
	if adjusted > 0 {
		return math.Mod(adjusted, 360) - 180
	}
	return 180 - math.Mod(-adjusted, 360)
}

func boundingBoxBits(lat, size float64) int {
	latDelta := size / metersPerDegreeLatitude
	north := math.Min(90, lat+latDelta)
	south := math.Max(-90, lat-latDelta)
	bitsLat := int(math.Floor(latitudeBitsForResolution(size))) * 2
	bitsLngNorth := int(math.Floor(longitudeBitsForResolution(size, north)))*2 - 1
	bitsLngSouth := int(math.Floor(longitudeBitsForResolution(size, south)))*2 - 1
	return min(bitsLat, bitsLngNorth, bitsLngSouth, maxBitsPrecision)
}

func boundingBoxCoordinates(lat, lng, radius float64) [][2]float64 {
	latDegrees := radius / metersPerDegreeLatitude
	north := math.Min(90, lat+latDegrees)
	south := math.Max(-90, lat-latDegrees)
	lngDegs := math.Max(metersToLongitudeDegrees(radius, north), metersToLongitudeDegrees(radius, south))
	return [][2]float64{
		{lat, lng},
		{lat, wrapLongitude(lng - lngDegs)},
		{lat, wrapLongitude(lng + lngDegs)},
		{north, lng},
		{north, wrapLongitude(lng - lngDegs)},
		{north, wrapLongitude(lng + lngDegs)},
		{south, lng},
		{south, wrapLongitude(lng - lngDegs)},
		{south, wrapLongitude(lng + lngDegs)},
	}
}

func geohashQuery(hash string, bits int) GeoBound {
	precision := int(math.Ceil(float64(bits) / bitsPerChar))
	if len(hash) < precision {
		return GeoBound{Start: hash, End: hash + "~"}
	}
	hash = hash[:precision]
	base := hash[:len(hash)-1]
	last := strings.IndexByte(geohashAlphabet, hash[len(hash)-1])
	unused := bitsPerChar - (bits - len(base)*bitsPerChar)
	start := (last >> unused) << unused
	end := start + (1 << unused)
	if end > 31 {
		return GeoBound{Start: base + string(geohashAlphabet[start]), End: base + "~"}
	}
	return GeoBound{Start: base + string(geohashAlphabet[start]), End: base + string(geohashAlphabet[end])}
}
