package model

// Location is the geo point layout radius queries rely on. Geohash must be kept in sync
// with Lat/Lng by the writer.
type Location struct {
	Geohash string  `firestore:"geohash" json:"geohash"`
	Lat     float64 `firestore:"lat" json:"lat"`
	Lng     float64 `firestore:"lng" json:"lng"`
}

// Locatable models expose their location under the "location" field.
type Locatable interface {
	GeoLocation() Location
}

// LocationField is the field radius queries order on.
var LocationField = Path("location", "geohash")
