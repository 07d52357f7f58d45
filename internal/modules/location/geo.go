package location

// Point is a GeoJSON Point. Coordinates are ordered [longitude, latitude]
// per the GeoJSON convention, not (lat, lon).
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// ToPoint converts a (latitude, longitude) pair to a GeoJSON Point.
func ToPoint(latitude, longitude float64) Point {
	return Point{
		Type:        "Point",
		Coordinates: [2]float64{longitude, latitude},
	}
}

// FromPoint converts a GeoJSON Point back to a (latitude, longitude) pair.
func FromPoint(p Point) (latitude, longitude float64) {
	return p.Coordinates[1], p.Coordinates[0]
}
