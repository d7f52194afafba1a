package models

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// ServiceZone is an operator's coverage area. Immutable once loaded for a session.
type ServiceZone struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Polygon []LatLng `json:"polygon" yaml:"polygon"`
}

// Ref returns the zone reference stored on a draft.
func (z ServiceZone) Ref() *ZoneRef {
	return &ZoneRef{ID: z.ID, Name: z.Name}
}

// ZoneRef points a draft at the zone it was validated against.
type ZoneRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
