// Package geo decides whether a captured position lies inside a service zone.
package geo

import (
	"math"

	"bookingsync/internal/models"
)

// epsilon is the tolerance for collinearity and vertex comparisons, in degrees.
const epsilon = 1e-12

// Result is the outcome of a geofence check.
type Result struct {
	// Constrained is false when there is no usable polygon or no coordinate.
	Constrained bool
	Inside      bool
}

// Allowed reports whether the wizard may treat the position as serviceable.
// Unconstrained checks always allow.
func (r Result) Allowed() bool {
	return !r.Constrained || r.Inside
}

// Constrained reports whether the polygon has enough vertices to restrict anything.
func Constrained(polygon []models.LatLng) bool {
	return len(normalize(polygon)) >= 3
}

// IsInside reports whether point lies inside polygon using the even-odd rule.
// Points on an edge or vertex count as inside. Polygons with fewer than three
// distinct vertices contain nothing.
func IsInside(point models.LatLng, polygon []models.LatLng) bool {
	poly := normalize(polygon)
	n := len(poly)
	if n < 3 {
		return false
	}

	px, py := point.Lng, point.Lat
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := poly[i].Lng, poly[i].Lat
		xj, yj := poly[j].Lng, poly[j].Lat

		if onSegment(px, py, xi, yi, xj, yj) {
			return true
		}
		if (yi > py) != (yj > py) && px < (xj-xi)*(py-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// Check tests point against zone. A nil point, nil zone, or degenerate polygon
// yields an unconstrained result.
func Check(point *models.LatLng, zone *models.ServiceZone) Result {
	if point == nil || zone == nil || !Constrained(zone.Polygon) {
		return Result{}
	}
	return Result{Constrained: true, Inside: IsInside(*point, zone.Polygon)}
}

// FindZone returns the first constrained zone containing point.
func FindZone(point models.LatLng, zones []models.ServiceZone) (*models.ServiceZone, bool) {
	for i := range zones {
		if Constrained(zones[i].Polygon) && IsInside(point, zones[i].Polygon) {
			return &zones[i], true
		}
	}
	return nil, false
}

// AnyConstrained reports whether at least one zone has a usable polygon.
func AnyConstrained(zones []models.ServiceZone) bool {
	for _, z := range zones {
		if Constrained(z.Polygon) {
			return true
		}
	}
	return false
}

// Centroid returns the area centroid of polygon, falling back to the vertex
// mean for degenerate shapes. ok is false for an empty polygon.
func Centroid(polygon []models.LatLng) (c models.LatLng, ok bool) {
	poly := normalize(polygon)
	n := len(poly)
	if n == 0 {
		return models.LatLng{}, false
	}

	var area, cx, cy float64
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		cross := poly[j].Lng*poly[i].Lat - poly[i].Lng*poly[j].Lat
		area += cross
		cx += (poly[j].Lng + poly[i].Lng) * cross
		cy += (poly[j].Lat + poly[i].Lat) * cross
	}
	if math.Abs(area) < epsilon {
		for _, p := range poly {
			c.Lat += p.Lat
			c.Lng += p.Lng
		}
		c.Lat /= float64(n)
		c.Lng /= float64(n)
		return c, true
	}
	area *= 0.5
	return models.LatLng{Lat: cy / (6 * area), Lng: cx / (6 * area)}, true
}

// normalize drops an explicit closing vertex.
func normalize(polygon []models.LatLng) []models.LatLng {
	n := len(polygon)
	if n > 1 && samePoint(polygon[0], polygon[n-1]) {
		return polygon[:n-1]
	}
	return polygon
}

func samePoint(a, b models.LatLng) bool {
	return math.Abs(a.Lat-b.Lat) < epsilon && math.Abs(a.Lng-b.Lng) < epsilon
}

func onSegment(px, py, x1, y1, x2, y2 float64) bool {
	cross := (px-x1)*(y2-y1) - (py-y1)*(x2-x1)
	if math.Abs(cross) > epsilon {
		return false
	}
	return px >= math.Min(x1, x2)-epsilon && px <= math.Max(x1, x2)+epsilon &&
		py >= math.Min(y1, y2)-epsilon && py <= math.Max(y1, y2)+epsilon
}
