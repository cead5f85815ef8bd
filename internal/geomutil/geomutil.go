// Package geomutil provides planar geometry helpers over go-geom types:
// ring areas, centroids, point-in-polygon tests, and half-plane clipping.
// Coordinates are treated as planar; callers working in a geographic CRS
// should project first.
package geomutil

import (
	"math"

	"github.com/twpayne/go-geom"
)

// RingArea returns the signed area of a ring given as flat XY coordinates.
// Counter-clockwise rings are positive. The ring may be open or closed.
func RingArea(flat []float64) float64 {
	n := len(flat) / 2
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		x1, y1 := flat[2*i], flat[2*i+1]
		x2, y2 := flat[2*j], flat[2*j+1]
		sum += x1*y2 - x2*y1
	}
	return sum / 2
}

// PolygonArea returns the absolute area of a polygon: the exterior ring
// minus interior rings (holes).
func PolygonArea(p *geom.Polygon) float64 {
	if p == nil || p.NumLinearRings() == 0 {
		return 0
	}
	area := math.Abs(RingArea(p.LinearRing(0).FlatCoords()))
	for i := 1; i < p.NumLinearRings(); i++ {
		area -= math.Abs(RingArea(p.LinearRing(i).FlatCoords()))
	}
	if area < 0 {
		return 0
	}
	return area
}

// MultiPolygonArea returns the summed absolute area of all member polygons.
func MultiPolygonArea(mp *geom.MultiPolygon) float64 {
	if mp == nil {
		return 0
	}
	var area float64
	for i := 0; i < mp.NumPolygons(); i++ {
		area += PolygonArea(mp.Polygon(i))
	}
	return area
}

// Area returns the absolute area of a Polygon or MultiPolygon; other
// geometry types have zero area.
func Area(g geom.T) float64 {
	switch t := g.(type) {
	case *geom.Polygon:
		return PolygonArea(t)
	case *geom.MultiPolygon:
		return MultiPolygonArea(t)
	default:
		return 0
	}
}

// Centroid returns the area-weighted centroid of a Polygon or MultiPolygon.
// Degenerate geometries fall back to the bounds center.
func Centroid(g geom.T) geom.Coord {
	var cx, cy, total float64

	accumulate := func(p *geom.Polygon) {
		for i := 0; i < p.NumLinearRings(); i++ {
			flat := p.LinearRing(i).FlatCoords()
			signed := RingArea(flat)
			if i > 0 {
				// Holes subtract from the weighted sum.
				signed = -math.Abs(signed)
			} else {
				signed = math.Abs(signed)
			}
			rx, ry := ringCentroid(flat)
			cx += rx * signed
			cy += ry * signed
			total += signed
		}
	}

	switch t := g.(type) {
	case *geom.Polygon:
		accumulate(t)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			accumulate(t.Polygon(i))
		}
	}

	if total == 0 {
		b := g.Bounds()
		return geom.Coord{(b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2}
	}
	return geom.Coord{cx / total, cy / total}
}

// ringCentroid returns the centroid of a single ring via the shoelace formula.
func ringCentroid(flat []float64) (float64, float64) {
	n := len(flat) / 2
	if n == 0 {
		return 0, 0
	}
	var cx, cy, a float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		x1, y1 := flat[2*i], flat[2*i+1]
		x2, y2 := flat[2*j], flat[2*j+1]
		cross := x1*y2 - x2*y1
		cx += (x1 + x2) * cross
		cy += (y1 + y2) * cross
		a += cross
	}
	if a == 0 {
		// Collapsed ring: average the vertices.
		var sx, sy float64
		for i := 0; i < n; i++ {
			sx += flat[2*i]
			sy += flat[2*i+1]
		}
		return sx / float64(n), sy / float64(n)
	}
	return cx / (3 * a), cy / (3 * a)
}

// pointInRing reports whether (x, y) is inside the ring using an even-odd
// ray cast. Points exactly on an edge may land on either side.
func pointInRing(x, y float64, flat []float64) bool {
	n := len(flat) / 2
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := flat[2*i], flat[2*i+1]
		xj, yj := flat[2*j], flat[2*j+1]
		if (yi > y) != (yj > y) &&
			x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// PointInPolygon reports whether (x, y) lies inside the polygon's exterior
// ring and outside all of its holes.
func PointInPolygon(x, y float64, p *geom.Polygon) bool {
	if p == nil || p.NumLinearRings() == 0 {
		return false
	}
	if !pointInRing(x, y, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if pointInRing(x, y, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// Contains reports whether (x, y) lies inside a Polygon or MultiPolygon.
func Contains(g geom.T, x, y float64) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return PointInPolygon(x, y, t)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if PointInPolygon(x, y, t.Polygon(i)) {
				return true
			}
		}
	}
	return false
}
