package geomutil

import (
	"math"

	"github.com/twpayne/go-geom"
)

// minRingArea filters out slivers produced when a clip line grazes a vertex.
const minRingArea = 1e-12

// ClipSouth returns the part of the geometry at or below the horizontal
// line y = cut. The input must be a Polygon or MultiPolygon; the result is
// always a MultiPolygon (possibly empty).
func ClipSouth(g geom.T, cut float64) *geom.MultiPolygon {
	return clipHalfPlane(g, cut, true)
}

// ClipNorth returns the part of the geometry at or above y = cut.
func ClipNorth(g geom.T, cut float64) *geom.MultiPolygon {
	return clipHalfPlane(g, cut, false)
}

func clipHalfPlane(g geom.T, cut float64, south bool) *geom.MultiPolygon {
	out := geom.NewMultiPolygon(geom.XY)
	if srid := g.SRID(); srid != 0 {
		out.SetSRID(srid)
	}

	var polys []*geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		polys = []*geom.Polygon{t}
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, t.Polygon(i))
		}
	default:
		return out
	}

	for _, p := range polys {
		clipped := clipPolygon(p, cut, south)
		if clipped != nil {
			_ = out.Push(clipped)
		}
	}
	return out
}

// clipPolygon clips each ring of the polygon against the half-plane.
// If the exterior ring vanishes the whole polygon is dropped; holes that
// vanish are simply omitted.
func clipPolygon(p *geom.Polygon, cut float64, south bool) *geom.Polygon {
	if p.NumLinearRings() == 0 {
		return nil
	}

	ext := clipRing(p.LinearRing(0).FlatCoords(), cut, south)
	if math.Abs(RingArea(ext)) < minRingArea {
		return nil
	}

	out := geom.NewPolygon(geom.XY)
	if err := out.Push(geom.NewLinearRingFlat(geom.XY, closeRing(ext))); err != nil {
		return nil
	}

	for i := 1; i < p.NumLinearRings(); i++ {
		hole := clipRing(p.LinearRing(i).FlatCoords(), cut, south)
		if math.Abs(RingArea(hole)) < minRingArea {
			continue
		}
		if err := out.Push(geom.NewLinearRingFlat(geom.XY, closeRing(hole))); err != nil {
			continue
		}
	}
	return out
}

// clipRing runs Sutherland-Hodgman on one ring against the half-plane
// y <= cut (south) or y >= cut (north). The cut edge is traced along the
// clip line, so area computations on the result remain exact.
func clipRing(flat []float64, cut float64, south bool) []float64 {
	n := len(flat) / 2
	if n < 3 {
		return nil
	}

	inside := func(y float64) bool {
		if south {
			return y <= cut
		}
		return y >= cut
	}

	var out []float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		x1, y1 := flat[2*i], flat[2*i+1]
		x2, y2 := flat[2*j], flat[2*j+1]

		in1, in2 := inside(y1), inside(y2)
		switch {
		case in1 && in2:
			out = append(out, x2, y2)
		case in1 && !in2:
			ix := intersectX(x1, y1, x2, y2, cut)
			out = append(out, ix, cut)
		case !in1 && in2:
			ix := intersectX(x1, y1, x2, y2, cut)
			out = append(out, ix, cut, x2, y2)
		}
	}
	return out
}

// intersectX returns the x coordinate where the segment crosses y = cut.
func intersectX(x1, y1, x2, y2, cut float64) float64 {
	if y1 == y2 {
		return x1
	}
	t := (cut - y1) / (y2 - y1)
	return x1 + t*(x2-x1)
}

// closeRing ensures the ring's last coordinate equals its first.
func closeRing(flat []float64) []float64 {
	if len(flat) < 6 {
		return flat
	}
	if flat[0] == flat[len(flat)-2] && flat[1] == flat[len(flat)-1] {
		return flat
	}
	return append(flat, flat[0], flat[1])
}
