package layer

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

// ShapeToGeom converts a go-shp shape to a go-geom geometry tagged with the
// given SRID. Unsupported or empty shapes return nil, nil.
func ShapeToGeom(shape shp.Shape, srid int) (geom.T, error) {
	if shape == nil {
		return nil, nil
	}

	var g geom.T

	switch s := shape.(type) {
	case *shp.Point:
		g = geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(srid)

	case *shp.PolyLine:
		g = polyLineToMultiLineString(s, srid)

	case *shp.Polygon:
		g = polygonToMultiPolygon(s, srid)

	default:
		return nil, nil
	}

	return g, nil
}

// GeomTypeOf classifies a geometry into a layer geometry type.
func GeomTypeOf(g geom.T) GeomType {
	switch g.(type) {
	case *geom.Point, *geom.MultiPoint:
		return GeomPoint
	case *geom.LineString, *geom.MultiLineString:
		return GeomLine
	default:
		return GeomPolygon
	}
}

// EncodeEWKB marshals a geometry as little-endian EWKB for PostGIS loading.
func EncodeEWKB(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "layer: encode EWKB")
	}
	return data, nil
}

// GeomToShape converts a go-geom geometry back into a go-shp shape for
// shapefile output.
func GeomToShape(g geom.T) (shp.Shape, error) {
	switch t := g.(type) {
	case *geom.Point:
		return &shp.Point{X: t.X(), Y: t.Y()}, nil

	case *geom.LineString:
		return shp.NewPolyLine([][]shp.Point{flatToShpPoints(t.FlatCoords())}), nil

	case *geom.MultiLineString:
		parts := make([][]shp.Point, 0, t.NumLineStrings())
		for i := 0; i < t.NumLineStrings(); i++ {
			parts = append(parts, flatToShpPoints(t.LineString(i).FlatCoords()))
		}
		return shp.NewPolyLine(parts), nil

	case *geom.Polygon:
		return polygonRingsToShape(polygonRings(t)), nil

	case *geom.MultiPolygon:
		var rings [][]shp.Point
		for i := 0; i < t.NumPolygons(); i++ {
			rings = append(rings, polygonRings(t.Polygon(i))...)
		}
		return polygonRingsToShape(rings), nil

	default:
		return nil, eris.Errorf("layer: cannot write geometry type %T to shapefile", g)
	}
}

// polygonRings extracts all rings (exterior + holes) as shp point slices.
func polygonRings(p *geom.Polygon) [][]shp.Point {
	rings := make([][]shp.Point, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		rings = append(rings, flatToShpPoints(p.LinearRing(i).FlatCoords()))
	}
	return rings
}

// polygonRingsToShape assembles rings into a shapefile polygon. shp.Polygon
// shares its layout with shp.PolyLine, so the part bookkeeping is reused.
func polygonRingsToShape(rings [][]shp.Point) *shp.Polygon {
	pl := shp.NewPolyLine(rings)
	return (*shp.Polygon)(pl)
}

func flatToShpPoints(flat []float64) []shp.Point {
	pts := make([]shp.Point, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		pts = append(pts, shp.Point{X: flat[i], Y: flat[i+1]})
	}
	return pts
}

// polyLineToMultiLineString converts a shapefile PolyLine to a MultiLineString.
func polyLineToMultiLineString(pl *shp.PolyLine, srid int) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY).SetSRID(srid)

	for i := int32(0); i < pl.NumParts; i++ {
		start, end := partRange(pl.Parts, pl.NumParts, i, len(pl.Points))

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, pl.Points[j].X, pl.Points[j].Y)
		}

		ls := geom.NewLineStringFlat(geom.XY, flat)
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("layer: skipping malformed linestring part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// polygonToMultiPolygon converts a shapefile Polygon to a MultiPolygon.
// Each part becomes a single-ring polygon; hole association is not
// reconstructed from ring winding here, matching how the features are
// subsequently area-tested part by part.
func polygonToMultiPolygon(p *shp.Polygon, srid int) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)

	for i := int32(0); i < p.NumParts; i++ {
		start, end := partRange(p.Parts, p.NumParts, i, len(p.Points))

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("layer: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}

		if err := mp.Push(poly); err != nil {
			zap.L().Debug("layer: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// partRange returns the [start, end) point indices for part i.
func partRange(parts []int32, numParts, i int32, totalPoints int) (int32, int32) {
	start := parts[i]
	if i+1 < numParts {
		return start, parts[i+1]
	}
	return start, int32(totalPoints)
}
