package layer

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ReadShapefile reads a shapefile into features, returning the dbf field
// catalog alongside. Attribute values are trimmed; empty values become nil.
// Records with unreadable geometry are skipped with a debug log.
func ReadShapefile(path string, srid int) ([]Feature, []Field, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "layer: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	dbfFields := reader.Fields()
	fields := make([]Field, 0, len(dbfFields))
	names := make([]string, 0, len(dbfFields))
	for _, f := range dbfFields {
		name := strings.TrimRight(f.String(), "\x00")
		names = append(names, name)
		fields = append(fields, Field{
			Name:      name,
			Type:      dbfFieldType(f.Fieldtype, int(f.Precision)),
			Length:    int(f.Size),
			Precision: int(f.Precision),
		})
	}

	var features []Feature
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		g, convErr := ShapeToGeom(shape, srid)
		if convErr != nil || g == nil {
			skipped++
			continue
		}

		attrs := make(map[string]any, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val == "" {
				attrs[name] = nil
			} else {
				attrs[name] = val
			}
		}

		features = append(features, Feature{Geom: g, Attrs: attrs})
	}
	if err := reader.Err(); err != nil {
		return nil, nil, eris.Wrapf(err, "layer: read shapefile %s", path)
	}

	if skipped > 0 {
		zap.L().Debug("layer: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}

	return features, fields, nil
}

// dbfFieldType maps a dBASE type byte to the layer field type. Numeric 'N'
// fields with decimal places hold doubles, not integers.
func dbfFieldType(t byte, precision int) FieldType {
	switch t {
	case 'N':
		if precision > 0 {
			return FieldDouble
		}
		return FieldInteger
	case 'F':
		return FieldDouble
	case 'D':
		return FieldDate
	default:
		return FieldText
	}
}
