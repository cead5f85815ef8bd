package layer

import (
	"os"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// WriteShapefile writes features to a new shapefile with the given field
// catalog. Attribute values are looked up per field name; nil values are
// written as empty strings, which dbf treats as null.
func WriteShapefile(path string, geomType GeomType, fields []Field, features []Feature) error {
	if err := writeShp(path, geomType, fields, features); err != nil {
		return err
	}

	// go-shp derives sidecar names from the path minus its ".shp" suffix,
	// dot included, leaving the attribute table at "<base>dbf" where no
	// reader will find it. Move it to the standard name.
	base := strings.TrimSuffix(path, ".shp")
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		return eris.Wrapf(err, "layer: rename dbf sidecar for %s", path)
	}
	return nil
}

func writeShp(path string, geomType GeomType, fields []Field, features []Feature) error {
	w, err := shp.Create(path, shpType(geomType))
	if err != nil {
		return eris.Wrapf(err, "layer: create shapefile %s", path)
	}
	defer w.Close()

	names, err := dbfNames(fields)
	if err != nil {
		return err
	}

	shpFields := make([]shp.Field, len(fields))
	for i, f := range fields {
		shpFields[i] = shpField(f, names[i])
	}
	if err := w.SetFields(shpFields); err != nil {
		return eris.Wrapf(err, "layer: set dbf fields for %s", path)
	}

	for row, feat := range features {
		shape, convErr := GeomToShape(feat.Geom)
		if convErr != nil {
			return eris.Wrapf(convErr, "layer: feature %d", row)
		}
		w.Write(shape)

		for col, f := range fields {
			v, _ := feat.Attr(f.Name)
			if v == nil {
				v = ""
			}
			if err := w.WriteAttribute(row, col, v); err != nil {
				return eris.Wrapf(err, "layer: write attribute %s on feature %d", f.Name, row)
			}
		}
	}

	return nil
}

// shpType maps a layer geometry type to the shapefile shape type.
func shpType(t GeomType) shp.ShapeType {
	switch t {
	case GeomPoint:
		return shp.POINT
	case GeomLine:
		return shp.POLYLINE
	default:
		return shp.POLYGON
	}
}

// dbfNames truncates catalog field names to the 10-character dbf limit,
// appending a numeric suffix when truncation collides.
func dbfNames(fields []Field) ([]string, error) {
	names := make([]string, len(fields))
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		name := f.Name
		if len(name) > maxDBFNameLen {
			name = name[:maxDBFNameLen]
		}
		if seen[strings.ToUpper(name)] {
			resolved := false
			for n := 1; n <= 99; n++ {
				suffix := strconv.Itoa(n)
				candidate := name
				if len(candidate)+len(suffix) > maxDBFNameLen {
					candidate = candidate[:maxDBFNameLen-len(suffix)]
				}
				candidate += suffix
				if !seen[strings.ToUpper(candidate)] {
					name = candidate
					resolved = true
					break
				}
			}
			if !resolved {
				return nil, eris.Errorf("layer: cannot shorten field %s to a unique dbf name", f.Name)
			}
		}
		if name != f.Name {
			zap.L().Debug("dbf field name shortened",
				zap.String("field", f.Name), zap.String("dbf", name))
		}
		seen[strings.ToUpper(name)] = true
		names[i] = name
	}
	return names, nil
}

// shpField maps a catalog field to a dbf field definition.
func shpField(f Field, name string) shp.Field {
	switch f.Type {
	case FieldInteger:
		length := f.Length
		if length == 0 {
			length = 10
		}
		return shp.NumberField(name, uint8(length))
	case FieldDouble:
		length := f.Length
		if length == 0 {
			length = 19
		}
		precision := f.Precision
		if precision == 0 {
			precision = 8
		}
		return shp.FloatField(name, uint8(length), uint8(precision))
	case FieldDate:
		return shp.DateField(name)
	default:
		length := f.Length
		if length == 0 {
			length = 50
		}
		if length > 254 {
			length = 254
		}
		return shp.StringField(name, uint8(length))
	}
}
