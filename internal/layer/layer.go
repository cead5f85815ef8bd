// Package layer models feature classes, a named geometry type plus a field
// catalog with coded-value domains and subtypes, and moves them between
// shapefiles and PostGIS tables.
package layer

import (
	"strings"

	"github.com/rotisserie/eris"
)

// FieldType enumerates attribute field types.
type FieldType string

const (
	FieldText    FieldType = "TEXT"
	FieldInteger FieldType = "INTEGER"
	FieldDouble  FieldType = "DOUBLE"
	FieldDate    FieldType = "DATE"
)

// GeomType enumerates supported geometry types.
type GeomType string

const (
	GeomPoint   GeomType = "POINT"
	GeomLine    GeomType = "POLYLINE"
	GeomPolygon GeomType = "POLYGON"
)

// maxDBFNameLen is the dBASE field name limit; the shapefile writer truncates
// longer catalog names the way ogr2ogr does.
const maxDBFNameLen = 10

// Field describes one attribute column.
type Field struct {
	Name      string    `yaml:"name"`
	Alias     string    `yaml:"alias"`
	Type      FieldType `yaml:"type"`
	Length    int       `yaml:"length"`    // TEXT only
	Precision int       `yaml:"precision"` // DOUBLE only
	Domain    string    `yaml:"domain"`    // optional coded-value domain name
}

// Domain is a coded-value domain: the set of codes a field may hold and
// their display descriptions.
type Domain struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	FieldType   FieldType         `yaml:"field_type"`
	Values      map[string]string `yaml:"values"` // code -> description
}

// Contains reports whether code is a member of the domain.
func (d Domain) Contains(code string) bool {
	_, ok := d.Values[code]
	return ok
}

// Subtype partitions a layer's features and may narrow which domain applies
// to a field while that subtype is active.
type Subtype struct {
	Code         int               `yaml:"code"`
	Description  string            `yaml:"description"`
	FieldDomains map[string]string `yaml:"field_domains"` // field name -> domain name
}

// Layer is a feature-class definition.
type Layer struct {
	Name           string            `yaml:"name"`
	GeomType       GeomType          `yaml:"geom_type"`
	SRID           int               `yaml:"srid"`
	Fields         []Field           `yaml:"fields"`
	Domains        map[string]Domain `yaml:"domains"`
	SubtypeField   string            `yaml:"subtype_field"`
	Subtypes       map[int]Subtype   `yaml:"subtypes"`
	DefaultSubtype int               `yaml:"default_subtype"`
}

// Field returns the named field definition.
func (l *Layer) Field(name string) (Field, bool) {
	for _, f := range l.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// ColumnNames returns the lowercase column names for the layer's fields, in
// catalog order, as used by the Postgres loader.
func (l *Layer) ColumnNames() []string {
	cols := make([]string, len(l.Fields))
	for i, f := range l.Fields {
		cols[i] = strings.ToLower(f.Name)
	}
	return cols
}

// Validate checks the layer definition for internal consistency.
func (l *Layer) Validate() error {
	if l.Name == "" {
		return eris.New("layer: name is required")
	}
	switch l.GeomType {
	case GeomPoint, GeomLine, GeomPolygon:
	default:
		return eris.Errorf("layer %s: unknown geometry type %q", l.Name, l.GeomType)
	}

	seen := make(map[string]bool, len(l.Fields))
	for _, f := range l.Fields {
		key := strings.ToLower(f.Name)
		if seen[key] {
			return eris.Errorf("layer %s: duplicate field %s", l.Name, f.Name)
		}
		seen[key] = true

		switch f.Type {
		case FieldText, FieldInteger, FieldDouble, FieldDate:
		default:
			return eris.Errorf("layer %s: field %s has unknown type %q", l.Name, f.Name, f.Type)
		}
		if f.Domain != "" {
			d, ok := l.Domains[f.Domain]
			if !ok {
				return eris.Errorf("layer %s: field %s references missing domain %s", l.Name, f.Name, f.Domain)
			}
			if d.FieldType != f.Type {
				return eris.Errorf("layer %s: field %s (%s) incompatible with domain %s (%s)",
					l.Name, f.Name, f.Type, f.Domain, d.FieldType)
			}
		}
	}

	if l.SubtypeField != "" {
		if _, ok := l.Field(l.SubtypeField); !ok {
			return eris.Errorf("layer %s: subtype field %s not in catalog", l.Name, l.SubtypeField)
		}
		if _, ok := l.Subtypes[l.DefaultSubtype]; !ok {
			return eris.Errorf("layer %s: default subtype %d not defined", l.Name, l.DefaultSubtype)
		}
		for code, st := range l.Subtypes {
			for field, domain := range st.FieldDomains {
				if _, ok := l.Field(field); !ok {
					return eris.Errorf("layer %s: subtype %d binds missing field %s", l.Name, code, field)
				}
				if _, ok := l.Domains[domain]; !ok {
					return eris.Errorf("layer %s: subtype %d binds missing domain %s", l.Name, code, domain)
				}
			}
		}
	}

	return nil
}

// ValidateValue checks an attribute value against the field's domain,
// narrowed by subtype when the layer defines one.
func (l *Layer) ValidateValue(fieldName, code string, subtype int) error {
	f, ok := l.Field(fieldName)
	if !ok {
		return eris.Errorf("layer %s: no field %s", l.Name, fieldName)
	}

	domainName := f.Domain
	if st, ok := l.Subtypes[subtype]; ok {
		if d, ok := st.FieldDomains[f.Name]; ok {
			domainName = d
		}
	}
	if domainName == "" {
		return nil
	}

	d, ok := l.Domains[domainName]
	if !ok {
		return eris.Errorf("layer %s: domain %s not defined", l.Name, domainName)
	}
	if !d.Contains(code) {
		return eris.Errorf("layer %s: value %q not in domain %s for field %s", l.Name, code, domainName, fieldName)
	}
	return nil
}
