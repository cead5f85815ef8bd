package layer

import (
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
)

// Feature pairs a geometry with its attribute row. Attribute values are
// strings as read from the dbf; empty values are stored as nil.
type Feature struct {
	Geom  geom.T
	Attrs map[string]any
}

// Attr returns the raw attribute value for a field name, case-insensitively.
func (f Feature) Attr(name string) (any, bool) {
	if v, ok := f.Attrs[name]; ok {
		return v, true
	}
	for k, v := range f.Attrs {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// StringAttr returns the attribute as a string, or "" when absent or nil.
func (f Feature) StringAttr(name string) string {
	v, ok := f.Attr(name)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// FloatAttr returns the attribute as a float64, parsing string values.
func (f Feature) FloatAttr(name string) (float64, bool) {
	v, ok := f.Attr(name)
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		val, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return val, true
	}
	return 0, false
}

// IntAttr returns the attribute as an int, parsing string values.
func (f Feature) IntAttr(name string) (int, bool) {
	v, ok := f.Attr(name)
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case float64:
		return int(t), true
	case string:
		val, err := strconv.Atoi(t)
		if err != nil {
			return 0, false
		}
		return val, true
	}
	return 0, false
}

// SetAttr stores an attribute value, replacing any case-insensitive match.
func (f *Feature) SetAttr(name string, value any) {
	if f.Attrs == nil {
		f.Attrs = make(map[string]any)
	}
	for k := range f.Attrs {
		if strings.EqualFold(k, name) {
			f.Attrs[k] = value
			return
		}
	}
	f.Attrs[name] = value
}
