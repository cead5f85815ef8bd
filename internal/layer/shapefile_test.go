package layer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/civic-gis/gis-cli/internal/geomutil"
)

func squareFeature(x, y, size float64, attrs map[string]any) Feature {
	p := geom.NewPolygon(geom.XY)
	_ = p.Push(geom.NewLinearRingFlat(geom.XY, []float64{
		x, y, x + size, y, x + size, y + size, x, y + size, x, y,
	}))
	mp := geom.NewMultiPolygon(geom.XY)
	_ = mp.Push(p)
	return Feature{Geom: mp, Attrs: attrs}
}

func TestWriteReadShapefile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.shp")

	fields := []Field{
		{Name: "ZONE_ID", Type: FieldText, Length: 10},
		{Name: "SVC_DAY", Type: FieldText, Length: 10},
	}
	features := []Feature{
		squareFeature(0, 0, 2, map[string]any{"ZONE_ID": "A", "SVC_DAY": "Monday"}),
		squareFeature(5, 5, 3, map[string]any{"ZONE_ID": "B", "SVC_DAY": nil}),
	}

	require.NoError(t, WriteShapefile(path, GeomPolygon, fields, features))

	_, err := os.Stat(filepath.Join(dir, "zones.dbf"))
	require.NoError(t, err, "attribute table must live at the standard .dbf name")

	got, gotFields, err := ReadShapefile(path, 4326)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, gotFields, 2)

	assert.Equal(t, "ZONE_ID", gotFields[0].Name)
	assert.Equal(t, "A", got[0].StringAttr("ZONE_ID"))
	assert.Equal(t, "Monday", got[0].StringAttr("SVC_DAY"))
	assert.Equal(t, "", got[1].StringAttr("SVC_DAY"), "nil attribute reads back empty")

	assert.InDelta(t, 4.0, geomutil.Area(got[0].Geom), 1e-6)
	assert.InDelta(t, 9.0, geomutil.Area(got[1].Geom), 1e-6)
	assert.Equal(t, 4326, got[0].Geom.SRID())
}

func TestReadShapefile_Missing(t *testing.T) {
	_, _, err := ReadShapefile(filepath.Join(t.TempDir(), "nope.shp"), 4326)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open shapefile")
}

func TestDBFFieldType(t *testing.T) {
	assert.Equal(t, FieldInteger, dbfFieldType('N', 0))
	assert.Equal(t, FieldDouble, dbfFieldType('N', 2), "numeric with decimals is a double")
	assert.Equal(t, FieldDouble, dbfFieldType('F', 0))
	assert.Equal(t, FieldDate, dbfFieldType('D', 0))
	assert.Equal(t, FieldText, dbfFieldType('C', 0))
}

func TestReadShapefile_TruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.shp")

	fields := []Field{{Name: "ZONE_ID", Type: FieldText, Length: 10}}
	features := []Feature{
		squareFeature(0, 0, 2, map[string]any{"ZONE_ID": "A"}),
	}
	require.NoError(t, WriteShapefile(path, GeomPolygon, fields, features))

	// Cut the file mid-record so iteration fails partway through.
	require.NoError(t, os.Truncate(path, 106))

	_, _, err := ReadShapefile(path, 4326)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read shapefile")
}

func TestFeatureAttrHelpers(t *testing.T) {
	f := Feature{Attrs: map[string]any{"ACCT": "100-2", "VAL": "12.5", "NUM": "7"}}

	v, ok := f.Attr("acct")
	assert.True(t, ok)
	assert.Equal(t, "100-2", v)

	fv, ok := f.FloatAttr("VAL")
	assert.True(t, ok)
	assert.Equal(t, 12.5, fv)

	iv, ok := f.IntAttr("NUM")
	assert.True(t, ok)
	assert.Equal(t, 7, iv)

	_, ok = f.FloatAttr("ACCT")
	assert.False(t, ok)

	f.SetAttr("acct", "200-1")
	assert.Equal(t, "200-1", f.StringAttr("ACCT"))
}

func TestSetAttr_ZeroValueFeature(t *testing.T) {
	var f Feature
	f.SetAttr("ZONE_ID", "A")
	assert.Equal(t, "A", f.StringAttr("ZONE_ID"))
}
