//go:build !integration

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/civic-gis/gis-cli/internal/layer"
)

func writeSquareShapefile(t *testing.T) string {
	t.Helper()

	p := geom.NewPolygon(geom.XY)
	require.NoError(t, p.Push(geom.NewLinearRingFlat(geom.XY, []float64{
		0, 0, 10, 0, 10, 10, 0, 10, 0, 0,
	})))
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(p))

	fields := []layer.Field{{Name: "NAME", Type: layer.FieldText, Length: 20}}
	features := []layer.Feature{{Geom: mp, Attrs: map[string]any{"NAME": "district"}}}

	path := filepath.Join(t.TempDir(), "district.shp")
	require.NoError(t, layer.WriteShapefile(path, layer.GeomPolygon, fields, features))
	return path
}

func TestRunSplit(t *testing.T) {
	outDir := t.TempDir()
	res, err := runSplit(context.Background(), splitParams{
		Path:      writeSquareShapefile(t),
		SRID:      4326,
		Tolerance: 0.99,
		OutDir:    outDir,
	})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.GreaterOrEqual(t, res.Ratio, 0.99)
	assert.InDelta(t, 5.0, res.CutY, 0.5)
	assert.Equal(t, filepath.Join(outDir, "district_halves.shp"), res.OutPath)

	halves, _, err := layer.ReadShapefile(res.OutPath, 4326)
	require.NoError(t, err)
	require.Len(t, halves, 2)
	assert.Equal(t, "south", halves[0].StringAttr("HALF"))
	assert.Equal(t, "north", halves[1].StringAttr("HALF"))
}

func TestRunSplit_MissingFile(t *testing.T) {
	_, err := runSplit(context.Background(), splitParams{
		Path:      filepath.Join(t.TempDir(), "nope.shp"),
		SRID:      4326,
		Tolerance: 0.99,
	})
	assert.Error(t, err)
}

func TestTableNameFromPath(t *testing.T) {
	assert.Equal(t, "tax_parcels", tableNameFromPath("/data/Tax-Parcels.shp"))
	assert.Equal(t, "zones", tableNameFromPath("zones.shp"))
}
