package asbuilt

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-gis/gis-cli/internal/layer"
)

func hyperlink(id string) string {
	return `<a href="https://maps.example.gov/asbuilts/` + id + `">As-Built</a>`
}

func featureWithLink(id string) layer.Feature {
	return layer.Feature{Attrs: map[string]any{"HYPERLINK": hyperlink(id)}}
}

// newTestArchive writes documents into a temp directory archive.
func newTestArchive(t *testing.T, ids ...string) *DirArchive {
	t.Helper()
	root := t.TempDir()
	for _, id := range ids {
		full := filepath.Join(root, filepath.FromSlash(id))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("drawing "+id), 0o644))
	}
	return NewDirArchive(root)
}

func TestExtractIDs(t *testing.T) {
	features := []layer.Feature{
		featureWithLink("001/001-1-paving.pdf"),
		featureWithLink("001/001-1-paving.pdf"), // duplicate
		featureWithLink("002/002-3-storm.pdf"),
		{Attrs: map[string]any{"HYPERLINK": "no match here"}},
		{Attrs: map[string]any{"HYPERLINK": nil}},
	}

	ids := ExtractIDs(features, DefaultIDField)
	assert.Equal(t, []string{"001/001-1-paving.pdf", "002/002-3-storm.pdf"}, ids)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "001-1-paving.pdf", sheetName("001/001-1-paving.pdf"))
	// Ids with no sheet pattern fall back to the base name.
	assert.Equal(t, "scan.pdf", sheetName("misc/scan.pdf"))
}

func TestLocate_BundlesFoundDocuments(t *testing.T) {
	archive := newTestArchive(t, "001/001-1-paving.pdf", "002/002-3-storm.pdf")
	loc := NewLocator(archive, Options{})

	outDir := t.TempDir()
	res, err := loc.Locate(context.Background(), []layer.Feature{
		featureWithLink("001/001-1-paving.pdf"),
		featureWithLink("002/002-3-storm.pdf"),
		featureWithLink("009/009-9-missing.pdf"),
	}, outDir)
	require.NoError(t, err)

	assert.Equal(t, []string{"001/001-1-paving.pdf", "002/002-3-storm.pdf"}, res.Found)
	assert.Equal(t, []string{"009/009-9-missing.pdf"}, res.Missing)
	require.NotEmpty(t, res.ZipPath)

	zr, err := zip.OpenReader(res.ZipPath)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"asbuilts/001-1-paving.pdf", "asbuilts/002-3-storm.pdf"}, names)
}

func TestLocate_NothingFound(t *testing.T) {
	loc := NewLocator(newTestArchive(t), Options{})

	res, err := loc.Locate(context.Background(), []layer.Feature{
		featureWithLink("009/009-9-missing.pdf"),
	}, t.TempDir())
	require.NoError(t, err)

	assert.Empty(t, res.Found)
	assert.Equal(t, []string{"009/009-9-missing.pdf"}, res.Missing)
	assert.Empty(t, res.ZipPath)
}

func TestLocate_CustomIDField(t *testing.T) {
	archive := newTestArchive(t, "001/001-1-paving.pdf")
	loc := NewLocator(archive, Options{IDField: "DOC_LINK"})

	res, err := loc.Locate(context.Background(), []layer.Feature{
		{Attrs: map[string]any{"DOC_LINK": hyperlink("001/001-1-paving.pdf")}},
	}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"001/001-1-paving.pdf"}, res.Found)
}

func TestDirArchive_RejectsEscapingIDs(t *testing.T) {
	archive := NewDirArchive(t.TempDir())

	_, err := archive.Fetch(context.Background(), "../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid document id")
}

func TestCleanID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "001/001-1.pdf", want: "001/001-1.pdf"},
		{in: "/001/001-1.pdf", want: "001/001-1.pdf"},
		{in: "001/./001-1.pdf", want: "001/001-1.pdf"},
		{in: "..", wantErr: true},
		{in: "../x.pdf", wantErr: true},
		{in: "001/../../x.pdf", wantErr: true},
	}
	for _, tt := range tests {
		got, err := cleanID(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseFTPURL(t *testing.T) {
	host, base, err := parseFTPURL("ftp://files.example.gov/engineering/Asbuilts")
	require.NoError(t, err)
	assert.Equal(t, "files.example.gov:21", host)
	assert.Equal(t, "/engineering/Asbuilts", base)

	host, _, err = parseFTPURL("ftp://files.example.gov:2121/x")
	require.NoError(t, err)
	assert.Equal(t, "files.example.gov:2121", host)

	_, _, err = parseFTPURL("https://files.example.gov/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected ftp scheme")
}
