// Package asbuilt bundles the engineering record drawings referenced by GIS
// features. Digitized features link to their source sheet through a
// hyperlink; the drawings for the whole set live in an archive under a
// common prefix.
package asbuilt

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/civic-gis/gis-cli/internal/layer"
)

// DefaultIDField is the attribute carrying the document hyperlink.
const DefaultIDField = "HYPERLINK"

// hyperlinkPattern isolates the document id from the hyperlink markup.
var hyperlinkPattern = regexp.MustCompile(`asbuilts/([A-Za-z0-9./ -]*)"`)

// sheetNamePattern extracts the sheet file name from a document id.
var sheetNamePattern = regexp.MustCompile(`/([0-9A-Za-z]*-[A-Za-z0-9]*-[A-Za-z0-9-.]*[A-Za-z]*)`)

const fetchConcurrency = 4

// Options configures a Locator.
type Options struct {
	// IDField overrides the hyperlink attribute name.
	IDField string
}

// Result reports the outcome of a locate run.
type Result struct {
	// Found lists document ids copied into the bundle.
	Found []string `json:"found"`
	// Missing lists document ids with no file in the archive.
	Missing []string `json:"missing"`
	// ZipPath is the bundle location, empty when nothing was found.
	ZipPath string `json:"zip_path,omitempty"`
}

// Locator resolves document ids against an archive and bundles what it
// finds.
type Locator struct {
	archive Archive
	idField string
}

// NewLocator creates a Locator over the given archive.
func NewLocator(archive Archive, opts Options) *Locator {
	idField := opts.IDField
	if idField == "" {
		idField = DefaultIDField
	}
	return &Locator{archive: archive, idField: idField}
}

// ExtractIDs scans the hyperlink attribute of each feature and returns the
// deduplicated, sorted document ids.
func ExtractIDs(features []layer.Feature, idField string) []string {
	seen := make(map[string]bool)
	for _, f := range features {
		link := f.StringAttr(idField)
		if link == "" {
			continue
		}
		m := hyperlinkPattern.FindStringSubmatch(link)
		if m == nil {
			continue
		}
		seen[m[1]] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sheetName returns the staged file name for a document id.
func sheetName(id string) string {
	if m := sheetNamePattern.FindStringSubmatch("/" + id); m != nil {
		return m[1]
	}
	return path.Base(id)
}

// Locate extracts document ids from the features, fetches each from the
// archive into a staging directory under outDir, and zips the results.
// Documents missing from the archive are reported, not fatal. When no
// document is found, no zip is written.
func (l *Locator) Locate(ctx context.Context, features []layer.Feature, outDir string) (*Result, error) {
	log := zap.L().With(zap.String("component", "asbuilt"))

	ids := ExtractIDs(features, l.idField)
	log.Info("document ids extracted", zap.Int("features", len(features)), zap.Int("ids", len(ids)))

	staging := filepath.Join(outDir, "asbuilts")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, eris.Wrap(err, "asbuilt: create staging dir")
	}

	var (
		mu      sync.Mutex
		found   []string
		missing []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for _, id := range ids {
		g.Go(func() error {
			err := l.stage(gctx, id, staging)
			if eris.Is(err, ErrNotFound) {
				log.Warn("no file found for document", zap.String("id", id))
				mu.Lock()
				missing = append(missing, id)
				mu.Unlock()
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			found = append(found, id)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(found)
	sort.Strings(missing)
	res := &Result{Found: found, Missing: missing}

	if len(found) == 0 {
		log.Warn("no documents found, skipping bundle")
		return res, nil
	}

	zipPath := filepath.Join(outDir, "asbuilt_output.zip")
	if err := zipDir(staging, zipPath); err != nil {
		return nil, err
	}
	res.ZipPath = zipPath

	log.Info("bundle written",
		zap.String("path", zipPath), zap.Int("found", len(found)), zap.Int("missing", len(missing)))
	return res, nil
}

// stage copies one document from the archive into the staging directory.
func (l *Locator) stage(ctx context.Context, id string, staging string) error {
	rc, err := l.archive.Fetch(ctx, id)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	dest, err := os.Create(filepath.Join(staging, sheetName(id)))
	if err != nil {
		return eris.Wrapf(err, "asbuilt: stage %s", id)
	}
	defer func() { _ = dest.Close() }()

	if _, err := io.Copy(dest, rc); err != nil {
		return eris.Wrapf(err, "asbuilt: copy %s", id)
	}
	return nil
}

// zipDir zips every file under dir into a bundle, entries prefixed with
// asbuilts/.
func zipDir(dir, zipPath string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return eris.Wrap(err, "asbuilt: create zip")
	}
	defer func() { _ = out.Close() }()

	zw := zip.NewWriter(out)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return eris.Wrap(err, "asbuilt: read staging dir")
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := zipFile(zw, filepath.Join(dir, e.Name()), path.Join("asbuilts", e.Name())); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return eris.Wrap(err, "asbuilt: finalize zip")
	}
	return nil
}

func zipFile(zw *zip.Writer, src, entry string) error {
	f, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "asbuilt: open %s", src)
	}
	defer func() { _ = f.Close() }()

	w, err := zw.Create(entry)
	if err != nil {
		return eris.Wrapf(err, "asbuilt: zip entry %s", entry)
	}
	if _, err := io.Copy(w, f); err != nil {
		return eris.Wrapf(err, "asbuilt: write entry %s", entry)
	}
	return nil
}
