package assessment

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/civic-gis/gis-cli/internal/geomutil"
	"github.com/civic-gis/gis-cli/internal/layer"
)

// Options configures a feature-class build.
type Options struct {
	// ParcelPath is the tax-parcel polygon shapefile.
	ParcelPath string
	SRID       int

	// Optional zoning layer. ZoneField is the attribute carrying the zoning
	// class; ZoneAccountField, when present in the zoning layer, joins on the
	// parcel account number before falling back to centroid containment.
	ZonePath         string
	ZoneField        string
	ZoneAccountField string

	// Optional USNG grid layer. GridField is the attribute carrying the grid
	// label, transferred to parcels whose centroid falls in the cell.
	GridPath  string
	GridField string
}

// Stats summarizes a build.
type Stats struct {
	Parcels     int `json:"parcels"`
	ZoneJoins   int `json:"zone_joins"`
	ZoneSpatial int `json:"zone_spatial"`
	GridJoins   int `json:"grid_joins"`
}

// Result is a built assessment feature class.
type Result struct {
	Layer    *layer.Layer
	Features []layer.Feature
	Stats    Stats
}

const defaultZoneAccountField = "ACCT_"

// Build snapshots the tax-parcel layer into the assessment feature class.
// Parcel attributes transfer by field-name match; fields absent from the
// parcel layer stay null. Every parcel starts as Not Assessed with an
// unassessed placard.
func Build(ctx context.Context, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("component", "assessment"))

	cat := Catalog(opts.SRID)
	if err := cat.Validate(); err != nil {
		return nil, err
	}

	parcels, parcelFields, err := layer.ReadShapefile(opts.ParcelPath, opts.SRID)
	if err != nil {
		return nil, err
	}
	log.Info("parcels read", zap.String("path", opts.ParcelPath), zap.Int("count", len(parcels)))

	// Fields present in both catalogs transfer; the rest stay null.
	shared := sharedFields(cat, parcelFields)

	features := make([]layer.Feature, 0, len(parcels))
	for _, p := range parcels {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "assessment: build cancelled")
		}

		f := layer.Feature{Geom: p.Geom, Attrs: make(map[string]any, len(shared)+2)}
		for _, pair := range shared {
			if v, ok := p.Attr(pair.source); ok {
				f.Attrs[pair.catalog] = v
			}
		}
		f.SetAttr("DamageExtent", DamageNotAssessed)
		f.SetAttr("Placard", PlacardNotAssessed)
		features = append(features, f)
	}

	stats := Stats{Parcels: len(features)}

	if opts.ZonePath != "" {
		if err := applyZoning(features, opts, &stats); err != nil {
			return nil, err
		}
		log.Info("zoning applied",
			zap.Int("by_account", stats.ZoneJoins), zap.Int("by_centroid", stats.ZoneSpatial))
	}

	if opts.GridPath != "" {
		if err := applyGrid(features, opts, &stats); err != nil {
			return nil, err
		}
		log.Info("grid labels applied", zap.Int("joined", stats.GridJoins))
	}

	return &Result{Layer: cat, Features: features, Stats: stats}, nil
}

// fieldPair maps a catalog field name to the name it carries in the source
// layer.
type fieldPair struct {
	catalog string
	source  string
}

// sharedFields returns catalog fields also present in the source layer. dbf
// truncation means a source field may carry only the first ten characters of
// a catalog name.
func sharedFields(cat *layer.Layer, source []layer.Field) []fieldPair {
	var shared []fieldPair
	for _, cf := range cat.Fields {
		for _, sf := range source {
			if strings.EqualFold(cf.Name, sf.Name) || truncEqualFold(cf.Name, sf.Name, 10) {
				shared = append(shared, fieldPair{catalog: cf.Name, source: sf.Name})
				break
			}
		}
	}
	return shared
}

func truncEqualFold(long, short string, n int) bool {
	if len(long) <= n {
		return false
	}
	return strings.EqualFold(long[:n], short)
}

func centroidOf(g geom.T) (x, y float64, ok bool) {
	if g == nil {
		return 0, 0, false
	}
	c := geomutil.Centroid(g)
	return c.X(), c.Y(), true
}

// applyZoning populates FULL_ZONE from the zoning layer, joining by account
// number where the zoning layer carries one and by parcel-centroid
// containment otherwise.
func applyZoning(features []layer.Feature, opts Options, stats *Stats) error {
	zoneField := opts.ZoneField
	if zoneField == "" {
		return eris.New("assessment: zoning layer requires a zone field")
	}
	acctField := opts.ZoneAccountField
	if acctField == "" {
		acctField = defaultZoneAccountField
	}

	zones, zoneFields, err := layer.ReadShapefile(opts.ZonePath, opts.SRID)
	if err != nil {
		return err
	}

	hasAccounts := false
	for _, f := range zoneFields {
		if strings.EqualFold(f.Name, acctField) {
			hasAccounts = true
			break
		}
	}

	byAccount := make(map[string]string)
	if hasAccounts {
		for _, z := range zones {
			acct := z.StringAttr(acctField)
			if acct != "" {
				byAccount[acct] = z.StringAttr(zoneField)
			}
		}
	}

	for i := range features {
		if acct := features[i].StringAttr("ACCOUNT_NUM"); acct != "" {
			if zone, ok := byAccount[acct]; ok {
				features[i].SetAttr("FULL_ZONE", zone)
				stats.ZoneJoins++
				continue
			}
		}

		cx, cy, ok := centroidOf(features[i].Geom)
		if !ok {
			continue
		}
		for _, z := range zones {
			if z.Geom != nil && geomutil.Contains(z.Geom, cx, cy) {
				features[i].SetAttr("FULL_ZONE", z.StringAttr(zoneField))
				stats.ZoneSpatial++
				break
			}
		}
	}
	return nil
}

// applyGrid populates USNGCoord with the label of the grid cell containing
// each parcel's centroid.
func applyGrid(features []layer.Feature, opts Options, stats *Stats) error {
	gridField := opts.GridField
	if gridField == "" {
		return eris.New("assessment: grid layer requires a grid field")
	}

	cells, _, err := layer.ReadShapefile(opts.GridPath, opts.SRID)
	if err != nil {
		return err
	}

	for i := range features {
		cx, cy, ok := centroidOf(features[i].Geom)
		if !ok {
			continue
		}
		for _, c := range cells {
			if c.Geom != nil && geomutil.Contains(c.Geom, cx, cy) {
				features[i].SetAttr("USNGCoord", c.StringAttr(gridField))
				stats.GridJoins++
				break
			}
		}
	}
	return nil
}
