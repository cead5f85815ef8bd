package schedule

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civic-gis/gis-cli/internal/layer"
	"github.com/civic-gis/gis-cli/internal/store"
)

// ZoneFields names the shapefile attributes carrying the schedule data.
type ZoneFields struct {
	ZoneID      string `yaml:"zone_id" mapstructure:"zone_id"`
	ServiceDay  string `yaml:"service_day" mapstructure:"service_day"`
	RecycleWeek string `yaml:"recycle_week" mapstructure:"recycle_week"`
}

// DefaultZoneFields matches the solid-waste route layer's schema.
var DefaultZoneFields = ZoneFields{
	ZoneID:      "ROUTE_ID",
	ServiceDay:  "SVC_DAY",
	RecycleWeek: "REC_WEEK",
}

// ZoneSink persists a replacement zone set. store.Store satisfies it.
type ZoneSink interface {
	ReplaceZones(ctx context.Context, zones []store.Zone) (int, error)
}

// LoadZones reads the collection-zone shapefile and replaces the stored zone
// set. Every zone's schedule attributes are validated before anything is
// written.
func LoadZones(ctx context.Context, sink ZoneSink, path string, srid int, fields ZoneFields) (int, error) {
	if fields.ZoneID == "" {
		fields = DefaultZoneFields
	}

	features, _, err := layer.ReadShapefile(path, srid)
	if err != nil {
		return 0, err
	}

	zones := make([]store.Zone, 0, len(features))
	for i, f := range features {
		if f.Geom == nil {
			continue
		}
		z := store.Zone{
			ZoneID:      f.StringAttr(fields.ZoneID),
			ServiceDay:  f.StringAttr(fields.ServiceDay),
			RecycleWeek: f.StringAttr(fields.RecycleWeek),
			Geom:        f.Geom,
		}
		if z.ZoneID == "" {
			return 0, eris.Errorf("schedule: feature %d has no %s attribute", i, fields.ZoneID)
		}
		if _, err := ParseServiceDay(z.ServiceDay); err != nil {
			return 0, eris.Wrapf(err, "schedule: zone %s", z.ZoneID)
		}
		zones = append(zones, z)
	}

	if len(zones) == 0 {
		return 0, eris.Errorf("schedule: %s contains no polygon features", path)
	}

	n, err := sink.ReplaceZones(ctx, zones)
	if err != nil {
		return 0, err
	}

	zap.L().Info("collection zones loaded",
		zap.String("component", "schedule"),
		zap.String("path", path),
		zap.Int("zones", n),
	)
	return n, nil
}
