// Package schedule answers "when is my trash picked up" for a street
// address: geocode, intersect with the collection-zone layer, and compute
// the next garbage and recycle dates from the zone's schedule attributes.
package schedule

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civic-gis/gis-cli/internal/geomutil"
	"github.com/civic-gis/gis-cli/internal/store"
	"github.com/civic-gis/gis-cli/pkg/geocode"
)

// Status classifies a lookup outcome. Address-not-found and
// outside-service-area are results, not errors.
type Status string

const (
	StatusMatched            Status = "matched"
	StatusAddressNotFound    Status = "address_not_found"
	StatusOutsideServiceArea Status = "outside_service_area"
)

// Result is the one-row answer for an address lookup.
type Result struct {
	Status      Status    `json:"status"`
	ZoneID      string    `json:"zone_id,omitempty"`
	ServiceDay  string    `json:"service_day,omitempty"`
	RecycleWeek string    `json:"recycle_week,omitempty"`
	NextGarbage time.Time `json:"next_garbage,omitempty"`
	NextRecycle time.Time `json:"next_recycle,omitempty"`
	Longitude   float64   `json:"longitude,omitempty"`
	Latitude    float64   `json:"latitude,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// ZoneSource lists the loaded collection zones. store.Store satisfies it.
type ZoneSource interface {
	ListZones(ctx context.Context) ([]store.Zone, error)
}

// Service performs address-to-schedule lookups.
type Service struct {
	zones    ZoneSource
	geocoder geocode.Client

	// referenceMonday anchors recycle week "A"; the week containing it and
	// every second week after are A weeks.
	referenceMonday time.Time

	now func() time.Time
}

// NewService creates a lookup Service. referenceMonday must be a Monday of
// a known recycle week "A".
func NewService(zones ZoneSource, geocoder geocode.Client, referenceMonday time.Time) *Service {
	return &Service{
		zones:           zones,
		geocoder:        geocoder,
		referenceMonday: referenceMonday,
		now:             time.Now,
	}
}

// Lookup geocodes the address and intersects the point with the collection
// zones.
func (s *Service) Lookup(ctx context.Context, addr geocode.AddressInput) (*Result, error) {
	log := zap.L().With(zap.String("component", "schedule"))

	geo, err := s.geocoder.Geocode(ctx, addr)
	if err != nil {
		return nil, eris.Wrap(err, "schedule: geocode address")
	}
	if !geo.Matched {
		log.Debug("address not geocodable", zap.String("street", addr.Street))
		return &Result{Status: StatusAddressNotFound}, nil
	}

	zones, err := s.zones.ListZones(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "schedule: list zones")
	}
	if len(zones) == 0 {
		return nil, eris.New("schedule: no collection zones loaded, run schedule load first")
	}

	zone := matchZone(zones, geo.Longitude, geo.Latitude)
	if zone == nil {
		log.Debug("point outside all zones",
			zap.Float64("lon", geo.Longitude), zap.Float64("lat", geo.Latitude))
		return &Result{
			Status:    StatusOutsideServiceArea,
			Longitude: geo.Longitude,
			Latitude:  geo.Latitude,
			Source:    geo.Source,
		}, nil
	}

	nextGarbage, nextRecycle, err := s.NextCollection(zone.ServiceDay, zone.RecycleWeek, s.now())
	if err != nil {
		return nil, err
	}

	return &Result{
		Status:      StatusMatched,
		ZoneID:      zone.ZoneID,
		ServiceDay:  zone.ServiceDay,
		RecycleWeek: zone.RecycleWeek,
		NextGarbage: nextGarbage,
		NextRecycle: nextRecycle,
		Longitude:   geo.Longitude,
		Latitude:    geo.Latitude,
		Source:      geo.Source,
	}, nil
}

// matchZone returns the first zone whose polygon contains the point.
func matchZone(zones []store.Zone, lon, lat float64) *store.Zone {
	for i := range zones {
		if zones[i].Geom == nil {
			continue
		}
		if geomutil.Contains(zones[i].Geom, lon, lat) {
			return &zones[i]
		}
	}
	return nil
}
