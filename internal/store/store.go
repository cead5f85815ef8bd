package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/twpayne/go-geom"
)

// JobStatus is the lifecycle state of an asynchronous job.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// Job is a unit of HTTP-submitted work tracked through the store.
type Job struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Status    JobStatus       `json:"status"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status JobStatus `json:"status,omitempty"`
	Kind   string    `json:"kind,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Zone is a waste-collection zone polygon with its schedule attributes.
// Geom is a MultiPolygon in the layer's SRID.
type Zone struct {
	ID          string    `json:"id"`
	ZoneID      string    `json:"zone_id"`
	ServiceDay  string    `json:"service_day"`
	RecycleWeek string    `json:"recycle_week"`
	Geom        geom.T    `json:"-"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// GeocodeEntry is a cached geocoder response keyed by the sha256 hash of
// the normalized address. Matched=false records a geocoder miss so the
// address is not retried until the entry expires.
type GeocodeEntry struct {
	AddressHash string    `json:"address_hash"`
	Address     string    `json:"address"`
	Lon         float64   `json:"lon"`
	Lat         float64   `json:"lat"`
	Matched     bool      `json:"matched"`
	Source      string    `json:"source"`
	CachedAt    time.Time `json:"cached_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Store defines the persistence interface shared by the CLI and the HTTP
// service.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, kind string, params json.RawMessage) (*Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus) error
	CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error
	FailJob(ctx context.Context, jobID string, errMsg string) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]Job, error)

	// Collection zones
	ReplaceZones(ctx context.Context, zones []Zone) (int, error)
	ListZones(ctx context.Context) ([]Zone, error)

	// Geocode cache
	GetCachedGeocode(ctx context.Context, addressHash string) (*GeocodeEntry, error)
	SetCachedGeocode(ctx context.Context, entry GeocodeEntry, ttl time.Duration) error
	DeleteExpiredGeocodes(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
