package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/civic-gis/gis-cli/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot paths of the schedule lookup service.
var preparedStatements = map[string]string{
	"get_job":            `SELECT id, kind, status, params, result, error, created_at, updated_at FROM jobs WHERE id = $1`,
	"update_job_status":  `UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_cached_geocode": `SELECT address_hash, address, lon, lat, matched, source, cached_at, expires_at FROM geocode_cache WHERE address_hash = $1 AND expires_at > now()`,
	"list_zones":         `SELECT id, zone_id, service_day, recycle_week, geom, loaded_at FROM zones ORDER BY zone_id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests and by commands
// that already hold a connection pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., the PostGIS layer loader).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	params     JSONB,
	result     JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS zones (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	zone_id      TEXT NOT NULL,
	service_day  TEXT NOT NULL,
	recycle_week TEXT NOT NULL,
	geom         BYTEA NOT NULL,
	loaded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash TEXT PRIMARY KEY,
	address      TEXT NOT NULL,
	lon          DOUBLE PRECISION NOT NULL,
	lat          DOUBLE PRECISION NOT NULL,
	matched      BOOLEAN NOT NULL,
	source       TEXT NOT NULL,
	cached_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_kind ON jobs(kind);
CREATE INDEX IF NOT EXISTS idx_zones_zone_id ON zones(zone_id);
CREATE INDEX IF NOT EXISTS idx_geocode_cache_expires_at ON geocode_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, kind string, params json.RawMessage) (*Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, kind, status, params, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, kind, string(JobStatusQueued), nullRaw(params), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &Job{
		ID:        id,
		Kind:      kind,
		Status:    JobStatusQueued,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID string, status JobStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job status %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		nullRaw(result), string(JobStatusComplete), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET error = $1, status = $2, updated_at = $3 WHERE id = $4`,
		errMsg, string(JobStatusFailed), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, kind, status, params, result, error, created_at, updated_at FROM jobs WHERE id = $1`,
		jobID,
	)
	j, err := scanPGJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]Job, error) {
	query := `SELECT id, kind, status, params, result, error, created_at, updated_at FROM jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, filter.Kind)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanPGJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) ReplaceZones(ctx context.Context, zones []Zone) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin replace zones")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM zones`); err != nil {
		return 0, eris.Wrap(err, "postgres: clear zones")
	}

	now := time.Now().UTC()
	for _, z := range zones {
		wkb, err := ewkb.Marshal(z.Geom, ewkb.NDR)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: encode zone %s", z.ZoneID)
		}
		id := z.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO zones (id, zone_id, service_day, recycle_week, geom, loaded_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			id, z.ZoneID, z.ServiceDay, z.RecycleWeek, wkb, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: insert zone %s", z.ZoneID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit replace zones")
	}
	return len(zones), nil
}

func (s *PostgresStore) ListZones(ctx context.Context) ([]Zone, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, zone_id, service_day, recycle_week, geom, loaded_at FROM zones ORDER BY zone_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list zones")
	}
	defer rows.Close()

	var zones []Zone
	for rows.Next() {
		var z Zone
		var wkb []byte
		if err := rows.Scan(&z.ID, &z.ZoneID, &z.ServiceDay, &z.RecycleWeek, &wkb, &z.LoadedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan zone")
		}
		g, err := ewkb.Unmarshal(wkb)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: decode zone %s", z.ZoneID)
		}
		z.Geom = g
		zones = append(zones, z)
	}
	return zones, eris.Wrap(rows.Err(), "postgres: list zones iterate")
}

func (s *PostgresStore) GetCachedGeocode(ctx context.Context, addressHash string) (*GeocodeEntry, error) {
	var e GeocodeEntry
	err := s.pool.QueryRow(ctx,
		`SELECT address_hash, address, lon, lat, matched, source, cached_at, expires_at FROM geocode_cache
		 WHERE address_hash = $1 AND expires_at > now()`,
		addressHash,
	).Scan(&e.AddressHash, &e.Address, &e.Lon, &e.Lat, &e.Matched, &e.Source, &e.CachedAt, &e.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached geocode")
	}
	return &e, nil
}

func (s *PostgresStore) SetCachedGeocode(ctx context.Context, entry GeocodeEntry, ttl time.Duration) error {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO geocode_cache (address_hash, address, lon, lat, matched, source, cached_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (address_hash) DO UPDATE SET
		   address = $2, lon = $3, lat = $4, matched = $5, source = $6, cached_at = $7, expires_at = $8`,
		entry.AddressHash, entry.Address, entry.Lon, entry.Lat, entry.Matched, entry.Source, now, expiresAt,
	)
	return eris.Wrap(err, "postgres: set cached geocode")
}

func (s *PostgresStore) DeleteExpiredGeocodes(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM geocode_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired geocodes")
	}
	return int(tag.RowsAffected()), nil
}

func nullRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func scanPGJob(row scannable) (*Job, error) {
	var j Job
	var params, result []byte
	var errMsg *string

	err := row.Scan(&j.ID, &j.Kind, &j.Status, &params, &result, &errMsg, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if params != nil {
		j.Params = json.RawMessage(params)
	}
	if result != nil {
		j.Result = json.RawMessage(result)
	}
	if errMsg != nil {
		j.Error = *errMsg
	}
	return &j, nil
}
