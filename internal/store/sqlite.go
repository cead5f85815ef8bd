package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	params     TEXT,
	result     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS zones (
	id           TEXT PRIMARY KEY,
	zone_id      TEXT NOT NULL,
	service_day  TEXT NOT NULL,
	recycle_week TEXT NOT NULL,
	geom         BLOB NOT NULL,
	loaded_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash TEXT PRIMARY KEY,
	address      TEXT NOT NULL,
	lon          REAL NOT NULL,
	lat          REAL NOT NULL,
	matched      INTEGER NOT NULL,
	source       TEXT NOT NULL,
	cached_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_kind ON jobs(kind);
CREATE INDEX IF NOT EXISTS idx_zones_zone_id ON zones(zone_id);
CREATE INDEX IF NOT EXISTS idx_geocode_cache_expires_at ON geocode_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, kind string, params json.RawMessage) (*Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, status, params, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, kind, string(JobStatusQueued), nullString(params), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
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

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, jobID string, status JobStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job status %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		nullString(result), string(JobStatusComplete), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) FailJob(ctx context.Context, jobID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET error = ?, status = ?, updated_at = ? WHERE id = ?`,
		errMsg, string(JobStatusFailed), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, params, result, error, created_at, updated_at FROM jobs WHERE id = ?`,
		jobID,
	)
	return scanJob(row)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]Job, error) {
	query := `SELECT id, kind, status, params, result, error, created_at, updated_at FROM jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, filter.Kind)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) ReplaceZones(ctx context.Context, zones []Zone) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin replace zones")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM zones`); err != nil {
		return 0, eris.Wrap(err, "sqlite: clear zones")
	}

	now := time.Now().UTC()
	for _, z := range zones {
		wkb, err := ewkb.Marshal(z.Geom, ewkb.NDR)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: encode zone %s", z.ZoneID)
		}
		id := z.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO zones (id, zone_id, service_day, recycle_week, geom, loaded_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, z.ZoneID, z.ServiceDay, z.RecycleWeek, wkb, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert zone %s", z.ZoneID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit replace zones")
	}
	return len(zones), nil
}

func (s *SQLiteStore) ListZones(ctx context.Context) ([]Zone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, zone_id, service_day, recycle_week, geom, loaded_at FROM zones ORDER BY zone_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list zones")
	}
	defer rows.Close()

	var zones []Zone
	for rows.Next() {
		var z Zone
		var wkb []byte
		if err := rows.Scan(&z.ID, &z.ZoneID, &z.ServiceDay, &z.RecycleWeek, &wkb, &z.LoadedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan zone")
		}
		g, err := ewkb.Unmarshal(wkb)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode zone %s", z.ZoneID)
		}
		z.Geom = g
		zones = append(zones, z)
	}
	return zones, eris.Wrap(rows.Err(), "sqlite: list zones iterate")
}

func (s *SQLiteStore) GetCachedGeocode(ctx context.Context, addressHash string) (*GeocodeEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT address_hash, address, lon, lat, matched, source, cached_at, expires_at FROM geocode_cache
		 WHERE address_hash = ? AND expires_at > datetime('now')`,
		addressHash,
	)

	var e GeocodeEntry
	err := row.Scan(&e.AddressHash, &e.Address, &e.Lon, &e.Lat, &e.Matched, &e.Source, &e.CachedAt, &e.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached geocode")
	}
	return &e, nil
}

func (s *SQLiteStore) SetCachedGeocode(ctx context.Context, entry GeocodeEntry, ttl time.Duration) error {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (address_hash, address, lon, lat, matched, source, cached_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (address_hash) DO UPDATE SET
		   address = excluded.address, lon = excluded.lon, lat = excluded.lat,
		   matched = excluded.matched, source = excluded.source,
		   cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		entry.AddressHash, entry.Address, entry.Lon, entry.Lat, entry.Matched, entry.Source, now, expiresAt,
	)
	return eris.Wrap(err, "sqlite: set cached geocode")
}

func (s *SQLiteStore) DeleteExpiredGeocodes(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM geocode_cache WHERE expires_at <= datetime('now')`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired geocodes")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullString(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*Job, error) {
	var j Job
	var params, result, errMsg sql.NullString

	err := row.Scan(&j.ID, &j.Kind, &j.Status, &params, &result, &errMsg, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("job not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}

	if params.Valid {
		j.Params = json.RawMessage(params.String)
	}
	if result.Valid {
		j.Result = json.RawMessage(result.String)
	}
	if errMsg.Valid {
		j.Error = errMsg.String
	}
	return &j, nil
}
