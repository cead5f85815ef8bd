package layer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/civic-gis/gis-cli/internal/db"
)

const defaultBatchSize = 50000

// LoadOptions configures a PostGIS layer load.
type LoadOptions struct {
	Schema      string // target schema (default "gis")
	BatchSize   int    // COPY batch size (default 50,000)
	Truncate    bool   // truncate existing rows before loading
	Concurrency int    // parallel COPY batches (default 3)

	// KeyColumn switches the load from plain COPY to an upsert keyed on
	// this catalog field, replacing existing features in place on reload.
	KeyColumn string
}

// StatusRow is one row of the load_status bookkeeping table.
type StatusRow struct {
	LayerName  string
	RowCount   int
	LoadedAt   time.Time
	DurationMs int
}

// EnsureSchema creates the target schema and the load_status table.
func EnsureSchema(ctx context.Context, pool db.Pool, schema string) error {
	stmts := []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{schema}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			layer_name  TEXT PRIMARY KEY,
			row_count   INTEGER NOT NULL,
			loaded_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			duration_ms INTEGER
		)`, pgx.Identifier{schema, "load_status"}.Sanitize()),
	}
	for _, sql := range stmts {
		if _, err := pool.Exec(ctx, sql); err != nil {
			return eris.Wrapf(err, "layer: ensure schema %s", schema)
		}
	}
	return nil
}

// CreateTable creates the layer's table with typed attribute columns, a
// geometry column, and a GIST index.
func CreateTable(ctx context.Context, pool db.Pool, schema string, l *Layer) error {
	if err := l.Validate(); err != nil {
		return err
	}

	table := strings.ToLower(l.Name)
	quoted := pgx.Identifier{schema, table}.Sanitize()

	cols := make([]string, 0, len(l.Fields)+1)
	cols = append(cols, "id BIGSERIAL PRIMARY KEY")
	for _, f := range l.Fields {
		cols = append(cols, fmt.Sprintf("%s %s",
			pgx.Identifier{strings.ToLower(f.Name)}.Sanitize(), pgColumnType(f)))
	}
	cols = append(cols, fmt.Sprintf("geom geometry(%s, %d)", pgGeomType(l.GeomType), l.SRID))

	createSQL := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoted, strings.Join(cols, ", "))
	if _, err := pool.Exec(ctx, createSQL); err != nil {
		return eris.Wrapf(err, "layer: create table %s.%s", schema, table)
	}

	idxName := pgx.Identifier{fmt.Sprintf("idx_%s_geom", table)}.Sanitize()
	gistSQL := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)", idxName, quoted)
	if _, err := pool.Exec(ctx, gistSQL); err != nil {
		return eris.Wrapf(err, "layer: create GIST index on %s.%s", schema, table)
	}

	return nil
}

// Load bulk-loads features into the layer's table via COPY, creating the
// schema and table as needed, and records the result in load_status.
func Load(ctx context.Context, pool db.Pool, l *Layer, features []Feature, opts LoadOptions) (int64, error) {
	if opts.Schema == "" {
		opts.Schema = "gis"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	log := zap.L().With(
		zap.String("component", "layer.loader"),
		zap.String("layer", l.Name),
	)

	keyColumn := strings.ToLower(opts.KeyColumn)
	if keyColumn != "" {
		if _, ok := l.Field(keyColumn); !ok {
			return 0, eris.Errorf("layer %s: key column %s is not a catalog field", l.Name, opts.KeyColumn)
		}
	}

	if err := EnsureSchema(ctx, pool, opts.Schema); err != nil {
		return 0, err
	}
	if err := CreateTable(ctx, pool, opts.Schema, l); err != nil {
		return 0, err
	}

	table := strings.ToLower(l.Name)

	if keyColumn != "" {
		idxName := pgx.Identifier{fmt.Sprintf("uq_%s_%s", table, keyColumn)}.Sanitize()
		uniqSQL := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
			idxName,
			pgx.Identifier{opts.Schema, table}.Sanitize(),
			pgx.Identifier{keyColumn}.Sanitize())
		if _, err := pool.Exec(ctx, uniqSQL); err != nil {
			return 0, eris.Wrapf(err, "layer: create unique index on %s.%s", opts.Schema, table)
		}
	}

	if opts.Truncate {
		truncSQL := fmt.Sprintf("TRUNCATE %s", pgx.Identifier{opts.Schema, table}.Sanitize())
		if _, err := pool.Exec(ctx, truncSQL); err != nil {
			return 0, eris.Wrapf(err, "layer: truncate %s.%s", opts.Schema, table)
		}
	}

	columns := append(l.ColumnNames(), "geom")

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}

	start := time.Now()
	var loaded atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for offset := 0; offset < len(features); offset += opts.BatchSize {
		end := offset + opts.BatchSize
		if end > len(features) {
			end = len(features)
		}
		batch := features[offset:end]

		g.Go(func() error {
			rows, err := featureRows(l, batch)
			if err != nil {
				return err
			}

			var n int64
			if keyColumn != "" {
				n, err = db.BulkUpsert(gctx, pool, db.UpsertConfig{
					Table:        opts.Schema + "." + table,
					Columns:      columns,
					ConflictKeys: []string{keyColumn},
				}, rows)
			} else {
				n, err = db.CopyFromSchema(gctx, pool, opts.Schema, table, columns, rows)
			}
			if err != nil {
				return err
			}
			loaded.Add(n)

			log.Debug("batch loaded", zap.Int("offset", offset), zap.Int64("rows", n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return loaded.Load(), err
	}

	duration := time.Since(start)

	if err := recordLoad(ctx, pool, opts.Schema, table, int(loaded.Load()), int(duration.Milliseconds())); err != nil {
		log.Warn("failed to record load status", zap.Error(err))
	}

	log.Info("layer loaded",
		zap.String("table", fmt.Sprintf("%s.%s", opts.Schema, table)),
		zap.Int64("rows", loaded.Load()),
		zap.Duration("duration", duration),
	)

	return loaded.Load(), nil
}

// featureRows converts features into COPY rows: attribute values in catalog
// order followed by the EWKB geometry. Attribute values are coerced to the
// Go type pgx can encode into each field's column.
func featureRows(l *Layer, features []Feature) ([][]any, error) {
	rows := make([][]any, 0, len(features))
	for _, feat := range features {
		row := make([]any, 0, len(l.Fields)+1)
		for _, f := range l.Fields {
			v, _ := feat.Attr(f.Name)
			cv, err := columnValue(f, v)
			if err != nil {
				return nil, err
			}
			row = append(row, cv)
		}

		wkb, err := EncodeEWKB(feat.Geom)
		if err != nil {
			return nil, err
		}
		row = append(row, wkb)
		rows = append(rows, row)
	}
	return rows, nil
}

// dbf attributes arrive as strings; the typed columns CreateTable emits
// reject them in binary COPY, so parse per the catalog type first.
func columnValue(f Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch f.Type {
	case FieldInteger:
		switch t := v.(type) {
		case int:
			return int64(t), nil
		case int64:
			return t, nil
		case float64:
			return int64(t), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "layer: field %s: parse integer %q", f.Name, t)
			}
			return n, nil
		}
	case FieldDouble:
		switch t := v.(type) {
		case float64:
			return t, nil
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case string:
			x, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return nil, eris.Wrapf(err, "layer: field %s: parse number %q", f.Name, t)
			}
			return x, nil
		}
	case FieldDate:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			s := strings.TrimSpace(t)
			for _, layout := range []string{"20060102", "2006-01-02"} {
				if d, err := time.Parse(layout, s); err == nil {
					return d, nil
				}
			}
			return nil, eris.Errorf("layer: field %s: parse date %q", f.Name, t)
		}
	default:
		return v, nil
	}

	return nil, eris.Errorf("layer: field %s: cannot encode %T value", f.Name, v)
}

// recordLoad upserts the load_status record for a completed load.
func recordLoad(ctx context.Context, pool db.Pool, schema, table string, rowCount, durationMs int) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s (layer_name, row_count, duration_ms)
		VALUES ($1, $2, $3)
		ON CONFLICT (layer_name) DO UPDATE SET
			row_count = EXCLUDED.row_count,
			loaded_at = now(),
			duration_ms = EXCLUDED.duration_ms`,
		pgx.Identifier{schema, "load_status"}.Sanitize())

	_, err := pool.Exec(ctx, sql, table, rowCount, durationMs)
	if err != nil {
		return eris.Wrap(err, "layer: record load status")
	}
	return nil
}

// LoadStatus returns the load bookkeeping rows for a schema.
func LoadStatus(ctx context.Context, pool db.Pool, schema string) ([]StatusRow, error) {
	sql := fmt.Sprintf(
		"SELECT layer_name, row_count, loaded_at, COALESCE(duration_ms, 0) FROM %s ORDER BY layer_name",
		pgx.Identifier{schema, "load_status"}.Sanitize())

	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrap(err, "layer: query load status")
	}
	defer rows.Close()

	var out []StatusRow
	for rows.Next() {
		var s StatusRow
		if err := rows.Scan(&s.LayerName, &s.RowCount, &s.LoadedAt, &s.DurationMs); err != nil {
			return nil, eris.Wrap(err, "layer: scan load status")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "layer: iterate load status")
	}
	return out, nil
}

// pgColumnType maps a catalog field to a Postgres column type.
func pgColumnType(f Field) string {
	switch f.Type {
	case FieldInteger:
		return "BIGINT"
	case FieldDouble:
		return "DOUBLE PRECISION"
	case FieldDate:
		return "DATE"
	default:
		if f.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", f.Length)
		}
		return "TEXT"
	}
}

// pgGeomType maps a layer geometry type to the PostGIS geometry type. Lines
// and polygons load as multi-part, matching the shapefile reader's output.
func pgGeomType(t GeomType) string {
	switch t {
	case GeomPoint:
		return "POINT"
	case GeomLine:
		return "MULTILINESTRING"
	default:
		return "MULTIPOLYGON"
	}
}
