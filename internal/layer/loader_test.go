package layer

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CopiesBatches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := validLayer()
	features := []Feature{
		squareFeature(0, 0, 1, map[string]any{"ZONE_ID": "A", "SVC_DAY": "Monday", "PLACARD": "0"}),
		squareFeature(2, 2, 1, map[string]any{"ZONE_ID": "B", "SVC_DAY": "Tuesday", "PLACARD": "0"}),
		squareFeature(4, 4, 1, map[string]any{"ZONE_ID": "C", "SVC_DAY": "Friday", "PLACARD": "0"}),
	}

	// EnsureSchema + CreateTable DDL.
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("load_status").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	cols := []string{"zone_id", "svc_day", "placard", "geom"}
	mock.ExpectCopyFrom(pgx.Identifier{"gis", "zones"}, cols).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"gis", "zones"}, cols).WillReturnResult(1)

	mock.ExpectExec("INSERT INTO").WithArgs("zones", 3, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// Concurrency 1 keeps the mock's ordered expectations deterministic.
	n, err := Load(context.Background(), mock, l, features, LoadOptions{BatchSize: 2, Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_Truncate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := validLayer()

	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("load_status").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("TRUNCATE").WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectExec("INSERT INTO").WithArgs("zones", 0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	n, err := Load(context.Background(), mock, l, nil, LoadOptions{Truncate: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_UpsertByKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := validLayer()
	features := []Feature{
		squareFeature(0, 0, 1, map[string]any{"ZONE_ID": "A", "SVC_DAY": "Monday", "PLACARD": "0"}),
	}

	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("load_status").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE UNIQUE INDEX IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_gis_zones"}, []string{"zone_id", "svc_day", "placard", "geom"}).
		WillReturnResult(1)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	mock.ExpectExec("INSERT INTO").WithArgs("zones", 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	n, err := Load(context.Background(), mock, l, features, LoadOptions{KeyColumn: "ZONE_ID", Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_UpsertKeyNotInCatalog(t *testing.T) {
	_, err := Load(context.Background(), nil, validLayer(), nil, LoadOptions{KeyColumn: "NOPE"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key column")
}

func TestFeatureRows_CoercesColumnTypes(t *testing.T) {
	l := &Layer{
		Name:     "parcels",
		GeomType: GeomPolygon,
		SRID:     2276,
		Fields: []Field{
			{Name: "ACCOUNT", Type: FieldInteger},
			{Name: "TOT_VAL", Type: FieldDouble, Precision: 2},
			{Name: "SALE_DATE", Type: FieldDate},
			{Name: "OWNER", Type: FieldText, Length: 50},
		},
	}
	features := []Feature{
		squareFeature(0, 0, 1, map[string]any{
			"ACCOUNT":   "123",
			"TOT_VAL":   "180500.25",
			"SALE_DATE": "20240115",
			"OWNER":     "SMITH",
		}),
		squareFeature(2, 2, 1, map[string]any{
			"ACCOUNT": nil,
		}),
	}

	rows, err := featureRows(l, features)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(123), rows[0][0])
	assert.Equal(t, 180500.25, rows[0][1])
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), rows[0][2])
	assert.Equal(t, "SMITH", rows[0][3])
	assert.NotNil(t, rows[0][4], "geometry column present")

	for col := 0; col < 4; col++ {
		assert.Nil(t, rows[1][col], "absent attributes stay null")
	}
}

func TestFeatureRows_BadNumeric(t *testing.T) {
	l := &Layer{
		Name:     "parcels",
		GeomType: GeomPolygon,
		SRID:     2276,
		Fields:   []Field{{Name: "ACCOUNT", Type: FieldInteger}},
	}
	features := []Feature{
		squareFeature(0, 0, 1, map[string]any{"ACCOUNT": "12-B"}),
	}

	_, err := featureRows(l, features)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACCOUNT")
}

func TestColumnValue_DateFormats(t *testing.T) {
	f := Field{Name: "SALE_DATE", Type: FieldDate}

	v, err := columnValue(f, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), v)

	_, err = columnValue(f, "soon")
	require.Error(t, err)
}

func TestCreateTable_InvalidLayer(t *testing.T) {
	l := validLayer()
	l.GeomType = "CIRCLE"
	err := CreateTable(context.Background(), nil, "gis", l)
	require.Error(t, err)
}

func TestPGColumnType(t *testing.T) {
	assert.Equal(t, "BIGINT", pgColumnType(Field{Type: FieldInteger}))
	assert.Equal(t, "DOUBLE PRECISION", pgColumnType(Field{Type: FieldDouble}))
	assert.Equal(t, "DATE", pgColumnType(Field{Type: FieldDate}))
	assert.Equal(t, "VARCHAR(50)", pgColumnType(Field{Type: FieldText, Length: 50}))
	assert.Equal(t, "TEXT", pgColumnType(Field{Type: FieldText}))
}

func TestPGGeomType(t *testing.T) {
	assert.Equal(t, "POINT", pgGeomType(GeomPoint))
	assert.Equal(t, "MULTILINESTRING", pgGeomType(GeomLine))
	assert.Equal(t, "MULTIPOLYGON", pgGeomType(GeomPolygon))
}

func TestLoadStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"layer_name", "row_count", "loaded_at", "duration_ms"}).
		AddRow("zones", 120, time.Now().UTC(), 450)
	mock.ExpectQuery("SELECT layer_name").WillReturnRows(rows)

	status, err := LoadStatus(context.Background(), mock, "gis")
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, "zones", status[0].LayerName)
	assert.Equal(t, 120, status[0].RowCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
