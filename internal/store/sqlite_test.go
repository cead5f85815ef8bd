package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func zonePolygon(t *testing.T, x, y, size float64) *geom.MultiPolygon {
	t.Helper()
	p := geom.NewPolygon(geom.XY)
	require.NoError(t, p.Push(geom.NewLinearRingFlat(geom.XY, []float64{
		x, y, x + size, y, x + size, y + size, x, y + size, x, y,
	})))
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(p))
	mp.SetSRID(4326)
	return mp
}

// --- Jobs ---

func TestSQLite_Job_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	params := json.RawMessage(`{"tolerance":0.995}`)
	j, err := st.CreateJob(ctx, "split", params)
	require.NoError(t, err)
	require.NotEmpty(t, j.ID)
	assert.Equal(t, JobStatusQueued, j.Status)

	require.NoError(t, st.UpdateJobStatus(ctx, j.ID, JobStatusRunning))

	got, err := st.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, got.Status)
	assert.JSONEq(t, string(params), string(got.Params))

	result := json.RawMessage(`{"cut_y":12.5}`)
	require.NoError(t, st.CompleteJob(ctx, j.ID, result))

	got, err = st.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusComplete, got.Status)
	assert.JSONEq(t, string(result), string(got.Result))
}

func TestSQLite_Job_Fail(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	j, err := st.CreateJob(ctx, "split", nil)
	require.NoError(t, err)

	require.NoError(t, st.FailJob(ctx, j.ID, "input has no area"))

	got, err := st.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Equal(t, "input has no area", got.Error)
}

func TestSQLite_Job_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.UpdateJobStatus(ctx, "missing-id", JobStatusRunning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")

	_, err = st.GetJob(ctx, "missing-id")
	require.Error(t, err)
}

func TestSQLite_Job_ListFilter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateJob(ctx, "split", nil)
	require.NoError(t, err)
	_, err = st.CreateJob(ctx, "assessment", nil)
	require.NoError(t, err)

	require.NoError(t, st.UpdateJobStatus(ctx, a.ID, JobStatusRunning))

	jobs, err := st.ListJobs(ctx, JobFilter{Status: JobStatusRunning})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, a.ID, jobs[0].ID)

	jobs, err = st.ListJobs(ctx, JobFilter{Kind: "assessment"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "assessment", jobs[0].Kind)

	jobs, err = st.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

// --- Zones ---

func TestSQLite_Zones_ReplaceAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	zones := []Zone{
		{ZoneID: "MON-A", ServiceDay: "Monday", RecycleWeek: "A", Geom: zonePolygon(t, 0, 0, 2)},
		{ZoneID: "THU-B", ServiceDay: "Thursday", RecycleWeek: "B", Geom: zonePolygon(t, 5, 5, 2)},
	}

	n, err := st.ReplaceZones(ctx, zones)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := st.ListZones(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "MON-A", got[0].ZoneID)
	assert.Equal(t, "Monday", got[0].ServiceDay)
	assert.Equal(t, "A", got[0].RecycleWeek)
	require.NotNil(t, got[0].Geom)
	assert.Equal(t, 4326, got[0].Geom.SRID())

	// Replace wipes the previous set.
	n, err = st.ReplaceZones(ctx, zones[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = st.ListZones(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

// --- Geocode cache ---

func TestSQLite_GeocodeCache_SetAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := GeocodeEntry{
		AddressHash: "abc123",
		Address:     "100 main st, garland, tx, 75040",
		Lon:         -96.63,
		Lat:         32.91,
		Matched:     true,
		Source:      "census",
	}
	require.NoError(t, st.SetCachedGeocode(ctx, entry, time.Hour))

	got, err := st.GetCachedGeocode(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, -96.63, got.Lon)
	assert.Equal(t, 32.91, got.Lat)
	assert.True(t, got.Matched)
	assert.Equal(t, "census", got.Source)
}

func TestSQLite_GeocodeCache_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetCachedGeocode(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_GeocodeCache_NegativeEntry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := GeocodeEntry{AddressHash: "miss1", Address: "1 nowhere ln", Matched: false, Source: "census"}
	require.NoError(t, st.SetCachedGeocode(ctx, entry, time.Hour))

	got, err := st.GetCachedGeocode(ctx, "miss1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Matched)
}

func TestSQLite_GeocodeCache_Expired(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := GeocodeEntry{AddressHash: "old1", Address: "2 past rd", Matched: true, Source: "census"}
	require.NoError(t, st.SetCachedGeocode(ctx, entry, -time.Hour))

	got, err := st.GetCachedGeocode(ctx, "old1")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := st.DeleteExpiredGeocodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_GeocodeCache_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := GeocodeEntry{AddressHash: "ow1", Address: "3 update ave", Lon: -96.1, Lat: 32.1, Matched: true, Source: "census"}
	require.NoError(t, st.SetCachedGeocode(ctx, entry, time.Hour))

	entry.Lon = -96.2
	entry.Source = "google"
	require.NoError(t, st.SetCachedGeocode(ctx, entry, time.Hour))

	got, err := st.GetCachedGeocode(ctx, "ow1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, -96.2, got.Lon)
	assert.Equal(t, "google", got.Source)
}
