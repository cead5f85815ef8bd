//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/civic-gis/gis-cli/internal/schedule"
	"github.com/civic-gis/gis-cli/internal/store"
	"github.com/civic-gis/gis-cli/pkg/geocode"
)

// stubGeocoder always resolves to a fixed point.
type stubGeocoder struct {
	lon, lat float64
	matched  bool
}

func (s *stubGeocoder) Geocode(_ context.Context, _ geocode.AddressInput) (*geocode.Result, error) {
	return &geocode.Result{
		Longitude: s.lon, Latitude: s.lat,
		Matched: s.matched, Source: "census", Quality: "rooftop",
	}, nil
}

func (s *stubGeocoder) BatchGeocode(ctx context.Context, addrs []geocode.AddressInput) ([]geocode.Result, error) {
	out := make([]geocode.Result, len(addrs))
	for i := range addrs {
		r, _ := s.Geocode(ctx, addrs[i])
		out[i] = *r
	}
	return out, nil
}

func newTestServer(t *testing.T) (*server, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	// One Thursday/B zone covering the stub geocode point.
	p := geom.NewPolygon(geom.XY)
	require.NoError(t, p.Push(geom.NewLinearRingFlat(geom.XY, []float64{
		-97, 32, -96, 32, -96, 33, -97, 33, -97, 32,
	})))
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(p))
	mp.SetSRID(4326)
	_, err = st.ReplaceZones(context.Background(), []store.Zone{
		{ZoneID: "THU-B", ServiceDay: "Thursday", RecycleWeek: "B", Geom: mp},
	})
	require.NoError(t, err)

	refMonday := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := schedule.NewService(st, &stubGeocoder{lon: -96.6, lat: 32.8, matched: true}, refMonday)

	return &server{store: st, schedule: svc, jobCtx: context.Background()}, st
}

func TestRoutes_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRoutes_ScheduleLookup(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/schedule?street=123+Main+St&city=Mesquite&state=TX", nil)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var res schedule.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, schedule.StatusMatched, res.Status)
	assert.Equal(t, "THU-B", res.ZoneID)
	assert.Equal(t, "Thursday", res.ServiceDay)
	assert.False(t, res.NextGarbage.IsZero())
}

func TestRoutes_ScheduleLookup_MissingStreet(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/schedule?city=Mesquite", nil)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "street is required")
}

func TestRoutes_SplitJobLifecycle(t *testing.T) {
	srv, st := newTestServer(t)

	// The job is accepted immediately; the missing shapefile fails it async.
	body, _ := json.Marshal(splitParams{Path: filepath.Join(t.TempDir(), "nope.shp")})
	req := httptest.NewRequest(http.MethodPost, "/v1/split", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)

	var job store.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "split", job.Kind)
	assert.Equal(t, store.JobStatusQueued, job.Status)

	require.Eventually(t, func() bool {
		j, err := st.GetJob(context.Background(), job.ID)
		return err == nil && j.Status == store.JobStatusFailed
	}, 5*time.Second, 20*time.Millisecond)

	// The job is visible over the API too.
	req = httptest.NewRequest(http.MethodGet, "/v1/jobs/"+job.ID, nil)
	rr = httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var fetched store.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fetched))
	assert.Equal(t, store.JobStatusFailed, fetched.Status)
	assert.NotEmpty(t, fetched.Error)
}

func TestRoutes_Split_MissingPath(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/split", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "path is required")
}

func TestRoutes_GetJob_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/no-such-id", nil)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
