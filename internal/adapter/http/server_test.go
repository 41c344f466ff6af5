package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/dwd-climate-etl/internal/adapter/http"
	"github.com/couchcryptid/dwd-climate-etl/internal/domain"
	"github.com/couchcryptid/dwd-climate-etl/internal/pipeline"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockSeries struct {
	result pipeline.Result
	err    error
	asked  []string
}

func (m *mockSeries) Get(_ context.Context, region string) (pipeline.Result, error) {
	m.asked = append(m.asked, region)
	if m.err != nil {
		return pipeline.Result{}, m.err
	}
	r := m.result
	r.Region = region
	return r, nil
}

func berlinSeries() domain.Series {
	return domain.Aggregate([]domain.DailyRecord{
		{StationID: 433, Date: domain.Date(2024, time.January, 1), Measurements: domain.Measurements{TempMean: domain.Float(3), HumidityMean: domain.Float(80)}},
		{StationID: 433, Date: domain.Date(2024, time.January, 2), Measurements: domain.Measurements{TempMean: domain.Float(4)}},
	}, domain.AggregateOptions{})
}

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, &mockSeries{}, slog.Default())
}

func get(t *testing.T, srv http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(t, newTestServer(nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(t, newTestServer(fmt.Errorf("not ready yet")), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestReadinessFunc(t *testing.T) {
	srv := httpadapter.NewServer(":0", httpadapter.ReadinessFunc(func(context.Context) error { return nil }), &mockSeries{}, slog.Default())
	assert.Equal(t, http.StatusOK, get(t, srv, "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRegionsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil), "/api/v1/regions")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["regions"], 16)
	assert.Contains(t, body["regions"], "Thüringen")
}

func TestDailyEndpoint(t *testing.T) {
	series := &mockSeries{result: pipeline.Result{Series: berlinSeries()}}
	srv := httpadapter.NewServer(":0", &mockReadiness{}, series, slog.Default())

	rec := get(t, srv, "/api/v1/regions/Berlin/daily")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Region string                  `json:"region"`
		Days   int                     `json:"days"`
		Series []domain.DailyAggregate `json:"series"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Berlin", body.Region)
	assert.Equal(t, 2, body.Days)
	require.Len(t, body.Series, 2)
	assert.Equal(t, 80.0, *body.Series[0].HumidityMean)
	assert.Nil(t, body.Series[1].HumidityMean)
}

func TestDailyEndpoint_EscapedRegion(t *testing.T) {
	series := &mockSeries{result: pipeline.Result{Series: berlinSeries()}}
	srv := httpadapter.NewServer(":0", &mockReadiness{}, series, slog.Default())

	rec := get(t, srv, "/api/v1/regions/"+url.PathEscape("Baden-Württemberg")+"/daily")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Baden-Württemberg"}, series.asked)
}

func TestDailyEndpoint_TemperatureView(t *testing.T) {
	series := &mockSeries{result: pipeline.Result{Series: berlinSeries()}}
	srv := httpadapter.NewServer(":0", &mockReadiness{}, series, slog.Default())

	rec := get(t, srv, "/api/v1/regions/Berlin/daily?view=temperature")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "humidity")
	assert.Contains(t, rec.Body.String(), `"temp":4`)
}

func TestDailyEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		series *mockSeries
		status int
	}{
		{"unknown region", "/api/v1/regions/Atlantis/daily", &mockSeries{}, http.StatusBadRequest},
		{"unknown view", "/api/v1/regions/Berlin/daily?view=wind", &mockSeries{}, http.StatusBadRequest},
		{"empty series", "/api/v1/regions/Bremen/daily", &mockSeries{}, http.StatusNotFound},
		{"portal down", "/api/v1/regions/Berlin/daily", &mockSeries{err: fmt.Errorf("load station directory: %w", domain.ErrRetrieval)}, http.StatusBadGateway},
		{"layout changed", "/api/v1/regions/Berlin/daily", &mockSeries{err: domain.ErrParse}, http.StatusBadGateway},
		{"unexpected", "/api/v1/regions/Berlin/daily", &mockSeries{err: fmt.Errorf("boom")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httpadapter.NewServer(":0", &mockReadiness{}, tt.series, slog.Default())
			rec := get(t, srv, tt.target)

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestDailyEndpoint_UnknownRegionSkipsSource(t *testing.T) {
	series := &mockSeries{}
	srv := httpadapter.NewServer(":0", &mockReadiness{}, series, slog.Default())

	get(t, srv, "/api/v1/regions/Atlantis/daily")
	assert.Empty(t, series.asked)
}
