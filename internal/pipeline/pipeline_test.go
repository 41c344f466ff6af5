package pipeline_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/dwd-climate-etl/internal/adapter/dwd"
	"github.com/couchcryptid/dwd-climate-etl/internal/adapter/dwd/dwdtest"
	"github.com/couchcryptid/dwd-climate-etl/internal/domain"
	"github.com/couchcryptid/dwd-climate-etl/internal/observability"
	"github.com/couchcryptid/dwd-climate-etl/internal/pipeline"
)

const stationListing = "historical/KL_Tageswerte_Beschreibung_Stationen.txt"

// --- fixtures ---

func berlinPortal(t *testing.T) *dwdtest.Portal {
	t.Helper()
	portal := dwdtest.NewPortal(t)
	portal.Put(stationListing, dwdtest.StationListing(t,
		dwdtest.Station{ID: 1, Name: "Aachen", Region: "Nordrhein-Westfalen"},
		dwdtest.Station{ID: 403, Name: "Berlin-Dahlem (FU)", Region: "Berlin"},
		dwdtest.Station{ID: 433, Name: "Berlin-Tempelhof", Region: "Berlin"},
	))
	portal.Put("historical/", []byte(dwdtest.FolderIndex(
		dwdtest.HistoricalName(1),
		dwdtest.HistoricalName(403),
		dwdtest.HistoricalName(433),
	)))
	portal.Put("historical/"+dwdtest.HistoricalName(433), dwdtest.StationArchive(t, 433,
		dwdtest.Day{Date: "20231230", TempMean: "1.0"},
		dwdtest.Day{Date: "20231231", TempMean: "2.0", HumidityMean: "-999"},
	))
	portal.Put("historical/"+dwdtest.HistoricalName(403), dwdtest.StationArchive(t, 403,
		dwdtest.Day{Date: "20231231", TempMean: "4.0"},
		dwdtest.Day{Date: "20240101", TempMean: "-999", HumidityMean: "80"},
	))
	portal.Put("recent/tageswerte_KL_00433_akt.zip", dwdtest.StationArchive(t, 433,
		dwdtest.Day{Date: "20231231", TempMean: "2.0"},
		dwdtest.Day{Date: "20240101", TempMean: "3.0"},
	))
	return portal
}

func newPipeline(portal *dwdtest.Portal, opts pipeline.Options) (*pipeline.Pipeline, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	downloader := dwd.NewHTTPDownloader(&http.Client{Timeout: 5 * time.Second}, dwd.RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	}, observability.DiscardLogger())
	client := dwd.NewClient(portal.BaseURL(), downloader, metrics, observability.DiscardLogger())
	return pipeline.New(client, opts, observability.DiscardLogger(), metrics), metrics
}

type recordingProgress struct {
	mu      sync.Mutex
	fetched int
	skipped []domain.PhaseSkip
}

func (r *recordingProgress) Fetched(int, domain.Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetched++
}

func (r *recordingProgress) Skipped(s domain.PhaseSkip) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, s)
}

type captureProtocol struct {
	records []domain.DailyRecord
	err     error
}

func (c *captureProtocol) WriteProtocol(records []domain.DailyRecord) error {
	c.records = records
	return c.err
}

// --- tests ---

func TestRun_Berlin(t *testing.T) {
	portal := berlinPortal(t)
	progress := &recordingProgress{}
	p, metrics := newPipeline(portal, pipeline.Options{
		Concurrency:   3,
		IncludeRecent: true,
		DedupeOverlap: true,
		Progress:      progress,
	})

	result, err := p.Run(context.Background(), "Berlin", pipeline.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Berlin", result.Region)
	require.Len(t, result.Series, 3, "one row per distinct date")
	for i := 1; i < len(result.Series); i++ {
		assert.True(t, result.Series[i-1].Date.Before(result.Series[i].Date), "series must be ascending")
	}

	dec30, dec31, jan01 := result.Series[0], result.Series[1], result.Series[2]
	assert.Equal(t, domain.Date(2023, time.December, 30), dec30.Date)
	assert.Equal(t, 1.0, *dec30.TempMean)

	// Station 433 is deduplicated to its recent record, 403 contributes 4.0.
	assert.Equal(t, 3.0, *dec31.TempMean)
	assert.Nil(t, dec31.HumidityMean, "sentinel must not leak into the mean")
	assert.Equal(t, 2, dec31.Contributors)

	assert.Equal(t, 3.0, *jan01.TempMean, "sentinel of 403 is ignored")
	assert.Equal(t, 80.0, *jan01.HumidityMean)
	assert.Equal(t, 2024, jan01.Year)
	assert.Equal(t, 1, jan01.Month)
	assert.Equal(t, 1, jan01.DayOfYear)

	assert.Equal(t, 2, result.Report.Stations)
	assert.Equal(t, 3, result.Report.Fetched)
	require.Len(t, result.Report.Skips, 1)
	assert.Equal(t, 403, result.Report.Skips[0].StationID)
	assert.Equal(t, domain.SkipNoRecentData, result.Report.Skips[0].Reason)

	assert.Equal(t, 3, progress.fetched)
	assert.Len(t, progress.skipped, 1)

	assert.Zero(t, portal.Requests("historical/"+dwdtest.HistoricalName(1)), "stations of other regions are not fetched")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRuns.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.SeriesDays.WithLabelValues("Berlin")))
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestRun_OverlapAveragedWithoutDedupe(t *testing.T) {
	portal := berlinPortal(t)
	p, _ := newPipeline(portal, pipeline.Options{Concurrency: 2, IncludeRecent: true})

	result, err := p.Run(context.Background(), "Berlin", pipeline.RunOptions{Quiet: true})
	require.NoError(t, err)
	require.Len(t, result.Series, 3)

	dec31 := result.Series[1]
	assert.InDelta(t, 8.0/3.0, *dec31.TempMean, 1e-9, "historical and recent records both count")
	assert.Equal(t, 3, dec31.Contributors)
}

func TestRun_HistoricalOnly(t *testing.T) {
	portal := berlinPortal(t)
	p, _ := newPipeline(portal, pipeline.Options{Concurrency: 1, DedupeOverlap: true})

	result, err := p.Run(context.Background(), "Berlin", pipeline.RunOptions{Quiet: true})
	require.NoError(t, err)
	assert.Zero(t, portal.Requests("recent/tageswerte_KL_00433_akt.zip"))
	assert.Equal(t, 2, result.Report.Fetched)
	assert.Empty(t, result.Report.Skips)
	assert.Len(t, result.Series, 3)
}

func TestRun_DeterministicAcrossConcurrency(t *testing.T) {
	sequential, _ := newPipeline(berlinPortal(t), pipeline.Options{Concurrency: 1, IncludeRecent: true, DedupeOverlap: true})
	parallel, _ := newPipeline(berlinPortal(t), pipeline.Options{Concurrency: 8, IncludeRecent: true, DedupeOverlap: true})

	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(clockwork.NewRealClock()) })

	a, err := sequential.Run(context.Background(), "Berlin", pipeline.RunOptions{Quiet: true})
	require.NoError(t, err)
	b, err := parallel.Run(context.Background(), "Berlin", pipeline.RunOptions{Quiet: true})
	require.NoError(t, err)

	assert.Equal(t, fakeClock.Now(), a.GeneratedAt)
	if diff := cmp.Diff(a.Series, b.Series); diff != "" {
		t.Errorf("series differ by concurrency (-sequential +parallel):\n%s", diff)
	}
}

func TestRun_StationWithoutAnyArchive(t *testing.T) {
	portal := dwdtest.NewPortal(t)
	portal.Put(stationListing, dwdtest.StationListing(t,
		dwdtest.Station{ID: 999, Name: "Nirgendwo", Region: "Bremen"},
	))
	portal.Put("historical/", []byte(dwdtest.FolderIndex()))
	p, metrics := newPipeline(portal, pipeline.Options{Concurrency: 2, IncludeRecent: true})

	result, err := p.Run(context.Background(), "Bremen", pipeline.RunOptions{Quiet: true})
	require.NoError(t, err)
	assert.Empty(t, result.Series)
	assert.Zero(t, result.Report.Records)

	reasons := make([]domain.SkipReason, 0, len(result.Report.Skips))
	for _, s := range result.Report.Skips {
		reasons = append(reasons, s.Reason)
	}
	assert.Equal(t, []domain.SkipReason{domain.SkipNoHistoricalData, domain.SkipNoRecentData}, reasons)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRuns.WithLabelValues("empty")))
}

func TestRun_RegionWithoutStations(t *testing.T) {
	portal := berlinPortal(t)
	p, _ := newPipeline(portal, pipeline.Options{Concurrency: 2, IncludeRecent: true})

	result, err := p.Run(context.Background(), "Saarland", pipeline.RunOptions{Quiet: true})
	require.NoError(t, err)
	assert.Empty(t, result.Series)
	assert.Zero(t, result.Report.Stations)
}

func TestRun_InvalidRegionMakesNoRequests(t *testing.T) {
	portal := berlinPortal(t)
	p, metrics := newPipeline(portal, pipeline.Options{Concurrency: 2})

	_, err := p.Run(context.Background(), "Atlantis", pipeline.RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	assert.Zero(t, portal.Requests(stationListing))
	assert.Zero(t, portal.Requests("historical/"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRuns.WithLabelValues("invalid")))
	assert.Error(t, p.CheckReadiness(context.Background()), "rejected input is not a completed run")
}

func TestRun_DirectoryUnavailable(t *testing.T) {
	portal := dwdtest.NewPortal(t)
	p, metrics := newPipeline(portal, pipeline.Options{Concurrency: 2})

	_, err := p.Run(context.Background(), "Berlin", pipeline.RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRetrieval))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRuns.WithLabelValues("failed")))
	assert.ErrorContains(t, p.CheckReadiness(context.Background()), "last regional run failed")
}

func TestRun_Protocol(t *testing.T) {
	portal := berlinPortal(t)
	protocol := &captureProtocol{}
	p, _ := newPipeline(portal, pipeline.Options{Concurrency: 2, IncludeRecent: true, Protocol: protocol})

	result, err := p.Run(context.Background(), "Berlin", pipeline.RunOptions{Quiet: true, Protocol: true})
	require.NoError(t, err)
	require.Len(t, protocol.records, result.Report.Records)

	// Concatenation order: 403 historical, 433 historical, 433 recent.
	assert.Equal(t, 403, protocol.records[0].StationID)
	assert.Nil(t, protocol.records[1].TempMean, "protocol holds records after sentinel replacement")
	assert.Equal(t, domain.PhaseRecent, protocol.records[len(protocol.records)-1].Phase)
}

func TestRun_ProtocolFailure(t *testing.T) {
	portal := berlinPortal(t)
	protocol := &captureProtocol{err: errors.New("disk full")}
	p, _ := newPipeline(portal, pipeline.Options{Concurrency: 2, Protocol: protocol})

	_, err := p.Run(context.Background(), "Berlin", pipeline.RunOptions{Quiet: true, Protocol: true})
	assert.ErrorContains(t, err, "disk full")
}

func TestRun_ProtocolWithoutWriter(t *testing.T) {
	p, _ := newPipeline(berlinPortal(t), pipeline.Options{Concurrency: 2})

	_, err := p.Run(context.Background(), "Berlin", pipeline.RunOptions{Protocol: true})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestRun_QuietSuppressesProgress(t *testing.T) {
	progress := &recordingProgress{}
	p, _ := newPipeline(berlinPortal(t), pipeline.Options{Concurrency: 2, IncludeRecent: true, Progress: progress})

	_, err := p.Run(context.Background(), "Berlin", pipeline.RunOptions{Quiet: true})
	require.NoError(t, err)
	assert.Zero(t, progress.fetched)
	assert.Empty(t, progress.skipped)
}

// --- source stubs ---

type blockingSource struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *blockingSource) LoadStations(context.Context) ([]domain.Station, error) {
	stations := make([]domain.Station, 0, 10)
	for id := 1; id <= 10; id++ {
		stations = append(stations, domain.Station{ID: id, Region: "Hessen"})
	}
	return stations, nil
}

func (s *blockingSource) LoadCatalog(context.Context) (domain.Catalog, error) {
	return domain.Catalog{}, nil
}

func (s *blockingSource) FetchStation(ctx context.Context, station int, phase domain.Phase, _ domain.Catalog) ([]domain.DailyRecord, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
	}
	return []domain.DailyRecord{{
		StationID:    station,
		Date:         domain.Date(2024, time.January, 1),
		Phase:        phase,
		Measurements: domain.Measurements{TempMean: domain.Float(float64(station))},
	}}, nil
}

func TestRun_BoundedConcurrency(t *testing.T) {
	source := &blockingSource{}
	p := pipeline.New(source, pipeline.Options{Concurrency: 3}, observability.DiscardLogger(), observability.NewMetricsForTesting())

	result, err := p.Run(context.Background(), "Hessen", pipeline.RunOptions{Quiet: true})
	require.NoError(t, err)
	require.Len(t, result.Series, 1)
	assert.Equal(t, 5.5, *result.Series[0].TempMean)
	assert.LessOrEqual(t, source.peak.Load(), int32(3))
}

func TestRun_CancelledContext(t *testing.T) {
	source := &blockingSource{}
	p := pipeline.New(source, pipeline.Options{Concurrency: 2}, observability.DiscardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, "Hessen", pipeline.RunOptions{Quiet: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRun_CancelledRunKeepsReadiness(t *testing.T) {
	source := &blockingSource{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(source, pipeline.Options{Concurrency: 2}, observability.DiscardLogger(), metrics)

	_, err := p.Run(context.Background(), "Hessen", pipeline.RunOptions{Quiet: true})
	require.NoError(t, err)
	require.NoError(t, p.CheckReadiness(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx, "Hessen", pipeline.RunOptions{Quiet: true})
	require.Error(t, err)

	assert.NoError(t, p.CheckReadiness(context.Background()), "a caller giving up is not a portal failure")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRuns.WithLabelValues("cancelled")))
	assert.Zero(t, testutil.ToFloat64(metrics.PipelineRuns.WithLabelValues("failed")))
}

func TestRun_CancelledFirstRunIsNotCompletion(t *testing.T) {
	p := pipeline.New(&blockingSource{}, pipeline.Options{Concurrency: 2}, observability.DiscardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, "Hessen", pipeline.RunOptions{Quiet: true})
	require.Error(t, err)

	assert.ErrorContains(t, p.CheckReadiness(context.Background()), "no regional run has completed yet")
}
