package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dwd_climate"

// Metrics holds the Prometheus counters, histograms, and gauges for regional runs.
type Metrics struct {
	PipelineRuns        *prometheus.CounterVec // labels: outcome={success,empty,failed,cancelled,invalid}
	PipelineRunDuration prometheus.Histogram

	// Station fetch metrics.
	StationFetches   *prometheus.CounterVec   // labels: phase={historical,recent}, outcome={fetched,<skip reason>}
	DownloadDuration *prometheus.HistogramVec // labels: resource={stations,catalog,archive}
	RecordsParsed    prometheus.Counter

	SeriesDays   *prometheus.GaugeVec   // labels: region
	CacheLookups *prometheus.CounterVec // labels: result={hit,miss}
	SinkMessages prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.PipelineRuns,
		m.PipelineRunDuration,
		m.StationFetches,
		m.DownloadDuration,
		m.RecordsParsed,
		m.SeriesDays,
		m.CacheLookups,
		m.SinkMessages,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      help("Regional runs by outcome."),
		}, []string{"outcome"}),
		PipelineRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      help("Duration of a complete regional run."),
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		StationFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_fetches_total",
			Help:      help("Station archive fetch attempts by phase and outcome."),
		}, []string{"phase", "outcome"}),
		DownloadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      help("Open-data download duration by resource kind."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"resource"}),
		RecordsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_parsed_total",
			Help:      help("Daily station records parsed from archives."),
		}),
		SeriesDays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "series_days",
			Help:      help("Number of dates in the last computed series per region."),
		}, []string{"region"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      help("Series cache lookups by result."),
		}, []string{"result"}),
		SinkMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_messages_total",
			Help:      help("Series rows published to the result sink."),
		}),
	}
}
