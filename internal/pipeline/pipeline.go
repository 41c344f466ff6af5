package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/dwd-climate-etl/internal/domain"
	"github.com/couchcryptid/dwd-climate-etl/internal/observability"
)

// StationDirectory lists every station of the daily dataset.
type StationDirectory interface {
	LoadStations(ctx context.Context) ([]domain.Station, error)
}

// ArchiveResolver lists the published historical archives.
type ArchiveResolver interface {
	LoadCatalog(ctx context.Context) (domain.Catalog, error)
}

// StationFetcher downloads and parses the records of one station phase.
type StationFetcher interface {
	FetchStation(ctx context.Context, station int, phase domain.Phase, catalog domain.Catalog) ([]domain.DailyRecord, error)
}

// Source bundles the remote stages of a run. The DWD client implements it.
type Source interface {
	StationDirectory
	ArchiveResolver
	StationFetcher
}

// ProtocolWriter persists the raw records of a run after sentinel replacement.
type ProtocolWriter interface {
	WriteProtocol(records []domain.DailyRecord) error
}

// Progress is notified once per station phase. Calls arrive from concurrent
// fetch workers.
type Progress interface {
	Fetched(station int, phase domain.Phase)
	Skipped(skip domain.PhaseSkip)
}

// Options configure a Pipeline.
type Options struct {
	// Concurrency bounds the number of station phases fetched at once.
	Concurrency   int
	IncludeRecent bool
	DedupeOverlap bool
	// Protocol receives the raw records when a run asks for it. Optional.
	Protocol ProtocolWriter
	// Progress receives per-station markers unless a run is quiet. Optional.
	Progress Progress
}

// RunOptions are the per-call switches of a regional run.
type RunOptions struct {
	Quiet    bool
	Protocol bool
}

// Result is the outcome of a regional run.
type Result struct {
	Region      string           `json:"region"`
	GeneratedAt time.Time        `json:"generated_at"`
	Series      domain.Series    `json:"series"`
	Report      domain.RunReport `json:"report"`
}

// Pipeline computes regional daily series from the station archives.
type Pipeline struct {
	source  Source
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	completed bool
	lastErr   error
}

// New creates a Pipeline reading from source.
func New(source Source, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Pipeline{
		source:  source,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once a run has completed and the most recent
// run did not fail on the portal.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.completed {
		return errors.New("no regional run has completed yet")
	}
	if p.lastErr != nil {
		return fmt.Errorf("last regional run failed: %w", p.lastErr)
	}
	return nil
}

// Run computes the daily series of region. The region is validated before
// any network access. Station phases that cannot be fetched are recorded in
// the report and never abort the run; failures of the station directory or
// the archive catalog do.
func (p *Pipeline) Run(ctx context.Context, region string, opts RunOptions) (Result, error) {
	if err := domain.ValidateRegion(region); err != nil {
		p.metrics.PipelineRuns.WithLabelValues("invalid").Inc()
		return Result{}, err
	}
	if opts.Protocol && p.opts.Protocol == nil {
		p.metrics.PipelineRuns.WithLabelValues("invalid").Inc()
		return Result{}, fmt.Errorf("%w: protocol requested but no protocol writer is configured", domain.ErrInvalidArgument)
	}

	start := time.Now()
	result, err := p.run(ctx, region, opts)
	p.metrics.PipelineRunDuration.Observe(time.Since(start).Seconds())
	p.finish(ctx, err)

	switch {
	case err != nil && ctx.Err() != nil:
		p.metrics.PipelineRuns.WithLabelValues("cancelled").Inc()
		p.logger.Warn("regional run cancelled", "region", region, "error", err)
		return Result{}, err
	case err != nil:
		p.metrics.PipelineRuns.WithLabelValues("failed").Inc()
		p.logger.Error("regional run failed", "region", region, "error", err)
		return Result{}, err
	case len(result.Series) == 0:
		p.metrics.PipelineRuns.WithLabelValues("empty").Inc()
		p.logger.Warn("no station contributed any value", "region", region,
			"stations", result.Report.Stations, "skips", len(result.Report.Skips))
	default:
		p.metrics.PipelineRuns.WithLabelValues("success").Inc()
		first, last, _ := result.Series.Span()
		p.logger.Info("regional run complete", "region", region,
			"days", len(result.Series), "from", first.Format(time.DateOnly), "to", last.Format(time.DateOnly),
			"records", result.Report.Records, "skips", len(result.Report.Skips), "duration", time.Since(start))
	}
	p.metrics.SeriesDays.WithLabelValues(region).Set(float64(len(result.Series)))
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, region string, opts RunOptions) (Result, error) {
	stations, err := p.source.LoadStations(ctx)
	if err != nil {
		return Result{}, err
	}
	index := domain.NewRegionIndex(stations)
	ids := index.Stations(region)
	p.logger.Info("regional run started", "region", region, "stations", len(ids))

	catalog, err := p.source.LoadCatalog(ctx)
	if err != nil {
		return Result{}, err
	}

	progress := p.opts.Progress
	if opts.Quiet || progress == nil {
		progress = silent{}
	}
	records, report, err := p.fetchAll(ctx, ids, catalog, progress)
	if err != nil {
		return Result{}, err
	}

	records = domain.ReplaceSentinels(records)
	if opts.Protocol {
		if err := p.opts.Protocol.WriteProtocol(records); err != nil {
			return Result{}, fmt.Errorf("write protocol: %w", err)
		}
		p.logger.Info("protocol written", "region", region, "records", len(records))
	}

	return Result{
		Region:      region,
		GeneratedAt: domain.Now(),
		Series:      domain.Aggregate(records, domain.AggregateOptions{DedupeOverlap: p.opts.DedupeOverlap}),
		Report:      report,
	}, nil
}

// fetchAll fetches every phase of every station with bounded concurrency.
// Records are concatenated in station order, historical before recent,
// regardless of completion order.
func (p *Pipeline) fetchAll(ctx context.Context, stations []int, catalog domain.Catalog, progress Progress) ([]domain.DailyRecord, domain.RunReport, error) {
	phases := p.phases()
	slots := make([][]domain.DailyRecord, len(stations)*len(phases))
	skips := make([]*domain.PhaseSkip, len(slots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, station := range stations {
		for j, phase := range phases {
			slot := i*len(phases) + j
			g.Go(func() error {
				records, err := p.source.FetchStation(gctx, station, phase, catalog)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					skip := domain.ClassifySkip(station, phase, err)
					skips[slot] = &skip
					p.metrics.StationFetches.WithLabelValues(string(phase), string(skip.Reason)).Inc()
					p.logger.Info("station phase skipped", "station", station, "phase", phase, "reason", skip.Reason, "error", err)
					progress.Skipped(skip)
					return nil
				}
				slots[slot] = records
				p.metrics.StationFetches.WithLabelValues(string(phase), "fetched").Inc()
				p.logger.Debug("station phase fetched", "station", station, "phase", phase, "records", len(records))
				progress.Fetched(station, phase)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, domain.RunReport{}, fmt.Errorf("fetch stations: %w", err)
	}

	report := domain.RunReport{Stations: len(stations)}
	var records []domain.DailyRecord
	for slot, recs := range slots {
		if skips[slot] != nil {
			report.Skips = append(report.Skips, *skips[slot])
			continue
		}
		report.Fetched++
		records = append(records, recs...)
	}
	report.Records = len(records)
	return records, report, nil
}

func (p *Pipeline) phases() []domain.Phase {
	if p.opts.IncludeRecent {
		return domain.Phases
	}
	return []domain.Phase{domain.PhaseHistorical}
}

// finish records the outcome for readiness. A run abandoned by its caller
// says nothing about the portal and leaves the previous state in place.
func (p *Pipeline) finish(ctx context.Context, err error) {
	if err != nil && ctx.Err() != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = true
	p.lastErr = err
}

type silent struct{}

func (silent) Fetched(int, domain.Phase) {}
func (silent) Skipped(domain.PhaseSkip) {}
