// Command regional prints the yearly mean temperature of a German federal
// state, computed from the daily climate observations of its DWD stations.
//
// Usage:
//
//	go run ./cmd/regional -region Berlin
//	go run ./cmd/regional -quiet -protocol -out berlin.csv Berlin
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/dwd-climate-etl/internal/adapter/dwd"
	"github.com/couchcryptid/dwd-climate-etl/internal/adapter/export"
	"github.com/couchcryptid/dwd-climate-etl/internal/config"
	"github.com/couchcryptid/dwd-climate-etl/internal/domain"
	"github.com/couchcryptid/dwd-climate-etl/internal/observability"
	"github.com/couchcryptid/dwd-climate-etl/internal/pipeline"
)

var (
	fetchedColor = color.New(color.FgGreen)
	skippedColor = color.New(color.FgYellow)
	yearColor    = color.New(color.FgCyan)
	errorColor   = color.New(color.FgRed)
)

// markers prints one character per station phase: '.' fetched, '-' skipped.
type markers struct {
	mu sync.Mutex
	w  io.Writer
}

func (m *markers) Fetched(int, domain.Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fetchedColor.Fprint(m.w, ".")
}

func (m *markers) Skipped(domain.PhaseSkip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	skippedColor.Fprint(m.w, "-")
}

func main() {
	os.Exit(run())
}

func run() int {
	region := flag.String("region", "", "federal state to aggregate, e.g. Berlin")
	quiet := flag.Bool("quiet", false, "suppress per-station progress markers")
	protocol := flag.Bool("protocol", false, "write the raw station records to PROTOCOL_PATH")
	out := flag.String("out", "", "write the daily series as CSV to this file")
	tempOnly := flag.Bool("temp-only", false, "print the daily mean temperature series as JSON")
	noColor := flag.Bool("no-color", false, "disable colorized output")
	flag.Parse()

	if *noColor {
		color.NoColor = true
	}
	if *region == "" {
		*region = strings.Join(flag.Args(), " ")
	}
	if *region == "" {
		fmt.Fprintf(os.Stderr, "usage: regional [flags] <region>\nregions: %s\n", strings.Join(domain.Regions, ", "))
		return 2
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		errorColor.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	// Progress markers share stderr with the log, so keep it terse by default.
	if os.Getenv("LOG_LEVEL") == "" {
		cfg.LogLevel = "warn"
	}
	if os.Getenv("LOG_FORMAT") == "" {
		cfg.LogFormat = "pretty"
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	downloader := dwd.NewHTTPDownloader(&http.Client{Timeout: cfg.HTTPTimeout}, dwd.RetryPolicy{MaxRetries: cfg.FetchMaxRetries}, logger)
	client := dwd.NewClient(cfg.DWDBaseURL, downloader, metrics, logger)
	p := pipeline.New(client, pipeline.Options{
		Concurrency:   cfg.FetchConcurrency,
		IncludeRecent: cfg.IncludeRecent,
		DedupeOverlap: cfg.DedupePhaseOverlap,
		Protocol:      export.Protocol{Path: cfg.ProtocolPath},
		Progress:      &markers{w: os.Stderr},
	}, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := p.Run(ctx, *region, pipeline.RunOptions{Quiet: *quiet, Protocol: *protocol})
	if !*quiet {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		errorColor.Fprintf(os.Stderr, "%v\n", err)
		if errors.Is(err, domain.ErrInvalidArgument) {
			return 2
		}
		return 1
	}
	if len(result.Series) == 0 {
		errorColor.Fprintf(os.Stderr, "%v: no station of %s reported any value (%d stations, %d skipped phases)\n",
			domain.ErrNoData, *region, result.Report.Stations, len(result.Report.Skips))
		return 1
	}

	if *out != "" {
		if err := writeSeries(*out, result.Series); err != nil {
			errorColor.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
	}

	if *tempOnly {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result.Series.Temperatures()); err != nil {
			errorColor.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		return 0
	}

	first, last, _ := result.Series.Span()
	fmt.Printf("%s: %d days from %s to %s, %d stations\n", result.Region, len(result.Series),
		first.Format("2006-01-02"), last.Format("2006-01-02"), result.Report.Stations)
	for _, y := range result.Series.AnnualMeanTemperature() {
		yearColor.Printf("%d", y.Year)
		fmt.Printf("  %6.2f °C  (%d days)\n", y.TempMean, y.Days)
	}
	return 0
}

func writeSeries(path string, series domain.Series) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return export.WriteSeries(f, series)
}
