package dwd

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/dwd-climate-etl/internal/domain"
	"github.com/couchcryptid/dwd-climate-etl/internal/observability"
)

const (
	stationDirectoryPath = "historical/KL_Tageswerte_Beschreibung_Stationen.txt"
	historicalFolder     = "historical/"
	recentFolder         = "recent/"
)

// Client reads the daily KL dataset of the DWD open-data portal.
type Client struct {
	baseURL    string
	downloader Downloader
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a client for the dataset rooted at baseURL.
func NewClient(baseURL string, d Downloader, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		baseURL:    baseURL,
		downloader: d,
		metrics:    metrics,
		logger:     logger,
	}
}

// LoadStations downloads and parses the station directory.
func (c *Client) LoadStations(ctx context.Context) ([]domain.Station, error) {
	body, err := c.download(ctx, "stations", c.baseURL+stationDirectoryPath)
	if err != nil {
		return nil, fmt.Errorf("load station directory: %w", err)
	}
	stations, err := ParseStations(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.logger.Info("station directory loaded", "stations", len(stations))
	return stations, nil
}

// LoadCatalog lists the historical archives by scanning the folder index.
func (c *Client) LoadCatalog(ctx context.Context) (domain.Catalog, error) {
	body, err := c.download(ctx, "catalog", c.baseURL+historicalFolder)
	if err != nil {
		return nil, fmt.Errorf("load archive catalog: %w", err)
	}
	catalog, err := ParseCatalog(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		c.logger.Warn("archive catalog is empty, listing format may have changed", "url", c.baseURL+historicalFolder)
	} else {
		c.logger.Info("archive catalog loaded", "archives", len(catalog))
	}
	return catalog, nil
}

// ArchiveURL resolves where a station's archive for phase lives. A station
// without a historical catalog entry yields an error wrapping domain.ErrNoArchive.
func (c *Client) ArchiveURL(station int, phase domain.Phase, catalog domain.Catalog) (string, error) {
	switch phase {
	case domain.PhaseHistorical:
		name, ok := catalog.Archive(station)
		if !ok {
			return "", fmt.Errorf("station %05d: %w", station, domain.ErrNoArchive)
		}
		return c.baseURL + historicalFolder + name, nil
	case domain.PhaseRecent:
		return c.baseURL + recentFolder + recentArchiveName(station), nil
	}
	return "", fmt.Errorf("%w: unknown phase %q", domain.ErrInvalidArgument, phase)
}

// FetchStation downloads one station archive for phase and parses its
// product file. Records keep sentinel values as published.
func (c *Client) FetchStation(ctx context.Context, station int, phase domain.Phase, catalog domain.Catalog) ([]domain.DailyRecord, error) {
	url, err := c.ArchiveURL(station, phase, catalog)
	if err != nil {
		return nil, err
	}
	archive, err := c.download(ctx, "archive", url)
	if err != nil {
		return nil, err
	}
	product, err := ExtractProduct(archive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	records, err := ParseProduct(bytes.NewReader(product), phase)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	c.metrics.RecordsParsed.Add(float64(len(records)))
	return records, nil
}

func (c *Client) download(ctx context.Context, resource, url string) ([]byte, error) {
	start := time.Now()
	body, err := c.downloader.Download(ctx, url)
	c.metrics.DownloadDuration.WithLabelValues(resource).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	c.logger.Debug("downloaded", "resource", resource, "url", url, "bytes", len(body))
	return body, nil
}
