package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/dwd-climate-etl/internal/domain"
)

// DefaultBaseURL is the DWD open-data folder holding the daily KL dataset.
const DefaultBaseURL = "https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/daily/kl/"

// Config holds all service settings, populated from environment variables.
type Config struct {
	DWDBaseURL       string
	HTTPTimeout      time.Duration
	FetchConcurrency int
	FetchMaxRetries  int

	IncludeRecent      bool
	DedupePhaseOverlap bool
	ProtocolPath       string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Scheduled refresh of regions in service mode.
	RefreshRegions  []string
	RefreshInterval time.Duration

	CacheSize int
	CacheTTL  time.Duration

	// Kafka result sink; disabled when no brokers are configured.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	httpTimeout, err := parseDuration("HTTP_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parseDuration("REFRESH_INTERVAL", "24h")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("CACHE_TTL", "6h")
	if err != nil {
		return nil, err
	}

	concurrency, err := parseInt("FETCH_CONCURRENCY", 4, 1, 32)
	if err != nil {
		return nil, err
	}
	retries, err := parseInt("FETCH_MAX_RETRIES", 2, 0, 10)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("CACHE_SIZE", 16, 1, 1024)
	if err != nil {
		return nil, err
	}

	includeRecent, err := parseBool("INCLUDE_RECENT", true)
	if err != nil {
		return nil, err
	}
	dedupe, err := parseBool("DEDUPE_PHASE_OVERLAP", true)
	if err != nil {
		return nil, err
	}

	regions, err := parseRegions(os.Getenv("REFRESH_REGIONS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DWDBaseURL:         sharedcfg.EnvOrDefault("DWD_BASE_URL", DefaultBaseURL),
		HTTPTimeout:        httpTimeout,
		FetchConcurrency:   concurrency,
		FetchMaxRetries:    retries,
		IncludeRecent:      includeRecent,
		DedupePhaseOverlap: dedupe,
		ProtocolPath:       sharedcfg.EnvOrDefault("PROTOCOL_PATH", "./wetterprotokoll.csv.gz"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		RefreshRegions:     regions,
		RefreshInterval:    refreshInterval,
		CacheSize:          cacheSize,
		CacheTTL:           cacheTTL,
		KafkaTopic:         sharedcfg.EnvOrDefault("KAFKA_TOPIC", "regional-daily-climate"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
		cfg.KafkaEnabled = len(cfg.KafkaBrokers) > 0
	}

	if !strings.HasSuffix(cfg.DWDBaseURL, "/") {
		cfg.DWDBaseURL += "/"
	}
	if !strings.HasPrefix(cfg.DWDBaseURL, "http://") && !strings.HasPrefix(cfg.DWDBaseURL, "https://") {
		return nil, errors.New("DWD_BASE_URL must be an http(s) URL")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer between %d and %d", key, lo, hi)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}

func parseRegions(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if err := domain.ValidateRegion(name); err != nil {
			return nil, fmt.Errorf("invalid REFRESH_REGIONS: %w", err)
		}
		out = append(out, name)
	}
	return out, nil
}
