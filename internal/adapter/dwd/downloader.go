package dwd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/dwd-climate-etl/internal/domain"
)

// maxBodyBytes caps a single download; the largest historical archives are a few MB.
const maxBodyBytes = 256 << 20

// Downloader fetches the raw bytes behind a URL. Failures wrap
// domain.ErrRetrieval, and missing resources additionally wrap domain.ErrNotFound.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// RetryPolicy controls exponential backoff between attempts.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var (
	errRateLimited  = errors.New("rate limited")
	errServerError  = errors.New("server error")
	errUnexpected   = errors.New("unexpected status code")
	errCircuitOpen  = errors.New("circuit breaker open")
	errBodyTooLarge = errors.New("body exceeds limit")
)

// notFound is returned through the breaker so 404s do not count as failures:
// many stations simply have no recent archive.
type notFound struct{}

// HTTPDownloader implements Downloader with retries, exponential backoff,
// and a circuit breaker shared by all requests to the portal.
type HTTPDownloader struct {
	client  *http.Client
	retry   RetryPolicy
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	maxBody int64
}

// NewHTTPDownloader creates a downloader using client for transport.
func NewHTTPDownloader(client *http.Client, retry RetryPolicy, logger *slog.Logger) *HTTPDownloader {
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = 500 * time.Millisecond
	}
	if retry.MaxInterval <= 0 {
		retry.MaxInterval = 10 * time.Second
	}
	return &HTTPDownloader{
		client: client,
		retry:  retry,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "dwd-opendata",
			MaxRequests: 5,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
		logger:  logger,
		maxBody: maxBodyBytes,
	}
}

// Download performs a GET and returns the full body.
func (d *HTTPDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	delay := d.retry.InitialInterval
	for attempt := 0; ; attempt++ {
		body, err := d.attempt(ctx, url)
		if err == nil {
			return body, nil
		}
		if !retryable(err) || attempt >= d.retry.MaxRetries || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: get %s: %w", domain.ErrRetrieval, url, err)
		}

		d.logger.Debug("download failed, retrying", "url", url, "attempt", attempt+1, "delay", delay, "error", err)
		if !sleepWithContext(ctx, delay) {
			return nil, fmt.Errorf("%w: get %s: %w", domain.ErrRetrieval, url, ctx.Err())
		}
		delay = min(delay*2, d.retry.MaxInterval)
	}
}

func (d *HTTPDownloader) attempt(ctx context.Context, url string) ([]byte, error) {
	result, err := d.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return notFound{}, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, errRateLimited
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBody+1))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if int64(len(body)) > d.maxBody {
			return nil, fmt.Errorf("%w: more than %d bytes", errBodyTooLarge, d.maxBody)
		}
		return body, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	if _, ok := result.(notFound); ok {
		return nil, domain.ErrNotFound
	}
	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, errCircuitOpen),
		errors.Is(err, errUnexpected),
		errors.Is(err, errBodyTooLarge),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
