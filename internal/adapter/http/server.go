package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/dwd-climate-etl/internal/domain"
	"github.com/couchcryptid/dwd-climate-etl/internal/pipeline"
)

// SeriesSource returns the computed series of a region. The series cache
// implements it.
type SeriesSource interface {
	Get(ctx context.Context, region string) (pipeline.Result, error)
}

// ReadinessFunc adapts a function to sharedobs.ReadinessChecker.
type ReadinessFunc func(ctx context.Context) error

func (f ReadinessFunc) CheckReadiness(ctx context.Context) error { return f(ctx) }

// Server exposes health, readiness, metrics, and the regional series API.
type Server struct {
	httpServer *http.Server
	series     SeriesSource
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// /api/v1 routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, series SeriesSource, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// A cold series request downloads every archive of the region.
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		series: series,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/v1/regions", s.handleRegions)
	mux.HandleFunc("GET /api/v1/regions/{region}/daily", s.handleDaily)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleRegions(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, map[string][]string{"regions": domain.Regions})
}

type dailyResponse struct {
	Region      string    `json:"region"`
	GeneratedAt time.Time `json:"generated_at"`
	Days        int       `json:"days"`
	Series      any       `json:"series"`
}

// handleDaily serves the series of a region. With ?view=temperature only the
// daily mean temperature is returned.
func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	region := r.PathValue("region")
	view := r.URL.Query().Get("view")
	if view != "" && view != "temperature" {
		writeError(w, http.StatusBadRequest, "unknown view "+view)
		return
	}
	// Checked here so unknown regions never reach the cache.
	if err := domain.ValidateRegion(region); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.series.Get(r.Context(), region)
	if err != nil {
		status := statusFor(err)
		s.logger.Error("series request failed", "region", region, "status", status, "error", err)
		writeError(w, status, err.Error())
		return
	}
	if len(result.Series) == 0 {
		writeError(w, http.StatusNotFound, "no station of "+region+" reported any value")
		return
	}

	resp := dailyResponse{
		Region:      result.Region,
		GeneratedAt: result.GeneratedAt,
		Days:        len(result.Series),
		Series:      result.Series,
	}
	if view == "temperature" {
		resp.Series = result.Series.Temperatures()
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRetrieval), errors.Is(err, domain.ErrParse):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
