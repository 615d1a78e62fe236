package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/TAAK61/qr-code-reader-sub001/internal/lazyimg"
	"github.com/TAAK61/qr-code-reader-sub001/internal/pipeline"
	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// processor is the part of the pipeline the server needs.
type processor interface {
	Process(ctx context.Context, buf *pixbuf.PixelBuffer, opts pipeline.Options) (*pipeline.Result, error)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline    processor
	codec       lazyimg.Codec
	defaults    pipeline.Options
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	rateLimiter *RateLimiter
	metrics     *httpMetrics
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
	Options     pipeline.Options
	RateLimit   RateLimitConfig
	// Registry receives HTTP and pipeline collectors. Nil uses a fresh one.
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// PreprocessResult describes one processed upload.
type PreprocessResult struct {
	OriginalWidth   int      `json:"original_width"`
	OriginalHeight  int      `json:"original_height"`
	ProcessedWidth  int      `json:"processed_width"`
	ProcessedHeight int      `json:"processed_height"`
	Format          string   `json:"format,omitempty"`
	Operations      []string `json:"operations"`
	ResizeStrategy  string   `json:"resize_strategy"`
	EnhancePath     string   `json:"enhance_path,omitempty"`
	ElapsedMs       float64  `json:"elapsed_ms"`
	MemoryDelta     int64    `json:"memory_delta_bytes"`
}

// PreprocessResponse is the JSON body of POST /v1/preprocess.
type PreprocessResponse struct {
	Success bool              `json:"success"`
	Result  *PreprocessResult `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// NewServer creates a preprocessing server. Collectors for both the HTTP
// layer and the pipeline are registered on config.Registry.
func NewServer(config Config) (*Server, error) {
	if err := config.Options.Validate(); err != nil {
		return nil, err
	}
	if config.MaxUploadMB <= 0 {
		return nil, errors.New("max upload size must be positive")
	}

	reg := config.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		pipeline: pipeline.New(
			pipeline.WithLogger(logger),
			pipeline.WithMetrics(pipeline.NewMetrics(reg)),
		),
		codec:       lazyimg.ImagingCodec{AutoOrient: true},
		defaults:    config.Options,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
		metrics:     newHTTPMetrics(reg),
		gatherer:    reg,
		logger:      logger,
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit)
	}
	return s, nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/v1/preprocess", s.corsMiddleware(s.rateLimitMiddleware(s.preprocessHandler)))
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}
