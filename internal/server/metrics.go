package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// httpMetrics are the collectors of the HTTP layer. Pipeline collectors
// live in pipeline.Metrics on the same registry.
type httpMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploadSize      prometheus.Histogram
	rateLimitHits   *prometheus.CounterVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	m := &httpMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrprep_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qrprep_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		uploadSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qrprep_upload_size_bytes",
				Help:    "Size of uploaded images in bytes",
				Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
			},
		),
		rateLimitHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrprep_rate_limit_hits_total",
				Help: "Total number of rejected requests by limit type",
			},
			[]string{"type"},
		),
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration, m.uploadSize, m.rateLimitHits)
	return m
}
