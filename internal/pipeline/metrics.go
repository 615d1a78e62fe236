package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes pipeline and scheduler counters to Prometheus. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	itemsTotal      *prometheus.CounterVec
	operationsTotal *prometheus.CounterVec
	itemDuration    prometheus.Histogram
	pixelsIn        prometheus.Counter
	chunksTotal     prometheus.Counter
	chunkSize       prometheus.Histogram
	arenaResets     prometheus.Counter
	arenaPeakBytes  prometheus.Gauge
}

// NewMetrics registers the collectors on reg. Pass prometheus.DefaultRegisterer
// for the process-wide registry or a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrprep_items_processed_total",
			Help: "Buffers passed through the pipeline",
		}, []string{"status"}),
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrprep_operations_total",
			Help: "Stages applied, by stage and strategy",
		}, []string{"stage", "strategy"}),
		itemDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "qrprep_item_duration_seconds",
			Help:    "End-to-end pipeline duration per buffer",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		pixelsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qrprep_input_pixels_total",
			Help: "Pixels received by the pipeline",
		}),
		chunksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qrprep_batch_chunks_total",
			Help: "Batch chunks scheduled",
		}),
		chunkSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "qrprep_batch_chunk_size",
			Help:    "Items per scheduled chunk",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
		arenaResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qrprep_arena_resets_total",
			Help: "Scratch arena resets at chunk boundaries",
		}),
		arenaPeakBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qrprep_arena_peak_bytes",
			Help: "Peak scratch arena usage of the last batch",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.itemsTotal, m.operationsTotal, m.itemDuration, m.pixelsIn,
			m.chunksTotal, m.chunkSize, m.arenaResets, m.arenaPeakBytes)
	}
	return m
}

func (m *Metrics) observeItem(res *Result, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.itemsTotal.WithLabelValues("error").Inc()
		return
	}
	m.itemsTotal.WithLabelValues("ok").Inc()
	m.itemDuration.Observe(res.Elapsed.Seconds())
	m.pixelsIn.Add(float64(res.OriginalWidth * res.OriginalHeight))
	for _, op := range res.Operations {
		strategy := ""
		switch op {
		case StageResize:
			strategy = res.ResizeStrategy.String()
		case StageEnhance:
			strategy = res.EnhancePath.String()
		}
		m.operationsTotal.WithLabelValues(op, strategy).Inc()
	}
}

func (m *Metrics) observeChunk(size int) {
	if m == nil {
		return
	}
	m.chunksTotal.Inc()
	m.chunkSize.Observe(float64(size))
}

func (m *Metrics) observeArena(resets int, peak int64) {
	if m == nil {
		return
	}
	m.arenaResets.Add(float64(resets))
	m.arenaPeakBytes.Set(float64(peak))
}
