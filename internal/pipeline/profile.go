package pipeline

import (
	"sync/atomic"
	"time"
)

// Profiler aggregates per-stage counters across runs. It is safe for
// concurrent use.
type Profiler struct {
	Items        atomic.Int64
	Failures     atomic.Int64
	TotalNs      atomic.Int64
	Resizes      atomic.Int64
	Denoises     atomic.Int64
	Enhances     atomic.Int64
	BytesOut     atomic.Int64
	BytesScratch atomic.Int64
}

// Record adds one finished item.
func (p *Profiler) Record(res *Result) {
	p.Items.Add(1)
	p.TotalNs.Add(int64(res.Elapsed))
	p.BytesOut.Add(res.Buffer.SizeBytes())
	p.BytesScratch.Add(res.AllocatedBytes - res.Buffer.SizeBytes())
	for _, op := range res.Operations {
		switch op {
		case StageResize:
			p.Resizes.Add(1)
		case StageDenoise:
			p.Denoises.Add(1)
		case StageEnhance:
			p.Enhances.Add(1)
		}
	}
}

// RecordFailure counts an item that aborted.
func (p *Profiler) RecordFailure() {
	p.Failures.Add(1)
}

// Snapshot returns cumulative counters with times in milliseconds.
func (p *Profiler) Snapshot() map[string]any {
	items := p.Items.Load()
	total := time.Duration(p.TotalNs.Load())
	out := map[string]any{
		"items":         items,
		"failures":      p.Failures.Load(),
		"resizes":       p.Resizes.Load(),
		"denoises":      p.Denoises.Load(),
		"enhances":      p.Enhances.Load(),
		"bytes_out":     p.BytesOut.Load(),
		"bytes_scratch": p.BytesScratch.Load(),
		"total_ms":      total.Milliseconds(),
	}
	if items > 0 {
		out["ms_per_item"] = float64(total.Microseconds()) / 1000.0 / float64(items)
	}
	return out
}
