// Package pipeline conditions decoded images for barcode detection. A
// Pipeline runs resize, noise reduction and contrast enhancement on one
// buffer; a Scheduler drives a Pipeline over batches in memory-bounded
// chunks on a shared worker pool.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/TAAK61/qr-code-reader-sub001/internal/common"
	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
	"github.com/TAAK61/qr-code-reader-sub001/internal/preprocess"
)

// Processor is the per-item unit of work the Scheduler fans out. scratch
// receives intermediate buffers; the returned Result.Buffer must not live in
// scratch since scratch is reclaimed between chunks.
type Processor interface {
	ProcessWith(ctx context.Context, buf *pixbuf.PixelBuffer, opts Options, scratch pixbuf.Allocator) (*Result, error)
}

// Pipeline is stateless apart from its observers and is safe for concurrent use.
type Pipeline struct {
	logger   *slog.Logger
	metrics  *Metrics
	profiler *Profiler
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for per-item debug records.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records every item on m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithProfiler accumulates per-stage counters on pr.
func WithProfiler(pr *Profiler) Option {
	return func(p *Pipeline) { p.profiler = pr }
}

// New builds a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PlanStages lists the stages Process will run for a w x h input, in
// execution order. Resizing comes first so the pixel-wise passes run on the
// bounded image.
func PlanStages(w, h int, opts Options) []string {
	stages := make([]string, 0, 3)
	if opts.ResizeIfLarge && (w > opts.MaxDimension || h > opts.MaxDimension) {
		stages = append(stages, StageResize)
	}
	if opts.ReduceNoise {
		stages = append(stages, StageDenoise)
	}
	if opts.EnhanceContrast {
		stages = append(stages, StageEnhance)
	}
	return stages
}

// Process runs the planned stages with every buffer allocated on the heap.
func (p *Pipeline) Process(ctx context.Context, buf *pixbuf.PixelBuffer, opts Options) (*Result, error) {
	return p.ProcessWith(ctx, buf, opts, nil)
}

// ProcessWith runs the planned stages. Intermediate outputs are taken from
// scratch (heap when nil); the final output is always heap allocated so it
// outlives scratch. The input is never modified. Any stage failure aborts the
// call with a *pixbuf.ProcessingError.
func (p *Pipeline) ProcessWith(ctx context.Context, buf *pixbuf.PixelBuffer, opts Options, scratch pixbuf.Allocator) (*Result, error) {
	res, err := p.process(ctx, buf, opts, scratch)
	if err != nil {
		if p.profiler != nil {
			p.profiler.RecordFailure()
		}
		p.metrics.observeItem(nil, err)
		p.logger.Debug("preprocess failed", "error", err)
		return nil, err
	}
	if p.profiler != nil {
		p.profiler.Record(res)
	}
	p.metrics.observeItem(res, nil)
	p.logger.Debug("preprocessed image",
		"original", fmt.Sprintf("%dx%d", res.OriginalWidth, res.OriginalHeight),
		"processed", fmt.Sprintf("%dx%d", res.ProcessedWidth, res.ProcessedHeight),
		"operations", res.Operations,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, buf *pixbuf.PixelBuffer, opts Options, scratch pixbuf.Allocator) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, pixbuf.NewProcessingError("start", buf, fmt.Errorf("%w: %w", pixbuf.ErrCancelled, err))
	}
	if buf == nil {
		return nil, pixbuf.NewProcessingError("validate", nil, fmt.Errorf("%w: nil buffer", pixbuf.ErrInvalidDimensions))
	}
	if err := opts.Validate(); err != nil {
		return nil, pixbuf.NewProcessingError("validate", buf, err)
	}
	if err := buf.Validate(); err != nil {
		return nil, pixbuf.NewProcessingError("validate", buf, err)
	}

	timer := common.NewTimer()
	if scratch == nil {
		scratch = pixbuf.HeapAllocator{}
	}
	scratchCount := &pixbuf.CountingAllocator{Next: scratch}
	outCount := &pixbuf.CountingAllocator{}

	res := &Result{
		OriginalWidth:  buf.Width,
		OriginalHeight: buf.Height,
		ResizeStrategy: preprocess.ResizeNone,
		EnhancePath:    preprocess.EnhanceNone,
	}

	stages := PlanStages(buf.Width, buf.Height, opts)
	cur := buf
	for i, stage := range stages {
		allocs := preprocess.Allocators{Scratch: scratchCount, Output: scratchCount}
		if i == len(stages)-1 {
			allocs.Output = outCount
		}

		var next *pixbuf.PixelBuffer
		var err error
		switch stage {
		case StageResize:
			next, res.ResizeStrategy, err = preprocess.ResizeWith(cur, opts.MaxDimension, opts.HighQualityResize, allocs)
		case StageDenoise:
			next, err = preprocess.DenoiseWith(cur, allocs)
		case StageEnhance:
			next, res.EnhancePath, err = preprocess.EnhanceWith(cur, opts.ContrastFactor, allocs)
		}
		if err != nil {
			return nil, pixbuf.NewProcessingError(stage, cur, err)
		}
		cur = next
		res.Operations = append(res.Operations, stage)
	}

	if len(stages) == 0 {
		clone, err := buf.Clone(outCount)
		if err != nil {
			return nil, pixbuf.NewProcessingError("copy", buf, err)
		}
		cur = clone
	}

	res.Elapsed = timer.Stop()
	res.Buffer = cur
	res.ProcessedWidth, res.ProcessedHeight = cur.Width, cur.Height
	res.MemoryDelta = cur.SizeBytes() - buf.SizeBytes()
	res.AllocatedBytes = scratchCount.Bytes + outCount.Bytes
	if res.Operations == nil {
		res.Operations = []string{}
	}
	return res, nil
}
