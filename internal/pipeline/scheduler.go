package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TAAK61/qr-code-reader-sub001/internal/mempool"
	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
	"github.com/TAAK61/qr-code-reader-sub001/internal/preprocess"
	"github.com/TAAK61/qr-code-reader-sub001/internal/workerpool"
)

// safetyMultiplier inflates per-item estimates to cover allocator slack.
const safetyMultiplier = 2

// Source yields one batch item. Info must be cheap; Buffer may decode.
// *lazyimg.Handle satisfies Source.
type Source interface {
	Info() (pixbuf.Info, error)
	Buffer() (*pixbuf.PixelBuffer, error)
}

// Releaser is implemented by sources that can drop their pixels. The
// Scheduler releases every source of a chunk once the chunk has finished.
type Releaser interface {
	Release()
}

// ResultSink receives each result of a finished chunk in index order, before
// the next chunk starts. An error aborts the batch at that item.
type ResultSink func(index int, res *Result) error

// BufferSource adapts an already decoded buffer to Source.
type BufferSource struct {
	Buf *pixbuf.PixelBuffer
}

// Info implements Source.
func (s BufferSource) Info() (pixbuf.Info, error) {
	if s.Buf == nil {
		return pixbuf.Info{}, fmt.Errorf("%w: nil buffer", pixbuf.ErrInvalidDimensions)
	}
	return s.Buf.Info()
}

// Buffer implements Source.
func (s BufferSource) Buffer() (*pixbuf.PixelBuffer, error) {
	if s.Buf == nil {
		return nil, fmt.Errorf("%w: nil buffer", pixbuf.ErrInvalidDimensions)
	}
	return s.Buf, nil
}

// ChunkError reports the item that aborted a chunk. Results of the aborted
// chunk are discarded; earlier chunks are returned alongside the error.
type ChunkError struct {
	Chunk int
	Start int
	End   int
	Item  int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d [%d,%d) aborted at item %d: %v", e.Chunk, e.Start, e.End, e.Item, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// ScheduleStats describes the most recent batch run.
type ScheduleStats struct {
	Items          int           `json:"items"`
	Completed      int           `json:"completed"`
	ChunkSize      int           `json:"chunk_size"`
	Chunks         int           `json:"chunks"`
	Workers        int           `json:"workers"`
	EstimatedBytes uint64        `json:"estimated_item_bytes"`
	BudgetBytes    uint64        `json:"budget_bytes"`
	ArenaPeakBytes int64         `json:"arena_peak_bytes"`
	ArenaResets    int64         `json:"arena_resets"`
	Duration       time.Duration `json:"duration_ns"`
}

// Scheduler runs a Processor over batches in chunks sized to a memory
// budget. The worker pool is owned by the caller.
type Scheduler struct {
	proc     Processor
	pool     *workerpool.Pool
	budget   MemoryBudget
	logger   *slog.Logger
	progress ProgressCallback
	metrics  *Metrics
	sink     ResultSink

	mu   sync.Mutex
	last ScheduleStats
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithBudget replaces the default RuntimeBudget.
func WithBudget(b MemoryBudget) SchedulerOption {
	return func(s *Scheduler) {
		if b != nil {
			s.budget = b
		}
	}
}

// WithSchedulerLogger sets the logger for chunk planning records.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProgress reports per-item progress to cb.
func WithProgress(cb ProgressCallback) SchedulerOption {
	return func(s *Scheduler) {
		if cb != nil {
			s.progress = cb
		}
	}
}

// WithSchedulerMetrics records chunk and arena metrics on m.
func WithSchedulerMetrics(m *Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// WithResultSink hands results to sink chunk by chunk, letting callers
// persist and drop pixels without waiting for the whole batch.
func WithResultSink(sink ResultSink) SchedulerOption {
	return func(s *Scheduler) { s.sink = sink }
}

// NewScheduler binds proc to pool. A nil pool runs every item on the
// calling goroutine.
func NewScheduler(proc Processor, pool *workerpool.Pool, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		proc:     proc,
		pool:     pool,
		budget:   RuntimeBudget{},
		logger:   slog.Default(),
		progress: NoOpProgressCallback{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// EstimateItemBytes is the planning cost of one item: the decoded size plus
// the largest intermediate the resize stage may allocate, doubled.
func EstimateItemBytes(info pixbuf.Info, opts Options) uint64 {
	decoded := uint64(max(info.EstimatedBytes, 0))
	if decoded == 0 {
		decoded = uint64(info.Width) * uint64(info.Height) * uint64(max(info.Model.Channels(), 1))
	}
	// Resizing goes through RGBA scratch for the source and the target.
	intermediate := decoded
	if opts.ResizeIfLarge && (info.Width > opts.MaxDimension || info.Height > opts.MaxDimension) {
		tw, th, _, err := preprocess.TargetSize(info.Width, info.Height, opts.MaxDimension)
		if err == nil {
			intermediate = uint64(info.Width)*uint64(info.Height)*4 + uint64(tw)*uint64(th)*4
		}
	}
	return (decoded + intermediate) * safetyMultiplier
}

// ChunkSize divides half of the available budget by the per-item estimate,
// floored at 1 and capped at twice the worker count.
func ChunkSize(itemBytes, available uint64, workers int) int {
	limit := 2 * max(workers, 1)
	if itemBytes == 0 {
		return limit
	}
	n := (available / 2) / itemBytes
	if n < 1 {
		return 1
	}
	if n > uint64(limit) {
		return limit
	}
	return int(n)
}

// ProcessBatch runs every buffer through the Processor. See ProcessSources.
func (s *Scheduler) ProcessBatch(ctx context.Context, bufs []*pixbuf.PixelBuffer, opts Options) ([]*Result, error) {
	srcs := make([]Source, len(bufs))
	for i, b := range bufs {
		srcs[i] = BufferSource{Buf: b}
	}
	return s.ProcessSources(ctx, srcs, opts)
}

// ProcessSources processes srcs chunk by chunk. Result i belongs to srcs[i]
// whatever order workers finish in. Intermediates of a chunk live in a
// shared arena that is reset before the next chunk starts; ctx is checked at
// the same point, and a chunk already running always completes. Sources
// implementing Releaser are released as soon as their chunk finishes.
//
// On failure the returned slice holds the results of the chunks that
// finished before the failing one, and the error is a *ChunkError or wraps
// pixbuf.ErrCancelled.
func (s *Scheduler) ProcessSources(ctx context.Context, srcs []Source, opts Options) ([]*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	n := len(srcs)
	if n == 0 {
		return []*Result{}, nil
	}

	start := time.Now()
	workers := 1
	if s.pool != nil {
		workers = s.pool.NumWorkers()
	}

	var estimate uint64
	for i, src := range srcs {
		info, err := src.Info()
		if err != nil {
			// The item fails again when its chunk loads it.
			s.logger.Warn("batch item metadata unavailable", "index", i, "error", err)
			continue
		}
		estimate = max(estimate, EstimateItemBytes(info, opts))
	}
	available := s.budget.Available()
	chunk := ChunkSize(estimate, available, workers)
	chunks := (n + chunk - 1) / chunk

	// A single item must always fit even when the budget is exhausted.
	arena := mempool.NewArena(int64(max(available/2, estimate)))
	defer arena.Release()

	stats := ScheduleStats{
		Items:          n,
		ChunkSize:      chunk,
		Chunks:         chunks,
		Workers:        workers,
		EstimatedBytes: estimate,
		BudgetBytes:    available,
	}
	s.logger.Debug("batch planned",
		"items", n,
		"chunk_size", chunk,
		"chunks", chunks,
		"workers", workers,
		"item_estimate", FormatBytes(estimate),
		"budget", FormatBytes(available),
	)

	progress := &lockedProgress{cb: s.progress}
	progress.start(n)
	defer progress.complete()

	// Items never observe cancellation; it is honoured between chunks only.
	itemCtx := context.WithoutCancel(ctx)
	results := make([]*Result, n)
	var done atomic.Int64

	finish := func(completed int, err error) ([]*Result, error) {
		as := arena.Stats()
		stats.Completed = completed
		stats.ArenaPeakBytes = as.PeakBytes
		stats.ArenaResets = as.Resets
		stats.Duration = time.Since(start)
		s.metrics.observeArena(int(as.Resets), as.PeakBytes)
		s.mu.Lock()
		s.last = stats
		s.mu.Unlock()
		return results[:completed], err
	}

	for c, lo := 0, 0; lo < n; c, lo = c+1, lo+chunk {
		hi := min(lo+chunk, n)
		if c > 0 {
			arena.Reset()
			if err := ctx.Err(); err != nil {
				s.logger.Info("batch cancelled between chunks", "completed", lo, "total", n)
				return finish(lo, fmt.Errorf("%w after %d of %d items: %w", pixbuf.ErrCancelled, lo, n, err))
			}
		}
		s.metrics.observeChunk(hi - lo)

		errs := make([]error, hi-lo)
		run := func(i int) {
			idx := lo + i
			buf, err := srcs[idx].Buffer()
			if err != nil {
				errs[i] = pixbuf.NewProcessingError("load", nil, err)
				return
			}
			res, err := s.proc.ProcessWith(itemCtx, buf, opts, arena)
			if err != nil {
				errs[i] = err
				return
			}
			results[idx] = res
			progress.progress(int(done.Add(1)), n)
		}

		if hi-lo > 1 && workers > 1 {
			s.pool.Run(hi-lo, run)
		} else {
			for i := range hi - lo {
				run(i)
				if errs[i] != nil {
					break
				}
			}
		}

		for _, src := range srcs[lo:hi] {
			if r, ok := src.(Releaser); ok {
				r.Release()
			}
		}

		for i, err := range errs {
			if err == nil {
				continue
			}
			clear(results[lo:hi])
			progress.fail(lo+i, err)
			return finish(lo, &ChunkError{Chunk: c, Start: lo, End: hi, Item: lo + i, Err: err})
		}
		if s.sink == nil {
			continue
		}
		for idx := lo; idx < hi; idx++ {
			if err := s.sink(idx, results[idx]); err != nil {
				clear(results[lo:hi])
				progress.fail(idx, err)
				return finish(lo, &ChunkError{Chunk: c, Start: lo, End: hi, Item: idx, Err: err})
			}
		}
	}
	return finish(n, nil)
}

// LastStats returns the statistics of the most recent ProcessSources call.
func (s *Scheduler) LastStats() ScheduleStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
