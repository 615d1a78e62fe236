package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TAAK61/qr-code-reader-sub001/internal/lazyimg"
	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
	"github.com/TAAK61/qr-code-reader-sub001/internal/testutil"
	"github.com/TAAK61/qr-code-reader-sub001/internal/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// delayProcessor identifies items by width and sleeps longer for earlier
// items so workers finish out of order.
type delayProcessor struct {
	delay  func(width int) time.Duration
	failOn int
	calls  atomic.Int32
	onCall func(width int)
}

func (d *delayProcessor) ProcessWith(ctx context.Context, buf *pixbuf.PixelBuffer, _ Options, _ pixbuf.Allocator) (*Result, error) {
	d.calls.Add(1)
	if d.onCall != nil {
		d.onCall(buf.Width)
	}
	if d.delay != nil {
		time.Sleep(d.delay(buf.Width))
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if buf.Width == d.failOn {
		return nil, errors.New("synthetic failure")
	}
	return &Result{OriginalWidth: buf.Width, ProcessedWidth: buf.Width, Buffer: buf}, nil
}

func buffersWithWidths(t *testing.T, widths ...int) []*pixbuf.PixelBuffer {
	t.Helper()
	bufs := make([]*pixbuf.PixelBuffer, len(widths))
	for i, w := range widths {
		b, err := pixbuf.New(w, 4, pixbuf.Gray)
		require.NoError(t, err)
		bufs[i] = b
	}
	return bufs
}

type recordingProgress struct {
	mu       sync.Mutex
	started  int
	updates  []int
	complete int
	errIdx   []int
}

func (r *recordingProgress) OnStart(total int) { r.started = total }
func (r *recordingProgress) OnProgress(done, _ int) {
	r.mu.Lock()
	r.updates = append(r.updates, done)
	r.mu.Unlock()
}
func (r *recordingProgress) OnComplete()           { r.complete++ }
func (r *recordingProgress) OnError(i int, _ error) { r.errIdx = append(r.errIdx, i) }

func TestChunkSize(t *testing.T) {
	tests := []struct {
		name      string
		item      uint64
		available uint64
		workers   int
		want      int
	}{
		{"budget bound", 100, 1000, 8, 5},
		{"floor at one", 1000, 100, 8, 1},
		{"capped by workers", 1, 1 << 30, 4, 8},
		{"unknown estimate", 0, 100, 3, 6},
		{"zero workers", 1, 1 << 30, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChunkSize(tt.item, tt.available, tt.workers))
		})
	}
}

func TestEstimateItemBytes(t *testing.T) {
	opts := DefaultOptions()
	small := pixbuf.Info{Width: 100, Height: 50, Model: pixbuf.RGB, EstimatedBytes: 15000}
	assert.Equal(t, uint64((15000+15000)*2), EstimateItemBytes(small, opts))

	large := pixbuf.Info{Width: 4000, Height: 3000, Model: pixbuf.RGB}
	decoded := uint64(4000 * 3000 * 3)
	resized := uint64(4000*3000*4 + 2048*1536*4)
	assert.Equal(t, (decoded+resized)*2, EstimateItemBytes(large, opts))

	opts.ResizeIfLarge = false
	assert.Equal(t, decoded*4, EstimateItemBytes(large, opts))
}

func TestScheduler_PreservesOrder(t *testing.T) {
	pool := workerpool.New(4)
	defer pool.Close()

	widths := []int{10, 20, 30, 40, 50, 60, 70, 80}
	proc := &delayProcessor{delay: func(w int) time.Duration {
		return time.Duration(90-w) * time.Millisecond / 4
	}}
	s := NewScheduler(proc, pool, WithBudget(StaticBudget(1<<30)))

	results, err := s.ProcessBatch(context.Background(), buffersWithWidths(t, widths...), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, results, len(widths))
	for i, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, widths[i], r.OriginalWidth, "slot %d", i)
	}
	assert.Equal(t, int32(len(widths)), proc.calls.Load())
}

func TestScheduler_CompletenessAcrossChunks(t *testing.T) {
	pool := workerpool.New(2)
	defer pool.Close()

	bufs := make([]*pixbuf.PixelBuffer, 13)
	for i := range bufs {
		bufs[i] = testutil.NoisyBuffer(t, 8+i, 8, pixbuf.RGB, uint32(i))
	}
	// 20x8 RGB: (480 + 480) * 2 = 1920 bytes per item; budget allows 3 per chunk.
	s := NewScheduler(New(), pool, WithBudget(StaticBudget(2*3*1920+100)))

	opts := DefaultOptions()
	results, err := s.ProcessBatch(context.Background(), bufs, opts)
	require.NoError(t, err)
	require.Len(t, results, len(bufs))
	for i, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, bufs[i].Width, r.OriginalWidth)
		assert.Equal(t, []string{StageDenoise, StageEnhance}, r.Operations)
	}

	stats := s.LastStats()
	assert.Equal(t, 3, stats.ChunkSize)
	assert.Equal(t, 5, stats.Chunks)
	assert.Equal(t, int64(4), stats.ArenaResets)
	assert.Equal(t, 13, stats.Completed)
	assert.Positive(t, stats.ArenaPeakBytes)
}

func TestScheduler_FailureAbortsChunk(t *testing.T) {
	pool := workerpool.New(2)
	defer pool.Close()

	proc := &delayProcessor{failOn: 50}
	// Two workers cap chunks at 4: [10..40] [50..80] [90]
	progress := &recordingProgress{}
	s := NewScheduler(proc, pool, WithBudget(StaticBudget(1<<30)), WithProgress(progress))

	widths := []int{10, 20, 30, 40, 50, 60, 70, 80, 90}
	results, err := s.ProcessBatch(context.Background(), buffersWithWidths(t, widths...), DefaultOptions())
	require.Error(t, err)

	var ce *ChunkError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 4, ce.Item)
	assert.Equal(t, 4, ce.Start)
	assert.Equal(t, 8, ce.End)
	assert.Equal(t, 1, ce.Chunk)
	assert.EqualError(t, ce.Unwrap(), "synthetic failure")

	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, (i+1)*10, r.OriginalWidth)
	}
	assert.Equal(t, int32(8), proc.calls.Load(), "the last chunk must not run")
	assert.Equal(t, []int{4}, progress.errIdx)
	assert.Equal(t, 1, progress.complete)
	assert.Equal(t, 9, progress.started)
}

func TestScheduler_CancelBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc := &delayProcessor{onCall: func(w int) {
		if w == 10 {
			cancel()
		}
	}}
	// Chunk size 1 with a budget of one item estimate.
	est := EstimateItemBytes(pixbuf.Info{Width: 30, Height: 4, Model: pixbuf.Gray, EstimatedBytes: 120}, DefaultOptions())
	s := NewScheduler(proc, nil, WithBudget(StaticBudget(2*est)))

	results, err := s.ProcessBatch(ctx, buffersWithWidths(t, 10, 20, 30), DefaultOptions())
	require.ErrorIs(t, err, pixbuf.ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.Equal(t, 10, results[0].OriginalWidth)
	assert.Equal(t, int32(1), proc.calls.Load())
}

func TestScheduler_InFlightChunkIgnoresCancellation(t *testing.T) {
	pool := workerpool.New(4)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := &delayProcessor{
		onCall: func(w int) {
			if w == 10 {
				cancel()
			}
		},
		delay: func(int) time.Duration { return 5 * time.Millisecond },
	}
	s := NewScheduler(proc, pool, WithBudget(StaticBudget(1<<30)))

	results, err := s.ProcessBatch(ctx, buffersWithWidths(t, 10, 20, 30, 40), DefaultOptions())
	require.NoError(t, err, "single chunk runs to completion")
	assert.Len(t, results, 4)
}

func TestScheduler_EmptyAndInvalid(t *testing.T) {
	s := NewScheduler(New(), nil)
	results, err := s.ProcessBatch(context.Background(), nil, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, results)

	opts := DefaultOptions()
	opts.MaxDimension = 0
	_, err = s.ProcessBatch(context.Background(), buffersWithWidths(t, 4), opts)
	require.ErrorIs(t, err, pixbuf.ErrInvalidOptions)

	_, err = s.ProcessBatch(context.Background(), []*pixbuf.PixelBuffer{nil}, DefaultOptions())
	var ce *ChunkError
	require.ErrorAs(t, err, &ce)
	require.ErrorIs(t, err, pixbuf.ErrInvalidDimensions)
}

func TestScheduler_ProgressAndMetrics(t *testing.T) {
	pool := workerpool.New(3)
	defer pool.Close()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	progress := &recordingProgress{}
	s := NewScheduler(New(WithMetrics(m)), pool,
		WithBudget(StaticBudget(1<<30)),
		WithProgress(progress),
		WithSchedulerMetrics(m),
	)

	bufs := []*pixbuf.PixelBuffer{
		testutil.NoisyBuffer(t, 12, 12, pixbuf.RGB, 1),
		testutil.NoisyBuffer(t, 12, 12, pixbuf.Gray, 2),
		testutil.NoisyBuffer(t, 12, 12, pixbuf.Indexed, 3),
	}
	_, err := s.ProcessBatch(context.Background(), bufs, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 3, progress.started)
	assert.ElementsMatch(t, []int{1, 2, 3}, progress.updates)
	assert.Equal(t, 1, progress.complete)
	assert.InDelta(t, 3, promtest.ToFloat64(m.itemsTotal.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.chunksTotal), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.operationsTotal.WithLabelValues(StageEnhance, "fallback")), 0)
}

func TestScheduler_ReleasesSourcesPerChunk(t *testing.T) {
	handles := make([]*lazyimg.Handle, 6)
	srcs := make([]Source, len(handles))
	for i := range handles {
		handles[i] = lazyimg.New(testutil.EncodePNG(t, testutil.Checkerboard(400, 300, 10)))
		srcs[i] = handles[i]
	}

	peakLoaded := 0
	proc := &delayProcessor{onCall: func(int) {
		loaded := 0
		for _, h := range handles {
			if h.State() == lazyimg.Loaded {
				loaded++
			}
		}
		peakLoaded = max(peakLoaded, loaded)
	}}
	// An exhausted budget plans one item per chunk.
	s := NewScheduler(proc, nil, WithBudget(StaticBudget(1)))

	results, err := s.ProcessSources(context.Background(), srcs, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, results, 6)
	assert.Equal(t, 6, s.LastStats().Chunks)
	assert.Equal(t, 1, peakLoaded)
	for i, h := range handles {
		assert.Equal(t, lazyimg.Released, h.State(), "handle %d", i)
		assert.Zero(t, h.HeldBytes(), "handle %d", i)
	}
}

func TestScheduler_ResultSinkPerChunk(t *testing.T) {
	pool := workerpool.New(2)
	defer pool.Close()

	proc := &delayProcessor{}
	var seen []int
	var callsAtSink []int32
	sink := func(i int, r *Result) error {
		seen = append(seen, i)
		callsAtSink = append(callsAtSink, proc.calls.Load())
		r.Buffer = nil
		return nil
	}
	// Two workers cap chunks at 4: [10..40] [50..80] [90]
	s := NewScheduler(proc, pool, WithBudget(StaticBudget(1<<30)), WithResultSink(sink))

	results, err := s.ProcessBatch(context.Background(), buffersWithWidths(t, 10, 20, 30, 40, 50, 60, 70, 80, 90), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, results, 9)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, seen)
	assert.Equal(t, []int32{4, 4, 4, 4, 8, 8, 8, 8, 9}, callsAtSink, "each chunk is handed over before the next one runs")
	for _, r := range results {
		assert.Nil(t, r.Buffer)
	}
}

func TestScheduler_ResultSinkFailure(t *testing.T) {
	pool := workerpool.New(2)
	defer pool.Close()

	proc := &delayProcessor{}
	sink := func(i int, _ *Result) error {
		if i == 5 {
			return errors.New("disk full")
		}
		return nil
	}
	progress := &recordingProgress{}
	s := NewScheduler(proc, pool, WithBudget(StaticBudget(1<<30)), WithResultSink(sink), WithProgress(progress))

	results, err := s.ProcessBatch(context.Background(), buffersWithWidths(t, 10, 20, 30, 40, 50, 60, 70, 80, 90), DefaultOptions())
	var ce *ChunkError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Chunk)
	assert.Equal(t, 5, ce.Item)
	assert.EqualError(t, ce.Err, "disk full")
	assert.Len(t, results, 4)
	assert.Equal(t, int32(8), proc.calls.Load())
	assert.Equal(t, []int{5}, progress.errIdx)
}

// misreportedSource advertises a small header but decodes to a larger buffer,
// as a truncated or rewritten file can.
type misreportedSource struct {
	buf *pixbuf.PixelBuffer
}

func (misreportedSource) Info() (pixbuf.Info, error) {
	return pixbuf.Info{Width: 8, Height: 8, Model: pixbuf.Gray, EstimatedBytes: 64}, nil
}

func (m misreportedSource) Buffer() (*pixbuf.PixelBuffer, error) { return m.buf, nil }

func TestScheduler_ArenaExhaustedInLaterChunk(t *testing.T) {
	small := testutil.NoisyBuffer(t, 8, 8, pixbuf.Gray, 1)
	srcs := []Source{
		BufferSource{Buf: small},
		BufferSource{Buf: small},
		misreportedSource{buf: testutil.NoisyBuffer(t, 400, 300, pixbuf.RGB, 2)},
		BufferSource{Buf: small},
	}
	// An 8x8 gray item plans at 256 bytes: one item per chunk and a 256 byte
	// arena, which the denoise output of the 400x300 buffer cannot fit.
	s := NewScheduler(New(), nil, WithBudget(StaticBudget(512)))

	results, err := s.ProcessSources(context.Background(), srcs, DefaultOptions())
	require.ErrorIs(t, err, pixbuf.ErrOutOfMemory)

	var ce *ChunkError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.Chunk)
	assert.Equal(t, 2, ce.Item)

	var pe *pixbuf.ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageDenoise, pe.Stage)

	require.Len(t, results, 2)
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, 8, r.ProcessedWidth)
		require.NotNil(t, r.Buffer)
		assert.Len(t, r.Buffer.Pix, 64)
	}

	stats := s.LastStats()
	assert.Equal(t, 1, stats.ChunkSize)
	assert.Equal(t, uint64(256), stats.EstimatedBytes)
	assert.Equal(t, 2, stats.Completed)
}
