package batch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pipeline"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Item status values.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Item is one discovered file and what became of it.
type Item struct {
	File   string
	Output string
	Status string
	Error  string
	Result *pipeline.Result
}

// Result holds the result of batch processing.
type Result struct {
	RunID    string
	Items    []Item
	Duration time.Duration
	Schedule pipeline.ScheduleStats
	Profile  map[string]any
	PeakHeap uint64
	Workers  int
	Err      error
}

// Statistics summarizes a batch run.
type Statistics struct {
	Total            int
	Processed        int
	Failed           int
	Skipped          int
	Workers          int
	Chunks           int
	ChunkSize        int
	PixelsIn         int64
	PixelsOut        int64
	BytesRetained    int64
	ArenaPeakBytes   int64
	PeakHeapBytes    uint64
	TotalDuration    time.Duration
	AveragePerImage  time.Duration
	ThroughputPerSec float64
}

// newResult lays out one Item per file. Completed results fill the prefix;
// the item a ChunkError names is marked failed and the rest skipped.
func newResult(runID string, files []string, results []*pipeline.Result, err error) *Result {
	r := &Result{RunID: runID, Items: make([]Item, len(files)), Err: err}

	failed := -1
	var chunkErr *pipeline.ChunkError
	if errors.As(err, &chunkErr) {
		failed = chunkErr.Item
	}

	for i, f := range files {
		it := Item{File: f, Status: StatusSkipped}
		switch {
		case i < len(results) && results[i] != nil:
			it.Status = StatusOK
			it.Result = results[i]
		case i == failed:
			it.Status = StatusFailed
			it.Error = chunkErr.Err.Error()
		}
		r.Items[i] = it
	}
	return r
}

// Processed returns the number of items with a result.
func (r *Result) Processed() int {
	n := 0
	for _, it := range r.Items {
		if it.Status == StatusOK {
			n++
		}
	}
	return n
}

// Stats derives the run statistics.
func (r *Result) Stats() Statistics {
	s := Statistics{
		Total:          len(r.Items),
		Workers:        r.Workers,
		Chunks:         r.Schedule.Chunks,
		ChunkSize:      r.Schedule.ChunkSize,
		ArenaPeakBytes: r.Schedule.ArenaPeakBytes,
		PeakHeapBytes:  r.PeakHeap,
		TotalDuration:  r.Duration,
	}
	for _, it := range r.Items {
		switch it.Status {
		case StatusOK:
			s.Processed++
			res := it.Result
			s.PixelsIn += int64(res.OriginalWidth) * int64(res.OriginalHeight)
			s.PixelsOut += int64(res.ProcessedWidth) * int64(res.ProcessedHeight)
			s.BytesRetained += res.MemoryDelta
		case StatusFailed:
			s.Failed++
		default:
			s.Skipped++
		}
	}
	if s.Processed > 0 {
		s.AveragePerImage = r.Duration / time.Duration(s.Processed)
	}
	if secs := r.Duration.Seconds(); secs > 0 {
		s.ThroughputPerSec = float64(s.Processed) / secs
	}
	return s
}

// FormatResults formats the batch processing results in the specified format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatBatchResults(r, format)
}

// SaveResults writes the formatted results to outputFile, or to w when
// outputFile is empty.
func (r *Result) SaveResults(w io.Writer, format, outputFile string, quiet bool) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
		}
	} else {
		_, _ = fmt.Fprint(w, output)
	}

	return nil
}

// PrintStats prints processing statistics with grouped digits.
func (r *Result) PrintStats(w io.Writer, quiet bool) {
	if quiet {
		return
	}
	s := r.Stats()
	p := message.NewPrinter(language.English)
	_, _ = p.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = p.Fprintf(w, "  Run: %s\n", r.RunID)
	_, _ = p.Fprintf(w, "  Total images: %d\n", s.Total)
	_, _ = p.Fprintf(w, "  Processed: %d\n", s.Processed)
	_, _ = p.Fprintf(w, "  Failed: %d\n", s.Failed)
	_, _ = p.Fprintf(w, "  Skipped: %d\n", s.Skipped)
	_, _ = p.Fprintf(w, "  Workers: %d\n", s.Workers)
	_, _ = p.Fprintf(w, "  Chunks: %d of up to %d images\n", s.Chunks, s.ChunkSize)
	_, _ = p.Fprintf(w, "  Pixels in: %d\n", s.PixelsIn)
	_, _ = p.Fprintf(w, "  Pixels out: %d\n", s.PixelsOut)
	_, _ = p.Fprintf(w, "  Arena peak: %s\n", pipeline.FormatBytes(uint64(max(s.ArenaPeakBytes, 0))))
	_, _ = p.Fprintf(w, "  Peak heap: %s\n", pipeline.FormatBytes(s.PeakHeapBytes))
	_, _ = p.Fprintf(w, "  Duration: %v\n", s.TotalDuration.Round(time.Millisecond))
	_, _ = p.Fprintf(w, "  Avg per image: %v\n", s.AveragePerImage.Round(time.Millisecond))
	_, _ = p.Fprintf(w, "  Throughput: %.1f images/sec\n", s.ThroughputPerSec)
}
