// Package batch drives the preprocessing scheduler over files on disk.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pipeline"
	"github.com/TAAK61/qr-code-reader-sub001/internal/workerpool"
	"github.com/google/uuid"
)

// ErrNoImages is returned when discovery finds nothing to process.
var ErrNoImages = errors.New("no image files found")

// ProcessBatch discovers images under paths, preprocesses them in
// memory-bounded chunks and writes each chunk's outputs before the next
// chunk is decoded. When the scheduler stops
// early the partial Result is returned together with the error.
func ProcessBatch(ctx context.Context, paths []string, config *Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	files, err := discoverImageFiles(paths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoImages
	}

	runID := uuid.NewString()
	logger := config.logger().With("run_id", runID)

	srcs, err := openSources(files)
	if err != nil {
		return nil, err
	}

	budget, err := pipeline.ParseMemoryLimit(config.MemoryLimit)
	if err != nil {
		return nil, err
	}

	sink, err := newOutputSink(files, config.OutputDir, config.Suffix)
	if err != nil {
		return nil, err
	}

	pool := workerpool.New(config.Workers)
	defer pool.Close()

	profiler := &pipeline.Profiler{}
	proc := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(config.Metrics),
		pipeline.WithProfiler(profiler),
	)
	sched := pipeline.NewScheduler(proc, pool,
		pipeline.WithBudget(budget),
		pipeline.WithSchedulerLogger(logger),
		pipeline.WithProgress(progressFor(config, logger)),
		pipeline.WithSchedulerMetrics(config.Metrics),
		pipeline.WithResultSink(sink.write),
	)

	monitor := pipeline.NewMemoryMonitor(50 * time.Millisecond)
	monitor.Start(ctx)

	logger.Info("batch started", "files", len(files), "workers", pool.NumWorkers())
	start := time.Now()
	results, runErr := sched.ProcessSources(ctx, srcs, config.Options)
	duration := time.Since(start)
	monitor.Stop()

	res := newResult(runID, files, results, runErr)
	res.Duration = duration
	res.Schedule = sched.LastStats()
	res.Profile = profiler.Snapshot()
	res.PeakHeap = monitor.Peak()
	res.Workers = pool.NumWorkers()
	sink.annotate(res)

	if runErr != nil {
		logger.Warn("batch stopped early", "processed", res.Processed(), "total", len(files), "error", runErr)
		return res, fmt.Errorf("batch processing failed: %w", runErr)
	}
	logger.Info("batch finished", "processed", res.Processed(), "duration", duration)
	return res, nil
}

// progressFor always reports to the log at debug level and adds a console
// bar when requested.
func progressFor(config *Config, logger *slog.Logger) pipeline.ProgressCallback {
	cbs := pipeline.MultiProgressCallback{
		pipeline.NewLogProgressCallback(logger, slog.LevelDebug),
	}
	if config.ShowProgress && !config.Quiet {
		w := config.ProgressWriter
		if w == nil {
			w = os.Stderr
		}
		cbs = append(cbs, pipeline.NewConsoleProgressCallback(w, "Processing: ").
			WithUpdateInterval(config.ProgressInterval))
	}
	return cbs
}
