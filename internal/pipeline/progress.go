package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback receives batch progress. The Scheduler serializes calls,
// so implementations need no locking of their own.
type ProgressCallback interface {
	// OnStart is called once with the number of items in the batch.
	OnStart(total int)
	// OnProgress is called after each finished item.
	OnProgress(done, total int)
	// OnComplete is called once when the batch returns, successful or not.
	OnComplete()
	// OnError is called for the item that aborted a chunk.
	OnError(index int, err error)
}

// NoOpProgressCallback discards all progress.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)         {}
func (NoOpProgressCallback) OnProgress(int, int) {}
func (NoOpProgressCallback) OnComplete()         {}
func (NoOpProgressCallback) OnError(int, error)  {}

// ConsoleProgressCallback redraws a single progress line on a terminal.
type ConsoleProgressCallback struct {
	w        io.Writer
	prefix   string
	width    int
	interval time.Duration

	start time.Time
	last  time.Time
	total int
}

// NewConsoleProgressCallback writes to w, or stderr when w is nil.
func NewConsoleProgressCallback(w io.Writer, prefix string) *ConsoleProgressCallback {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleProgressCallback{w: w, prefix: prefix, width: 40, interval: 100 * time.Millisecond}
}

// WithWidth sets the bar width in cells.
func (c *ConsoleProgressCallback) WithWidth(width int) *ConsoleProgressCallback {
	if width > 0 {
		c.width = width
	}
	return c
}

// WithUpdateInterval limits redraws; the final item is always drawn.
func (c *ConsoleProgressCallback) WithUpdateInterval(d time.Duration) *ConsoleProgressCallback {
	c.interval = d
	return c
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.start = time.Now()
	c.last = time.Time{}
	c.total = total
	c.draw(0, total, c.start)
}

func (c *ConsoleProgressCallback) OnProgress(done, total int) {
	now := time.Now()
	if done < total && now.Sub(c.last) < c.interval {
		return
	}
	c.draw(done, total, now)
}

func (c *ConsoleProgressCallback) OnComplete() {
	_, _ = fmt.Fprintf(c.w, "\n%sCompleted %d images in %v\n", c.prefix, c.total, time.Since(c.start).Round(time.Millisecond))
}

func (c *ConsoleProgressCallback) OnError(index int, err error) {
	_, _ = fmt.Fprintf(c.w, "\n%sError at item %d: %v\n", c.prefix, index, err)
}

func (c *ConsoleProgressCallback) draw(done, total int, now time.Time) {
	c.last = now
	if total <= 0 {
		return
	}
	filled := c.width * done / total
	line := fmt.Sprintf("\r%s[%s%s] %d/%d (%.1f%%)", c.prefix,
		strings.Repeat("#", filled), strings.Repeat("-", c.width-filled),
		done, total, float64(done)*100/float64(total))
	if elapsed := now.Sub(c.start); done > 0 && elapsed > 0 {
		rate := float64(done) / elapsed.Seconds()
		line += fmt.Sprintf(" %.1f img/s", rate)
		if done < total {
			eta := time.Duration(float64(total-done) / rate * float64(time.Second))
			line += fmt.Sprintf(" ETA %v", eta.Round(time.Second))
		}
	}
	_, _ = fmt.Fprint(c.w, line)
}

// LogProgressCallback logs every interval items through slog.
type LogProgressCallback struct {
	logger   *slog.Logger
	level    slog.Level
	interval int
	last     int
	start    time.Time
}

// NewLogProgressCallback logs at level on logger, or slog.Default when nil.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level, interval: 10}
}

// WithInterval logs every n items.
func (l *LogProgressCallback) WithInterval(n int) *LogProgressCallback {
	if n > 0 {
		l.interval = n
	}
	return l
}

func (l *LogProgressCallback) OnStart(total int) {
	l.start = time.Now()
	l.last = 0
	l.logger.Log(context.Background(), l.level, "batch started", "total", total)
}

func (l *LogProgressCallback) OnProgress(done, total int) {
	if done-l.last < l.interval && done != total {
		return
	}
	l.last = done
	l.logger.Log(context.Background(), l.level, "batch progress",
		"done", done,
		"total", total,
		"elapsed", time.Since(l.start).Round(time.Millisecond),
	)
}

func (l *LogProgressCallback) OnComplete() {
	l.logger.Log(context.Background(), l.level, "batch finished", "elapsed", time.Since(l.start).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnError(index int, err error) {
	l.logger.Error("batch item failed", "index", index, "error", err)
}

// MultiProgressCallback fans out to several callbacks in order.
type MultiProgressCallback []ProgressCallback

func (m MultiProgressCallback) OnStart(total int) {
	for _, cb := range m {
		cb.OnStart(total)
	}
}

func (m MultiProgressCallback) OnProgress(done, total int) {
	for _, cb := range m {
		cb.OnProgress(done, total)
	}
}

func (m MultiProgressCallback) OnComplete() {
	for _, cb := range m {
		cb.OnComplete()
	}
}

func (m MultiProgressCallback) OnError(index int, err error) {
	for _, cb := range m {
		cb.OnError(index, err)
	}
}

// lockedProgress serializes calls from concurrent workers.
type lockedProgress struct {
	mu sync.Mutex
	cb ProgressCallback
}

func (l *lockedProgress) start(total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cb.OnStart(total)
}

func (l *lockedProgress) progress(done, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cb.OnProgress(done, total)
}

func (l *lockedProgress) complete() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cb.OnComplete()
}

func (l *lockedProgress) fail(index int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cb.OnError(index, err)
}
