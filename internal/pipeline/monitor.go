package pipeline

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// MemStats summarizes runtime memory usage.
type MemStats struct {
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	Goroutines      int    `json:"goroutines"`
}

// GetMemStats captures current memory statistics.
func GetMemStats() MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemStats{
		HeapAllocBytes:  m.HeapAlloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
		Goroutines:      runtime.NumGoroutine(),
	}
}

// MemoryMonitor samples the heap on an interval and keeps the peak. The
// batch command uses it to report peak heap next to the arena statistics.
type MemoryMonitor struct {
	interval time.Duration

	mu      sync.Mutex
	current uint64
	peak    uint64
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMemoryMonitor creates a stopped monitor. Non-positive intervals
// default to 100ms.
func NewMemoryMonitor(interval time.Duration) *MemoryMonitor {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &MemoryMonitor{interval: interval}
}

// Start begins sampling until Stop or ctx is done. Calling Start twice is a no-op.
func (mm *MemoryMonitor) Start(ctx context.Context) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.cancel != nil {
		return
	}
	ctx, mm.cancel = context.WithCancel(ctx)
	mm.done = make(chan struct{})
	mm.sampleLocked()
	go mm.loop(ctx, mm.done)
}

// Stop halts sampling and takes one final sample.
func (mm *MemoryMonitor) Stop() {
	mm.mu.Lock()
	cancel, done := mm.cancel, mm.done
	mm.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	mm.mu.Lock()
	mm.sampleLocked()
	mm.cancel = nil
	mm.mu.Unlock()
}

// Current returns the last sampled heap size.
func (mm *MemoryMonitor) Current() uint64 {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.current
}

// Peak returns the largest sampled heap size.
func (mm *MemoryMonitor) Peak() uint64 {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.peak
}

func (mm *MemoryMonitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(mm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			mm.mu.Lock()
			mm.sampleLocked()
			mm.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

func (mm *MemoryMonitor) sampleLocked() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mm.current = m.HeapAlloc
	mm.peak = max(mm.peak, m.HeapAlloc)
}
