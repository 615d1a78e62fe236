// Package workerpool provides the bounded set of goroutines that batch
// processing fans out onto. A Pool is created once by its owner, passed to
// whoever needs parallelism and closed by the owner when it is done, so pool
// size and shutdown stay under the caller's control.
//
//	pool := workerpool.New(runtime.GOMAXPROCS(0))
//	defer pool.Close()
//	pool.Run(len(items), func(i int) { results[i] = process(items[i]) })
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a fixed set of persistent workers.
type Pool struct {
	size  int
	tasks chan task

	// mu orders task submission against Close; Run holds it shared.
	mu     sync.RWMutex
	closed bool
}

type task struct {
	fn   func()
	done *sync.WaitGroup
}

// New starts size workers. A size <= 0 uses GOMAXPROCS.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		size:  size,
		tasks: make(chan task, size),
	}
	for range size {
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	for t := range p.tasks {
		t.fn()
		t.done.Done()
	}
}

// NumWorkers returns the number of workers.
func (p *Pool) NumWorkers() int {
	return p.size
}

// Close stops the workers once queued work has drained. It is idempotent
// and safe to call while Run is in progress. Run on a closed pool executes
// on the calling goroutine.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.tasks)
}

// Run calls fn(i) for every i in [0, n) and returns when all calls have
// finished. Workers pull the next index atomically, so slow items do not
// hold back a statically assigned range. fn must not call Run on the same
// pool.
func (p *Pool) Run(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	workers := min(p.size, n)
	if workers == 1 {
		runInline(n, fn)
		return
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	drain := func() {
		for {
			i := int(next.Add(1)) - 1
			if i >= n {
				return
			}
			fn(i)
		}
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		runInline(n, fn)
		return
	}
	for range workers {
		p.tasks <- task{fn: drain, done: &wg}
	}
	p.mu.RUnlock()
	wg.Wait()
}

func runInline(n int, fn func(i int)) {
	for i := range n {
		fn(i)
	}
}
