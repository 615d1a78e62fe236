package mempool

import (
	"fmt"
	"sync"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
)

// DefaultSlabSize is the minimum size of the slabs an Arena carves allocations from.
const DefaultSlabSize = 4 << 20

// Arena is a bump allocator for intermediate buffers. Allocations are never
// freed individually; Reset reclaims all of them at once and keeps the slabs for
// reuse. Arena is safe for concurrent use.
type Arena struct {
	mu       sync.Mutex
	limit    int64 // 0 = unlimited
	slabSize int
	slabs    [][]byte
	cur      int // index of the slab being carved
	off      int // offset into slabs[cur]
	used     int64
	stats    ArenaStats
}

// ArenaStats summarizes arena usage.
type ArenaStats struct {
	Allocations  int64 `json:"allocations"`
	BytesInUse   int64 `json:"bytes_in_use"`
	PeakBytes    int64 `json:"peak_bytes"`
	ReservedSlab int64 `json:"reserved_bytes"`
	Resets       int64 `json:"resets"`
	Failures     int64 `json:"failures"`
}

// NewArena creates an arena that refuses allocations once limit bytes are in use.
// A limit of 0 disables the check.
func NewArena(limit int64) *Arena {
	return &Arena{limit: limit, slabSize: DefaultSlabSize}
}

// Alloc implements pixbuf.Allocator. The returned memory is not zeroed.
func (a *Arena) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative allocation %d", pixbuf.ErrInvalidDimensions, n)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.limit > 0 && a.used+int64(n) > a.limit {
		a.stats.Failures++
		return nil, fmt.Errorf("%w: arena needs %d bytes, %d of %d in use",
			pixbuf.ErrOutOfMemory, n, a.used, a.limit)
	}

	for a.cur < len(a.slabs) {
		slab := a.slabs[a.cur]
		if len(slab)-a.off >= n {
			buf := slab[a.off : a.off+n : a.off+n]
			a.off += n
			a.account(n)
			return buf, nil
		}
		a.cur++
		a.off = 0
	}

	size := max(a.slabSize, n)
	slab := make([]byte, size)
	a.slabs = append(a.slabs, slab)
	a.cur = len(a.slabs) - 1
	a.off = n
	a.stats.ReservedSlab += int64(size)
	a.account(n)
	return slab[:n:n], nil
}

func (a *Arena) account(n int) {
	a.used += int64(n)
	a.stats.Allocations++
	a.stats.BytesInUse = a.used
	if a.used > a.stats.PeakBytes {
		a.stats.PeakBytes = a.used
	}
}

// Reset releases every allocation in bulk. Slices handed out before Reset must
// no longer be used.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cur = 0
	a.off = 0
	a.used = 0
	a.stats.BytesInUse = 0
	a.stats.Resets++
}

// Release drops the slabs so the memory can be collected.
func (a *Arena) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slabs = nil
	a.cur, a.off, a.used = 0, 0, 0
	a.stats.BytesInUse = 0
	a.stats.ReservedSlab = 0
}

// InUse returns the number of bytes handed out since the last Reset.
func (a *Arena) InUse() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Stats returns a copy of the usage statistics.
func (a *Arena) Stats() ArenaStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
