package pixbuf

// Allocator hands out sample storage for new buffers.
type Allocator interface {
	Alloc(n int) ([]uint8, error)
}

// HeapAllocator allocates fresh, zeroed slices with make.
type HeapAllocator struct{}

// Alloc implements Allocator.
func (HeapAllocator) Alloc(n int) ([]uint8, error) {
	if n < 0 {
		return nil, ErrInvalidDimensions
	}
	return make([]uint8, n), nil
}

// CountingAllocator wraps another allocator and records how many bytes it handed out.
// It is not safe for concurrent use.
type CountingAllocator struct {
	Next  Allocator
	Bytes int64
}

// Alloc implements Allocator.
func (c *CountingAllocator) Alloc(n int) ([]uint8, error) {
	next := c.Next
	if next == nil {
		next = HeapAllocator{}
	}
	buf, err := next.Alloc(n)
	if err != nil {
		return nil, err
	}
	c.Bytes += int64(n)
	return buf, nil
}
