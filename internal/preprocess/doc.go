// Package preprocess implements the three raster stages applied before a
// barcode decoder sees an image: downscaling, 3x3 median noise reduction and
// contrast rescaling. Every stage reads its input and writes a freshly
// allocated output; inputs are never modified.
//
// Algorithm choices are closed enums selected by pure functions of the input
// (SelectResizeStrategy, SelectEnhancePath) so callers and tests can predict
// which implementation runs.
package preprocess

import "github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"

// Allocators routes stage output. Scratch receives intermediates that are
// dropped once the stage returns; Output receives the buffer handed back to
// the caller. Nil fields fall back to the heap.
type Allocators struct {
	Scratch pixbuf.Allocator
	Output  pixbuf.Allocator
}

func (a Allocators) scratch() pixbuf.Allocator {
	if a.Scratch == nil {
		return pixbuf.HeapAllocator{}
	}
	return a.Scratch
}

func (a Allocators) output() pixbuf.Allocator {
	if a.Output == nil {
		return pixbuf.HeapAllocator{}
	}
	return a.Output
}
