// Package pixbuf defines the owned raster buffer that flows through the
// preprocessing stages, together with the error taxonomy shared by them.
package pixbuf

import (
	"fmt"
	"image/color"
)

// ColorModel tags how the samples in a PixelBuffer are interpreted.
type ColorModel int

const (
	// RGB stores three 8-bit channels per sample (R, G, B).
	RGB ColorModel = iota
	// Indexed stores one palette index per sample.
	Indexed
	// Gray stores one 8-bit luminance channel per sample.
	Gray
)

func (m ColorModel) String() string {
	switch m {
	case RGB:
		return "rgb"
	case Indexed:
		return "indexed"
	case Gray:
		return "gray"
	default:
		return fmt.Sprintf("ColorModel(%d)", int(m))
	}
}

// Channels returns the number of bytes per sample for the model.
func (m ColorModel) Channels() int {
	if m == RGB {
		return 3
	}
	return 1
}

// PixelBuffer is a dimensioned grid of samples stored row-major in Pix.
// len(Pix) is always Width*Height*Model.Channels() for a valid buffer.
type PixelBuffer struct {
	Width   int
	Height  int
	Model   ColorModel
	Pix     []uint8
	Palette color.Palette // Indexed only
}

// Info is the cheap metadata of a buffer or of an encoded image that has not
// been decoded yet.
type Info struct {
	Width          int        `json:"width"`
	Height         int        `json:"height"`
	Model          ColorModel `json:"-"`
	Format         string     `json:"format,omitempty"`
	EstimatedBytes int64      `json:"estimated_bytes"`
}

// New allocates a zeroed buffer on the heap.
func New(width, height int, model ColorModel) (*PixelBuffer, error) {
	return NewWithAllocator(HeapAllocator{}, width, height, model)
}

// NewWithAllocator allocates the sample storage from alloc. The contents of
// the returned Pix are unspecified when alloc recycles memory.
func NewWithAllocator(alloc Allocator, width, height int, model ColorModel) (*PixelBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if model < RGB || model > Gray {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedColorModel, model)
	}
	if alloc == nil {
		alloc = HeapAllocator{}
	}
	pix, err := alloc.Alloc(width * height * model.Channels())
	if err != nil {
		return nil, err
	}
	return &PixelBuffer{Width: width, Height: height, Model: model, Pix: pix}, nil
}

// Channels returns the number of bytes per sample.
func (b *PixelBuffer) Channels() int { return b.Model.Channels() }

// Len returns the number of samples (Width*Height).
func (b *PixelBuffer) Len() int { return b.Width * b.Height }

// Stride returns the number of bytes per row.
func (b *PixelBuffer) Stride() int { return b.Width * b.Channels() }

// SizeBytes returns the size of the sample storage.
func (b *PixelBuffer) SizeBytes() int64 { return int64(len(b.Pix)) }

// Validate checks the dimension and length invariants.
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidDimensions)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, b.Width, b.Height)
	}
	if b.Model < RGB || b.Model > Gray {
		return fmt.Errorf("%w: %v", ErrUnsupportedColorModel, b.Model)
	}
	if want := b.Width * b.Height * b.Channels(); len(b.Pix) != want {
		return fmt.Errorf("%w: %dx%d %s buffer holds %d bytes, want %d",
			ErrInvalidDimensions, b.Width, b.Height, b.Model, len(b.Pix), want)
	}
	if b.Model == Indexed && len(b.Palette) == 0 {
		return fmt.Errorf("%w: indexed buffer without palette", ErrUnsupportedColorModel)
	}
	return nil
}

// Info returns the buffer metadata.
func (b *PixelBuffer) Info() (Info, error) {
	if err := b.Validate(); err != nil {
		return Info{}, err
	}
	return Info{
		Width:          b.Width,
		Height:         b.Height,
		Model:          b.Model,
		EstimatedBytes: b.SizeBytes(),
	}, nil
}

// Clone returns a deep copy allocated from alloc.
func (b *PixelBuffer) Clone(alloc Allocator) (*PixelBuffer, error) {
	out, err := NewWithAllocator(alloc, b.Width, b.Height, b.Model)
	if err != nil {
		return nil, err
	}
	copy(out.Pix, b.Pix)
	out.Palette = b.Palette
	return out, nil
}

// Offset returns the index of the first byte of sample (x, y).
func (b *PixelBuffer) Offset(x, y int) int {
	return (y*b.Width + x) * b.Channels()
}

// Sample returns the channel bytes of sample (x, y). The returned slice aliases Pix.
func (b *PixelBuffer) Sample(x, y int) []uint8 {
	i := b.Offset(x, y)
	return b.Pix[i : i+b.Channels() : i+b.Channels()]
}

// SetSample overwrites the channels of sample (x, y).
func (b *PixelBuffer) SetSample(x, y int, v ...uint8) {
	copy(b.Sample(x, y), v)
}

// Equal reports whether two buffers have identical dimensions, model and samples.
func (b *PixelBuffer) Equal(o *PixelBuffer) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.Width != o.Width || b.Height != o.Height || b.Model != o.Model || len(b.Pix) != len(o.Pix) {
		return false
	}
	for i := range b.Pix {
		if b.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}
