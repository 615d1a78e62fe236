package preprocess

import (
	"errors"
	"fmt"
	"math"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
)

// EnhancePath identifies the contrast implementation that produced a buffer.
type EnhancePath int

const (
	// EnhanceNone means no contrast stage ran.
	EnhanceNone EnhancePath = iota
	// EnhanceBulk applies a precomputed 256-entry table over the whole sample slice.
	EnhanceBulk
	// EnhanceFallback evaluates the formula per sample in row blocks and
	// understands palette images.
	EnhanceFallback
)

func (p EnhancePath) String() string {
	switch p {
	case EnhanceBulk:
		return "bulk"
	case EnhanceFallback:
		return "fallback"
	default:
		return "none"
	}
}

const (
	bulkMinFactor = 0.1
	bulkMaxFactor = 5.0

	// fallbackBlockRows bounds the working set of one fallback iteration.
	fallbackBlockRows = 64
)

// SelectEnhancePath returns EnhanceBulk for non palette buffers when factor
// lies strictly inside (0.1, 5.0), and EnhanceFallback otherwise.
func SelectEnhancePath(model pixbuf.ColorModel, factor float64) EnhancePath {
	if model != pixbuf.Indexed && factor > bulkMinFactor && factor < bulkMaxFactor {
		return EnhanceBulk
	}
	return EnhanceFallback
}

// rescale computes clamp(0, 255, (v-128)*factor+128) rounded half away from zero.
func rescale(v uint8, factor float64) uint8 {
	x := (float64(v)-128)*factor + 128
	if x <= 0 {
		return 0
	}
	if x >= 255 {
		return 255
	}
	return uint8(math.Round(x))
}

func validFactor(factor float64) error {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return fmt.Errorf("%w: %v", pixbuf.ErrInvalidFactor, factor)
	}
	return nil
}

// Enhance rescales intensities around 128 by factor on the heap.
func Enhance(buf *pixbuf.PixelBuffer, factor float64) (*pixbuf.PixelBuffer, error) {
	out, _, err := EnhanceWith(buf, factor, Allocators{})
	return out, err
}

// EnhanceWith runs the path chosen by SelectEnhancePath. A bulk path
// rejection is recovered by running the fallback path; the returned path
// reports which one produced the output.
func EnhanceWith(buf *pixbuf.PixelBuffer, factor float64, allocs Allocators) (*pixbuf.PixelBuffer, EnhancePath, error) {
	if err := validFactor(factor); err != nil {
		return nil, EnhanceFallback, err
	}
	if err := buf.Validate(); err != nil {
		return nil, EnhanceFallback, err
	}

	path := SelectEnhancePath(buf.Model, factor)
	if path == EnhanceBulk {
		out, err := enhanceBulk(buf, factor, allocs.output())
		if err == nil {
			return out, EnhanceBulk, nil
		}
		if !errors.Is(err, pixbuf.ErrUnsupportedColorModel) && !errors.Is(err, pixbuf.ErrInvalidFactor) {
			return nil, EnhanceBulk, err
		}
	}
	out, err := enhanceFallback(buf, factor, allocs.output())
	return out, EnhanceFallback, err
}

// EnhanceWithPath forces a specific path. Forcing EnhanceBulk on a buffer the
// bulk path cannot handle returns its rejection instead of falling back.
func EnhanceWithPath(buf *pixbuf.PixelBuffer, factor float64, path EnhancePath, allocs Allocators) (*pixbuf.PixelBuffer, error) {
	if err := validFactor(factor); err != nil {
		return nil, err
	}
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	switch path {
	case EnhanceBulk:
		return enhanceBulk(buf, factor, allocs.output())
	case EnhanceFallback:
		return enhanceFallback(buf, factor, allocs.output())
	default:
		return nil, fmt.Errorf("%w: no contrast path %v", pixbuf.ErrInvalidOptions, path)
	}
}

func enhanceBulk(buf *pixbuf.PixelBuffer, factor float64, alloc pixbuf.Allocator) (*pixbuf.PixelBuffer, error) {
	if buf.Model == pixbuf.Indexed {
		return nil, fmt.Errorf("%w: bulk rescale on %v buffer", pixbuf.ErrUnsupportedColorModel, buf.Model)
	}
	if factor <= bulkMinFactor || factor >= bulkMaxFactor {
		return nil, fmt.Errorf("%w: bulk rescale factor %v outside (%v, %v)", pixbuf.ErrInvalidFactor, factor, bulkMinFactor, bulkMaxFactor)
	}

	var lut [256]uint8
	for i := range lut {
		lut[i] = rescale(uint8(i), factor)
	}

	out, err := pixbuf.NewWithAllocator(alloc, buf.Width, buf.Height, buf.Model)
	if err != nil {
		return nil, err
	}
	dst := out.Pix[:len(buf.Pix)]
	for i, v := range buf.Pix {
		dst[i] = lut[v]
	}
	return out, nil
}

func enhanceFallback(buf *pixbuf.PixelBuffer, factor float64, alloc pixbuf.Allocator) (*pixbuf.PixelBuffer, error) {
	out, err := pixbuf.NewWithAllocator(alloc, buf.Width, buf.Height, buf.Model)
	if err != nil {
		return nil, err
	}

	if buf.Model == pixbuf.Indexed {
		out.Palette = buf.Palette
		pm := newPaletteMapper(buf)
		// Each palette entry maps to the same index wherever it occurs.
		var remap [256]uint8
		for i := range remap {
			c := pm.color(uint8(i))
			remap[i] = pm.nearest([3]uint8{rescale(c[0], factor), rescale(c[1], factor), rescale(c[2], factor)})
		}
		for i, v := range buf.Pix {
			out.Pix[i] = remap[v]
		}
		return out, nil
	}

	stride := buf.Stride()
	for y0 := 0; y0 < buf.Height; y0 += fallbackBlockRows {
		y1 := min(y0+fallbackBlockRows, buf.Height)
		src := buf.Pix[y0*stride : y1*stride]
		dst := out.Pix[y0*stride : y1*stride]
		for i, v := range src {
			dst[i] = rescale(v, factor)
		}
	}
	return out, nil
}
