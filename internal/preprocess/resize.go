package preprocess

import (
	"fmt"
	"image"
	"math"

	"github.com/TAAK61/qr-code-reader-sub001/internal/mempool"
	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
	"golang.org/x/image/draw"
)

// ResizeStrategy identifies how a buffer was downscaled.
type ResizeStrategy int

const (
	// ResizeNone means the buffer already fit and was returned unchanged.
	ResizeNone ResizeStrategy = iota
	// ResizeFast is a single bilinear pass straight to the target size.
	ResizeFast
	// ResizeMultiStep halves repeatedly before a final bilinear pass.
	ResizeMultiStep
)

func (s ResizeStrategy) String() string {
	switch s {
	case ResizeFast:
		return "fast"
	case ResizeMultiStep:
		return "multi_step"
	default:
		return "none"
	}
}

// TargetSize computes the dimensions that fit w x h inside a maxDimension
// square. The returned scale is >= 1 when no downscale is needed, in which
// case the target equals the input.
func TargetSize(w, h, maxDimension int) (tw, th int, scale float64, err error) {
	if maxDimension <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: max dimension %d", pixbuf.ErrInvalidDimensions, maxDimension)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: source %dx%d", pixbuf.ErrInvalidDimensions, w, h)
	}
	scale = math.Min(float64(maxDimension)/float64(w), float64(maxDimension)/float64(h))
	if scale >= 1 {
		return w, h, scale, nil
	}
	tw = max(1, int(math.Floor(float64(w)*scale)))
	th = max(1, int(math.Floor(float64(h)*scale)))
	return tw, th, scale, nil
}

// SelectResizeStrategy picks the multi-step path only for high quality
// requests whose reduction exceeds 2x along either axis.
func SelectResizeStrategy(w, h, tw, th int, highQuality bool) ResizeStrategy {
	if tw >= w && th >= h {
		return ResizeNone
	}
	if highQuality && (w > 2*tw || h > 2*th) {
		return ResizeMultiStep
	}
	return ResizeFast
}

// Resize scales buf so that neither side exceeds maxDimension, allocating
// everything on the heap. It never upscales: a buffer that already fits is
// returned as is.
func Resize(buf *pixbuf.PixelBuffer, maxDimension int, highQuality bool) (*pixbuf.PixelBuffer, error) {
	out, _, err := ResizeWith(buf, maxDimension, highQuality, Allocators{})
	return out, err
}

// ResizeWith is Resize with explicit allocators. Multi-step intermediates are
// taken from allocs.Scratch, the final buffer from allocs.Output.
func ResizeWith(buf *pixbuf.PixelBuffer, maxDimension int, highQuality bool, allocs Allocators) (*pixbuf.PixelBuffer, ResizeStrategy, error) {
	if err := buf.Validate(); err != nil {
		return nil, ResizeNone, err
	}
	tw, th, _, err := TargetSize(buf.Width, buf.Height, maxDimension)
	if err != nil {
		return nil, ResizeNone, err
	}

	strategy := SelectResizeStrategy(buf.Width, buf.Height, tw, th, highQuality)
	switch strategy {
	case ResizeNone:
		return buf, strategy, nil
	case ResizeFast:
		out, err := scaleFast(buf, tw, th, allocs.output())
		return out, strategy, err
	}

	cur := buf
	cw, ch := buf.Width, buf.Height
	for cw > 2*tw || ch > 2*th {
		nw := max(cw/2, tw)
		nh := max(ch/2, th)
		next, err := scaleFast(cur, nw, nh, allocs.scratch())
		if err != nil {
			return nil, strategy, err
		}
		cur, cw, ch = next, nw, nh
	}
	out, err := scaleFast(cur, tw, th, allocs.output())
	return out, strategy, err
}

// scaleFast performs one speed-biased resample: 4-tap bilinear without
// anti-aliasing for RGB and Gray, nearest neighbour for palette indices.
func scaleFast(src *pixbuf.PixelBuffer, tw, th int, alloc pixbuf.Allocator) (*pixbuf.PixelBuffer, error) {
	dst, err := pixbuf.NewWithAllocator(alloc, tw, th, src.Model)
	if err != nil {
		return nil, err
	}

	if src.Model == pixbuf.Indexed {
		dst.Palette = src.Palette
		scaleNearestIndexed(src, dst)
		return dst, nil
	}

	srcRect := image.Rect(0, 0, src.Width, src.Height)
	dstRect := image.Rect(0, 0, tw, th)
	dstPix := mempool.GetBytes(tw * th * 4)
	defer mempool.PutBytes(dstPix)
	dstImg := &image.RGBA{Pix: dstPix, Stride: 4 * tw, Rect: dstRect}

	switch src.Model {
	case pixbuf.Gray:
		srcImg := &image.Gray{Pix: src.Pix, Stride: src.Width, Rect: srcRect}
		draw.ApproxBiLinear.Scale(dstImg, dstRect, srcImg, srcRect, draw.Src, nil)
		for i := range tw * th {
			dst.Pix[i] = dstPix[4*i]
		}
	default:
		n := src.Len()
		srcPix := mempool.GetBytes(n * 4)
		defer mempool.PutBytes(srcPix)
		for i := range n {
			srcPix[4*i] = src.Pix[3*i]
			srcPix[4*i+1] = src.Pix[3*i+1]
			srcPix[4*i+2] = src.Pix[3*i+2]
			srcPix[4*i+3] = 0xff
		}
		srcImg := &image.RGBA{Pix: srcPix, Stride: 4 * src.Width, Rect: srcRect}
		draw.ApproxBiLinear.Scale(dstImg, dstRect, srcImg, srcRect, draw.Src, nil)
		for i := range tw * th {
			dst.Pix[3*i] = dstPix[4*i]
			dst.Pix[3*i+1] = dstPix[4*i+1]
			dst.Pix[3*i+2] = dstPix[4*i+2]
		}
	}
	return dst, nil
}

// scaleNearestIndexed samples the source index closest to each destination
// pixel centre; blending palette indices would produce unrelated colors.
func scaleNearestIndexed(src, dst *pixbuf.PixelBuffer) {
	sw, sh := src.Width, src.Height
	dw, dh := dst.Width, dst.Height
	for y := range dh {
		sy := min((2*y+1)*sh/(2*dh), sh-1)
		srow := src.Pix[sy*sw : (sy+1)*sw]
		drow := dst.Pix[y*dw : (y+1)*dw]
		for x := range dw {
			sx := min((2*x+1)*sw/(2*dw), sw-1)
			drow[x] = srow[sx]
		}
	}
}
