package preprocess

import "github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"

// Denoise applies a 3x3 median filter on the heap.
func Denoise(buf *pixbuf.PixelBuffer) (*pixbuf.PixelBuffer, error) {
	return DenoiseWith(buf, Allocators{})
}

// DenoiseWith applies a 3x3 median filter to every interior pixel, each
// channel on its own. Border rows and columns are copied from the source, so
// buffers narrower or shorter than 3 pixels come back as an exact copy.
// Palette buffers are filtered in RGB space and mapped back to the nearest
// palette index.
func DenoiseWith(buf *pixbuf.PixelBuffer, allocs Allocators) (*pixbuf.PixelBuffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	out, err := pixbuf.NewWithAllocator(allocs.output(), buf.Width, buf.Height, buf.Model)
	if err != nil {
		return nil, err
	}
	out.Palette = buf.Palette
	copy(out.Pix, buf.Pix)

	w, h := buf.Width, buf.Height
	if w < 3 || h < 3 {
		return out, nil
	}

	if buf.Model == pixbuf.Indexed {
		denoiseIndexed(buf, out)
		return out, nil
	}

	ch := buf.Channels()
	stride := buf.Stride()
	var win [9]uint8
	for y := 1; y < h-1; y++ {
		up := buf.Pix[(y-1)*stride : y*stride]
		mid := buf.Pix[y*stride : (y+1)*stride]
		down := buf.Pix[(y+1)*stride : (y+2)*stride]
		row := out.Pix[y*stride : (y+1)*stride]
		for x := 1; x < w-1; x++ {
			for c := range ch {
				l, m, r := (x-1)*ch+c, x*ch+c, (x+1)*ch+c
				win = [9]uint8{
					up[l], up[m], up[r],
					mid[l], mid[m], mid[r],
					down[l], down[m], down[r],
				}
				row[m] = median9(&win)
			}
		}
	}
	return out, nil
}

func denoiseIndexed(src, dst *pixbuf.PixelBuffer) {
	pm := newPaletteMapper(src)
	w, h := src.Width, src.Height
	var win [3][9]uint8
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			k := 0
			for dy := -1; dy <= 1; dy++ {
				off := (y+dy)*w + x
				for dx := -1; dx <= 1; dx++ {
					c := pm.color(src.Pix[off+dx])
					win[0][k], win[1][k], win[2][k] = c[0], c[1], c[2]
					k++
				}
			}
			dst.Pix[y*w+x] = pm.nearest([3]uint8{median9(&win[0]), median9(&win[1]), median9(&win[2])})
		}
	}
}

// median9 returns the 5th smallest of nine values. The compare-exchange
// network is partial: only p[4] is guaranteed in place afterwards.
func median9(p *[9]uint8) uint8 {
	sort2 := func(a, b int) {
		if p[a] > p[b] {
			p[a], p[b] = p[b], p[a]
		}
	}
	sort2(1, 2)
	sort2(4, 5)
	sort2(7, 8)
	sort2(0, 1)
	sort2(3, 4)
	sort2(6, 7)
	sort2(1, 2)
	sort2(4, 5)
	sort2(7, 8)
	sort2(0, 3)
	sort2(5, 8)
	sort2(4, 7)
	sort2(3, 6)
	sort2(1, 4)
	sort2(2, 5)
	sort2(4, 7)
	sort2(4, 2)
	sort2(6, 4)
	sort2(4, 2)
	return p[4]
}
