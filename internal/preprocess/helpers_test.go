package preprocess

import (
	"image/color"
	"testing"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
	"github.com/stretchr/testify/require"
)

// noiseBuffer fills a buffer with deterministic pseudo-random samples.
func noiseBuffer(t *testing.T, w, h int, model pixbuf.ColorModel, seed uint32) *pixbuf.PixelBuffer {
	t.Helper()
	buf, err := pixbuf.New(w, h, model)
	require.NoError(t, err)
	s := seed*2654435761 + 1
	for i := range buf.Pix {
		s = s*1664525 + 1013904223
		buf.Pix[i] = uint8(s >> 24)
	}
	if model == pixbuf.Indexed {
		buf.Palette = grayPalette(16)
		for i := range buf.Pix {
			buf.Pix[i] %= 16
		}
	}
	return buf
}

func uniformBuffer(t *testing.T, w, h int, model pixbuf.ColorModel, v uint8) *pixbuf.PixelBuffer {
	t.Helper()
	buf, err := pixbuf.New(w, h, model)
	require.NoError(t, err)
	for i := range buf.Pix {
		buf.Pix[i] = v
	}
	return buf
}

func grayPalette(n int) color.Palette {
	p := make(color.Palette, n)
	for i := range p {
		v := uint8(i * 255 / (n - 1))
		p[i] = color.RGBA{R: v, G: v, B: v, A: 0xff}
	}
	return p
}
