// Package testutil holds image fixtures shared by package tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common test image sizes.
	SmallSize = ImageSize{64, 48}
	PhotoSize = ImageSize{4000, 3000}
)

// Checkerboard draws black and white cells of cell pixels, roughly the
// contrast profile of a printed code.
func Checkerboard(w, h, cell int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			c := color.RGBA{255, 255, 255, 255}
			if (x/cell+y/cell)%2 == 0 {
				c = color.RGBA{0, 0, 0, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// LabeledImage renders text in black on a white canvas.
func LabeledImage(text string, w, h int) *image.RGBA {
	img := imaging.New(w, h, color.White)
	rgba := &image.RGBA{Pix: img.Pix, Stride: img.Stride, Rect: img.Rect}
	d := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(4, h/2),
	}
	d.DrawString(text)
	return rgba
}

// NoisyBuffer returns a deterministic pseudo-random buffer. Indexed buffers
// get a 16 entry gray palette.
func NoisyBuffer(t *testing.T, w, h int, model pixbuf.ColorModel, seed uint32) *pixbuf.PixelBuffer {
	t.Helper()
	buf, err := pixbuf.New(w, h, model)
	require.NoError(t, err)
	s := seed*2654435761 + 1
	for i := range buf.Pix {
		s = s*1664525 + 1013904223
		buf.Pix[i] = uint8(s >> 24)
	}
	if model == pixbuf.Indexed {
		buf.Palette = make(color.Palette, 16)
		for i := range buf.Palette {
			v := uint8(i * 17)
			buf.Palette[i] = color.RGBA{v, v, v, 255}
		}
		for i := range buf.Pix {
			buf.Pix[i] %= 16
		}
	}
	return buf
}

// EncodePNG encodes img and fails the test on error.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// SaveImage writes img to dir/name, picking the format from the extension.
func SaveImage(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, imaging.Save(img, path))
	return path
}

// CompareImages reports whether two images share bounds and their mean
// per-channel difference, normalized to [0,1], is within tolerance.
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	b := img1.Bounds()
	if b != img2.Bounds() {
		return false
	}
	var total float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r1, g1, b1, _ := img1.At(x, y).RGBA()
			r2, g2, b2, _ := img2.At(x, y).RGBA()
			total += absDiff(r1, r2) + absDiff(g1, g2) + absDiff(b1, b2)
		}
	}
	n := float64(b.Dx()*b.Dy()) * 3 * 65535
	return n == 0 || total/n <= tolerance
}

func absDiff(a, b uint32) float64 {
	if a > b {
		return float64(a - b)
	}
	return float64(b - a)
}
