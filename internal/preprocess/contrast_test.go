package preprocess

import (
	"image/color"
	"math"
	"testing"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectEnhancePath(t *testing.T) {
	tests := []struct {
		model  pixbuf.ColorModel
		factor float64
		want   EnhancePath
	}{
		{pixbuf.RGB, 1.5, EnhanceBulk},
		{pixbuf.Gray, 4.99, EnhanceBulk},
		{pixbuf.Gray, 5.0, EnhanceFallback},
		{pixbuf.RGB, 0.1, EnhanceFallback},
		{pixbuf.RGB, 8, EnhanceFallback},
		{pixbuf.Indexed, 1.5, EnhanceFallback},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SelectEnhancePath(tt.model, tt.factor), "%v factor %v", tt.model, tt.factor)
	}
}

func TestRescale(t *testing.T) {
	assert.Equal(t, uint8(128), rescale(128, 7))
	assert.Equal(t, uint8(0), rescale(0, 2))
	assert.Equal(t, uint8(255), rescale(200, 2))
	assert.Equal(t, uint8(188), rescale(168, 1.5))
	// (100-128)*0.5+128 = 114
	assert.Equal(t, uint8(114), rescale(100, 0.5))
	// 127.5 rounds up
	assert.Equal(t, uint8(128), rescale(127, 0.5))
}

func TestEnhance_InvalidFactor(t *testing.T) {
	buf := noiseBuffer(t, 4, 4, pixbuf.Gray, 1)
	for _, f := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := Enhance(buf, f)
		require.ErrorIs(t, err, pixbuf.ErrInvalidFactor)
	}
}

func TestEnhance_DoesNotModifyInput(t *testing.T) {
	buf := noiseBuffer(t, 32, 32, pixbuf.RGB, 5)
	orig, err := buf.Clone(nil)
	require.NoError(t, err)
	out, err := Enhance(buf, 2)
	require.NoError(t, err)
	assert.True(t, buf.Equal(orig))
	assert.NotSame(t, buf, out)
}

func TestEnhanceWith_ReportsPath(t *testing.T) {
	buf := noiseBuffer(t, 16, 16, pixbuf.RGB, 2)
	_, path, err := EnhanceWith(buf, 1.5, Allocators{})
	require.NoError(t, err)
	assert.Equal(t, EnhanceBulk, path)

	_, path, err = EnhanceWith(buf, 7, Allocators{})
	require.NoError(t, err)
	assert.Equal(t, EnhanceFallback, path)
}

func TestEnhanceWithPath_BulkRejectsIndexed(t *testing.T) {
	buf := noiseBuffer(t, 8, 8, pixbuf.Indexed, 2)
	_, err := EnhanceWithPath(buf, 1.5, EnhanceBulk, Allocators{})
	require.ErrorIs(t, err, pixbuf.ErrUnsupportedColorModel)

	out, path, err := EnhanceWith(buf, 1.5, Allocators{})
	require.NoError(t, err)
	assert.Equal(t, EnhanceFallback, path)
	assert.Equal(t, buf.Palette, out.Palette)
}

func TestEnhancePath_String(t *testing.T) {
	assert.Equal(t, "none", EnhanceNone.String())
	assert.Equal(t, "bulk", EnhanceBulk.String())
	assert.Equal(t, "fallback", EnhanceFallback.String())

	var zero EnhancePath
	assert.Equal(t, EnhanceNone, zero)

	_, err := EnhanceWithPath(noiseBuffer(t, 4, 4, pixbuf.Gray, 1), 1.5, EnhanceNone, Allocators{})
	require.ErrorIs(t, err, pixbuf.ErrInvalidOptions)
}

func TestEnhance_IndexedMapsThroughPalette(t *testing.T) {
	buf, err := pixbuf.New(3, 1, pixbuf.Indexed)
	require.NoError(t, err)
	buf.Palette = color.Palette{
		color.RGBA{0, 0, 0, 255},
		color.RGBA{100, 100, 100, 255},
		color.RGBA{140, 140, 140, 255},
		color.RGBA{255, 255, 255, 255},
	}
	copy(buf.Pix, []uint8{1, 2, 3})

	out, err := Enhance(buf, 10)
	require.NoError(t, err)
	// 100 -> 0 and 140 -> 248, nearest entries are black and white.
	assert.Equal(t, []uint8{0, 3, 3}, out.Pix)
}

func TestEnhance_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("factor 1.0 is identity", prop.ForAll(
		func(w, h int, seed uint32, gray bool) bool {
			model := pixbuf.RGB
			if gray {
				model = pixbuf.Gray
			}
			buf := noiseBuffer(t, w, h, model, seed)
			out, err := Enhance(buf, 1.0)
			return err == nil && out.Equal(buf)
		},
		gen.IntRange(1, 80),
		gen.IntRange(1, 150),
		gen.UInt32(),
		gen.Bool(),
	))

	properties.Property("bulk and fallback paths agree", prop.ForAll(
		func(w, h int, seed uint32, factor float64) bool {
			if factor <= bulkMinFactor || factor >= bulkMaxFactor {
				return true
			}
			buf := noiseBuffer(t, w, h, pixbuf.RGB, seed)
			bulk, err := EnhanceWithPath(buf, factor, EnhanceBulk, Allocators{})
			if err != nil {
				return false
			}
			slow, err := EnhanceWithPath(buf, factor, EnhanceFallback, Allocators{})
			if err != nil {
				return false
			}
			return bulk.Equal(slow)
		},
		gen.IntRange(1, 80),
		gen.IntRange(1, 150),
		gen.UInt32(),
		gen.Float64Range(0.1, 5.0),
	))

	properties.TestingRun(t)
}
