package preprocess

import (
	"math"
	"testing"

	"github.com/TAAK61/qr-code-reader-sub001/internal/mempool"
	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetSize(t *testing.T) {
	tests := []struct {
		name       string
		w, h, max  int
		wantW      int
		wantH      int
		wantShrink bool
	}{
		{"fits", 800, 600, 1024, 800, 600, false},
		{"exact", 1024, 512, 1024, 1024, 512, false},
		{"landscape", 4000, 3000, 2048, 2048, 1536, true},
		{"portrait", 1000, 3000, 300, 100, 300, true},
		{"thin clamps to one", 10000, 2, 100, 100, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tw, th, scale, err := TargetSize(tt.w, tt.h, tt.max)
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, tw)
			assert.Equal(t, tt.wantH, th)
			assert.Equal(t, tt.wantShrink, scale < 1)
		})
	}
}

func TestTargetSize_InvalidMaxDimension(t *testing.T) {
	for _, m := range []int{0, -1} {
		_, _, _, err := TargetSize(100, 100, m)
		require.ErrorIs(t, err, pixbuf.ErrInvalidDimensions)
	}
}

func TestSelectResizeStrategy(t *testing.T) {
	assert.Equal(t, ResizeNone, SelectResizeStrategy(100, 100, 100, 100, true))
	assert.Equal(t, ResizeFast, SelectResizeStrategy(4000, 3000, 2048, 1536, true))
	assert.Equal(t, ResizeMultiStep, SelectResizeStrategy(5000, 100, 1000, 20, true))
	assert.Equal(t, ResizeFast, SelectResizeStrategy(5000, 100, 1000, 20, false))
	assert.Equal(t, ResizeMultiStep, SelectResizeStrategy(100, 5000, 20, 1000, true))
	assert.Equal(t, "multi_step", ResizeMultiStep.String())
}

func TestResize_ReturnsInputWhenItFits(t *testing.T) {
	buf := noiseBuffer(t, 64, 48, pixbuf.RGB, 1)
	out, strategy, err := ResizeWith(buf, 64, true, Allocators{})
	require.NoError(t, err)
	assert.Equal(t, ResizeNone, strategy)
	assert.Same(t, buf, out)
}

func TestResize_Models(t *testing.T) {
	for _, model := range []pixbuf.ColorModel{pixbuf.RGB, pixbuf.Gray, pixbuf.Indexed} {
		t.Run(model.String(), func(t *testing.T) {
			buf := noiseBuffer(t, 300, 200, model, 7)
			out, err := Resize(buf, 150, false)
			require.NoError(t, err)
			assert.Equal(t, 150, out.Width)
			assert.Equal(t, 100, out.Height)
			assert.Equal(t, model, out.Model)
			require.NoError(t, out.Validate())
		})
	}
}

func TestResize_UniformStaysUniform(t *testing.T) {
	buf := uniformBuffer(t, 500, 400, pixbuf.Gray, 200)
	out, err := Resize(buf, 100, true)
	require.NoError(t, err)
	for i, v := range out.Pix {
		if v < 199 || v > 201 {
			t.Fatalf("sample %d = %d, want about 200", i, v)
		}
	}
}

func TestResize_IndexedKeepsPaletteIndices(t *testing.T) {
	buf := noiseBuffer(t, 64, 64, pixbuf.Indexed, 3)
	out, err := Resize(buf, 16, true)
	require.NoError(t, err)
	assert.Equal(t, buf.Palette, out.Palette)
	for _, v := range out.Pix {
		assert.Less(t, int(v), 16)
	}
}

func TestResizeWith_MultiStepUsesScratch(t *testing.T) {
	buf := noiseBuffer(t, 5000, 100, pixbuf.Gray, 9)
	arena := mempool.NewArena(0)
	defer arena.Release()
	output := &pixbuf.CountingAllocator{}

	out, strategy, err := ResizeWith(buf, 1000, true, Allocators{Scratch: arena, Output: output})
	require.NoError(t, err)
	assert.Equal(t, ResizeMultiStep, strategy)
	assert.Equal(t, 1000, out.Width)
	assert.Equal(t, 20, out.Height)
	// 2500x50 then 1250x25 land in scratch, only the result is counted.
	assert.Equal(t, int64(1000*20), output.Bytes)
	assert.Equal(t, int64(2500*50+1250*25), arena.Stats().BytesInUse)
}

func TestResize_EndToEndDimensions(t *testing.T) {
	buf := uniformBuffer(t, 4000, 3000, pixbuf.RGB, 90)
	out, err := Resize(buf, 2048, true)
	require.NoError(t, err)
	assert.LessOrEqual(t, max(out.Width, out.Height), 2048)
	assert.InDelta(t, float64(out.Width)*3/4, float64(out.Height), 1)
}

func TestResize_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("never upscales", prop.ForAll(
		func(w, h, maxDim int) bool {
			if max(w, h) > maxDim {
				return true
			}
			buf := noiseBuffer(t, w, h, pixbuf.RGB, uint32(w*h))
			out, err := Resize(buf, maxDim, true)
			return err == nil && out.Equal(buf)
		},
		gen.IntRange(1, 64),
		gen.IntRange(1, 64),
		gen.IntRange(1, 96),
	))

	properties.Property("fits within max and keeps aspect within 1px", prop.ForAll(
		func(w, h, maxDim int, hq bool) bool {
			buf := noiseBuffer(t, w, h, pixbuf.Gray, uint32(w+h))
			out, err := Resize(buf, maxDim, hq)
			if err != nil {
				return false
			}
			if max(w, h) <= maxDim {
				return out.Width == w && out.Height == h
			}
			if max(out.Width, out.Height) > maxDim {
				return false
			}
			scale := math.Min(float64(maxDim)/float64(w), float64(maxDim)/float64(h))
			return math.Abs(float64(w)*scale-float64(out.Width)) < 1 &&
				math.Abs(float64(h)*scale-float64(out.Height)) < 1
		},
		gen.IntRange(1, 400),
		gen.IntRange(1, 400),
		gen.IntRange(8, 128),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
