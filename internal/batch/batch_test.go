package batch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pipeline"
	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
	"github.com/TAAK61/qr-code-reader-sub001/internal/testutil"
	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeInputs creates a_board.png (300x200), b_board.png (120x80) and
// c_small.png (64x48).
func writeInputs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.SaveImage(t, dir, "a_board.png", testutil.Checkerboard(300, 200, 10))
	testutil.SaveImage(t, dir, "b_board.png", testutil.Checkerboard(120, 80, 8))
	testutil.SaveImage(t, dir, "c_small.png", testutil.Checkerboard(64, 48, 4))
	return dir
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Options.MaxDimension = 100
	cfg.MemoryLimit = "64MB"
	cfg.Workers = 2
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func TestProcessBatch(t *testing.T) {
	in := writeInputs(t)
	cfg := testConfig(t)
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	reg := prometheus.NewRegistry()
	cfg.Metrics = pipeline.NewMetrics(reg)

	res, err := ProcessBatch(context.Background(), []string{in}, cfg)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Workers)
	assert.Equal(t, 3, res.Processed())
	assert.Equal(t, 3, res.Schedule.Completed)
	assert.Equal(t, int64(3), res.Profile["items"])

	want := []struct {
		name string
		w, h int
	}{
		{"a_board", 100, 66},
		{"b_board", 100, 66},
		{"c_small", 64, 48},
	}
	require.Len(t, res.Items, len(want))
	for i, w := range want {
		it := res.Items[i]
		assert.Equal(t, filepath.Join(in, w.name+".png"), it.File)
		assert.Equal(t, StatusOK, it.Status)
		assert.Equal(t, w.w, it.Result.ProcessedWidth, w.name)
		assert.Equal(t, w.h, it.Result.ProcessedHeight, w.name)
		assert.Nil(t, it.Result.Buffer, "pixels are dropped once written")

		require.Equal(t, filepath.Join(cfg.OutputDir, w.name+"_prep.png"), it.Output)
		img, err := imaging.Open(it.Output)
		require.NoError(t, err)
		assert.Equal(t, w.w, img.Bounds().Dx())
		assert.Equal(t, w.h, img.Bounds().Dy())
	}

	expected := `
# HELP qrprep_items_processed_total Buffers passed through the pipeline
# TYPE qrprep_items_processed_total counter
qrprep_items_processed_total{status="ok"} 3
`
	assert.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "qrprep_items_processed_total"))
}

func TestProcessBatch_FailureMarksChunk(t *testing.T) {
	in := writeInputs(t)
	require.NoError(t, os.WriteFile(filepath.Join(in, "b_board.png"), []byte("not a png"), 0o600))
	cfg := testConfig(t)
	cfg.Workers = 1

	res, err := ProcessBatch(context.Background(), []string{in}, cfg)
	require.Error(t, err)
	require.NotNil(t, res)

	var chunkErr *pipeline.ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 1, chunkErr.Item)

	assert.Equal(t, 0, res.Processed())
	assert.Equal(t, StatusSkipped, res.Items[0].Status)
	assert.Equal(t, StatusFailed, res.Items[1].Status)
	assert.NotEmpty(t, res.Items[1].Error)
	assert.Equal(t, StatusSkipped, res.Items[2].Status)
}

func TestProcessBatch_WritesOutputsPerChunk(t *testing.T) {
	in := writeInputs(t)
	require.NoError(t, os.WriteFile(filepath.Join(in, "c_small.png"), []byte("not a png"), 0o600))
	cfg := testConfig(t)
	cfg.Workers = 1
	cfg.MemoryLimit = "1B"
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")

	res, err := ProcessBatch(context.Background(), []string{in}, cfg)
	require.Error(t, err)
	require.NotNil(t, res)

	var chunkErr *pipeline.ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 2, chunkErr.Chunk)
	assert.Equal(t, 1, res.Schedule.ChunkSize)

	for _, name := range []string{"a_board", "b_board"} {
		out := filepath.Join(cfg.OutputDir, name+"_prep.png")
		assert.FileExists(t, out)
	}
	for _, it := range res.Items[:2] {
		assert.Equal(t, StatusOK, it.Status)
		assert.NotEmpty(t, it.Output)
		assert.Nil(t, it.Result.Buffer)
	}
	assert.Equal(t, StatusFailed, res.Items[2].Status)
	assert.Empty(t, res.Items[2].Output)
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "c_small_prep.png"))
}

func TestProcessBatch_CancelledKeepsFirstChunk(t *testing.T) {
	in := writeInputs(t)
	cfg := testConfig(t)
	cfg.Workers = 1
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := ProcessBatch(ctx, []string{in}, cfg)
	require.ErrorIs(t, err, pixbuf.ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)

	assert.Equal(t, 2, res.Processed(), "the first chunk runs before cancellation is observed")
	assert.Equal(t, StatusSkipped, res.Items[2].Status)
}

func TestProcessBatch_Progress(t *testing.T) {
	in := writeInputs(t)
	cfg := testConfig(t)
	cfg.ShowProgress = true
	cfg.ProgressInterval = 0
	var sb strings.Builder
	cfg.ProgressWriter = &sb

	_, err := ProcessBatch(context.Background(), []string{in}, cfg)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "Processing: ")
	assert.Contains(t, sb.String(), "Completed 3 images")
}

func TestProcessBatch_NoImages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o600))

	_, err := ProcessBatch(context.Background(), []string{dir}, testConfig(t))
	require.ErrorIs(t, err, ErrNoImages)
}

func TestProcessBatch_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Format = "xml"
	_, err := ProcessBatch(context.Background(), []string{t.TempDir()}, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")

	cfg = testConfig(t)
	cfg.Options.ContrastFactor = 0
	_, err = ProcessBatch(context.Background(), []string{t.TempDir()}, cfg)
	require.ErrorIs(t, err, pixbuf.ErrInvalidOptions)

	cfg = testConfig(t)
	cfg.MemoryLimit = "plenty"
	_, err = ProcessBatch(context.Background(), []string{t.TempDir()}, cfg)
	require.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "scan_prep.png"), OutputPath(filepath.Join("in", "scan.jpeg"), "out", "_prep"))
	assert.Equal(t, filepath.Join("out", "noext.png"), OutputPath("noext", "out", ""))
}
