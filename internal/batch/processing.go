package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TAAK61/qr-code-reader-sub001/internal/lazyimg"
	"github.com/TAAK61/qr-code-reader-sub001/internal/pipeline"
	"github.com/disintegration/imaging"
)

// openSources wraps every file in an unloaded handle. Only a stat happens
// here; the scheduler reads headers while planning and pixels per chunk.
func openSources(files []string) ([]pipeline.Source, error) {
	srcs := make([]pipeline.Source, len(files))
	for i, f := range files {
		h, err := lazyimg.Open(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", f, err)
		}
		srcs[i] = h
	}
	return srcs, nil
}

// OutputPath maps photos/a.jpg to dir/a<suffix>.png.
func OutputPath(file, dir, suffix string) string {
	base := filepath.Base(file)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+suffix+".png")
}

// outputSink writes each finished result as PNG when dir is set, then drops
// its pixels so a batch holds at most one chunk of buffers.
type outputSink struct {
	files   []string
	dir     string
	suffix  string
	outputs []string
}

func newOutputSink(files []string, dir, suffix string) (*outputSink, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return &outputSink{files: files, dir: dir, suffix: suffix, outputs: make([]string, len(files))}, nil
}

func (o *outputSink) write(i int, r *pipeline.Result) error {
	defer func() { r.Buffer = nil }()
	if o.dir == "" {
		return nil
	}
	img, err := r.Buffer.ToImage()
	if err != nil {
		return fmt.Errorf("failed to convert %s: %w", o.files[i], err)
	}
	out := OutputPath(o.files[i], o.dir, o.suffix)
	if err := imaging.Save(img, out); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	o.outputs[i] = out
	return nil
}

// annotate records written paths on the items that finished.
func (o *outputSink) annotate(res *Result) {
	for i := range res.Items {
		if res.Items[i].Status == StatusOK {
			res.Items[i].Output = o.outputs[i]
		}
	}
}
