package pipeline

import (
	"slices"
	"time"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
	"github.com/TAAK61/qr-code-reader-sub001/internal/preprocess"
)

// Stage names as they appear in Result.Operations.
const (
	StageResize  = "resize"
	StageDenoise = "noise_reduction"
	StageEnhance = "contrast_enhancement"
)

// Result describes one processed buffer. It is not modified after Process
// returns.
type Result struct {
	OriginalWidth   int           `json:"original_width"`
	OriginalHeight  int           `json:"original_height"`
	ProcessedWidth  int           `json:"processed_width"`
	ProcessedHeight int           `json:"processed_height"`
	Elapsed         time.Duration `json:"elapsed_ns"`
	// MemoryDelta is the size of the output minus the size of the input.
	MemoryDelta int64 `json:"memory_delta_bytes"`
	// AllocatedBytes counts every buffer the stages allocated, scratch included.
	AllocatedBytes int64    `json:"allocated_bytes"`
	Operations     []string `json:"operations"`

	ResizeStrategy preprocess.ResizeStrategy `json:"-"`
	EnhancePath    preprocess.EnhancePath    `json:"-"`

	Buffer *pixbuf.PixelBuffer `json:"-"`
}

// Applied reports whether the named stage ran.
func (r *Result) Applied(stage string) bool {
	return slices.Contains(r.Operations, stage)
}
