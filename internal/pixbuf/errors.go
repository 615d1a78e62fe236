package pixbuf

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDimensions reports a zero or negative width, height or resize target,
	// or a sample slice whose length does not match the dimensions.
	ErrInvalidDimensions = errors.New("invalid dimensions")

	// ErrUnsupportedColorModel reports a stage receiving a color model it cannot interpret.
	ErrUnsupportedColorModel = errors.New("unsupported color model")

	// ErrOutOfMemory reports an allocation that would exceed the memory budget.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrCancelled reports a batch stopped between chunks by its context.
	ErrCancelled = errors.New("cancelled")

	// ErrInvalidFactor reports a contrast factor that is not a positive finite number.
	ErrInvalidFactor = errors.New("invalid contrast factor")

	// ErrInvalidOptions reports processing options that fail validation.
	ErrInvalidOptions = errors.New("invalid processing options")
)

// ProcessingError carries the stage and input dimensions of a failed operation.
type ProcessingError struct {
	Stage  string
	Width  int
	Height int
	Err    error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s failed on %dx%d image: %v", e.Stage, e.Width, e.Height, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// NewProcessingError wraps err with the stage and buffer dimensions. A nil
// buffer leaves the dimensions at zero.
func NewProcessingError(stage string, b *PixelBuffer, err error) *ProcessingError {
	pe := &ProcessingError{Stage: stage, Err: err}
	if b != nil {
		pe.Width, pe.Height = b.Width, b.Height
	}
	return pe
}
