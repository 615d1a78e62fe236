package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Options selects the stages a Process call runs. Values are passed by
// copy and never modified by the pipeline.
type Options struct {
	EnhanceContrast   bool    `json:"enhance_contrast" yaml:"enhance_contrast" mapstructure:"enhance_contrast" default:"true"`
	ContrastFactor    float64 `json:"contrast_factor" yaml:"contrast_factor" mapstructure:"contrast_factor" default:"1.5" validate:"gte=0.1,lte=10"`
	ReduceNoise       bool    `json:"reduce_noise" yaml:"reduce_noise" mapstructure:"reduce_noise" default:"true"`
	ResizeIfLarge     bool    `json:"resize_if_large" yaml:"resize_if_large" mapstructure:"resize_if_large" default:"true"`
	MaxDimension      int     `json:"max_dimension" yaml:"max_dimension" mapstructure:"max_dimension" default:"2048" validate:"gt=0"`
	HighQualityResize bool    `json:"high_quality_resize" yaml:"high_quality_resize" mapstructure:"high_quality_resize" default:"true"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultOptions returns every stage enabled with a 1.5 contrast factor and
// a 2048 pixel bound.
func DefaultOptions() Options {
	var o Options
	if err := defaults.Set(&o); err != nil {
		// Tags are static; a failure here is a programming error.
		panic(fmt.Sprintf("pipeline: default options: %v", err))
	}
	return o
}

// Validate checks ranges. Errors wrap pixbuf.ErrInvalidOptions.
func (o Options) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", pixbuf.ErrInvalidOptions, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", pixbuf.ErrInvalidOptions, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return fmt.Sprintf("%s must be greater than %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be at most %s, got %v", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())
	}
}
