package batch

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pipeline"
)

// Config holds all configuration for batch processing.
type Config struct {
	// Preprocessing stages
	Options pipeline.Options

	// Scheduling settings
	Workers     int
	MemoryLimit string

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Output settings
	OutputDir  string
	Suffix     string
	Format     string
	OutputFile string

	// Progress settings
	ShowProgress     bool
	Quiet            bool
	ShowStats        bool
	ProgressInterval time.Duration
	ProgressWriter   io.Writer

	Logger  *slog.Logger
	Metrics *pipeline.Metrics
}

// DefaultConfig returns a batch configuration with default stages, one
// worker per CPU and a budget derived from the runtime memory limit.
func DefaultConfig() *Config {
	return &Config{
		Options:          pipeline.DefaultOptions(),
		MemoryLimit:      "auto",
		Suffix:           "_prep",
		Format:           "text",
		ProgressInterval: 100 * time.Millisecond,
	}
}

// Validate checks the configuration before any file is touched.
func (c *Config) Validate() error {
	if err := c.Options.Validate(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid workers: %d (must not be negative)", c.Workers)
	}
	if _, err := pipeline.ParseMemoryLimit(c.MemoryLimit); err != nil {
		return err
	}
	switch c.Format {
	case "", "text", "json", "csv":
	default:
		return fmt.Errorf("invalid format: %s (must be one of: text, json, csv)", c.Format)
	}
	return nil
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
