package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pipeline"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their configuration key rather than the Go name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Pipeline: pipeline.DefaultOptions(),
		Output: OutputConfig{
			Format: "text",
		},
		Server: ServerConfig{
			Host:              "localhost",
			Port:              8080,
			CORSOrigin:        "*",
			MaxUploadMB:       50,
			TimeoutSec:        30,
			ShutdownTimeout:   10,
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			MaxRequestsPerDay: 5000,
			MaxDataPerDay:     100 << 20,
		},
		Batch: BatchConfig{
			Workers:     0,
			MemoryLimit: "auto",
			Suffix:      "_prep",
		},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		fe := fieldErrs[0]
		return fmt.Errorf("invalid %s: %v (%s)", configKey(fe), fe.Value(), ruleMessage(fe))
	}

	if c.Batch.MemoryLimit != "" {
		if _, err := pipeline.ParseMemoryLimit(c.Batch.MemoryLimit); err != nil {
			return fmt.Errorf("invalid batch.memory_limit: %w", err)
		}
	}

	return nil
}

// ToPipelineOptions returns the preprocessing options by value.
func (c *Config) ToPipelineOptions() pipeline.Options {
	return c.Pipeline
}

// MemoryBudget resolves batch.memory_limit into a scheduler budget.
func (c *Config) MemoryBudget() (pipeline.MemoryBudget, error) {
	return pipeline.ParseMemoryLimit(c.Batch.MemoryLimit)
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// configKey strips the root struct name from the validator namespace.
func configKey(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	default:
		return fmt.Sprintf("failed validation for tag '%s'", fe.Tag())
	}
}
