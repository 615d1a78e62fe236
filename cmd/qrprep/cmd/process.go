package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/TAAK61/qr-code-reader-sub001/internal/batch"
	"github.com/TAAK61/qr-code-reader-sub001/internal/lazyimg"
	"github.com/TAAK61/qr-code-reader-sub001/internal/pipeline"
	"github.com/disintegration/imaging"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// processCmd preprocesses a single image.
var processCmd = &cobra.Command{
	Use:   "process <image>",
	Short: "Preprocess a single image for barcode detection",
	Long: `Decode one image, run it through the preprocessing pipeline and write the
result as PNG.

Supported formats: JPEG, PNG, GIF, BMP, TIFF, WebP

Examples:
  qrprep process label.jpg
  qrprep process label.jpg -o clean.png --format json
  qrprep process receipt.png --max-dimension 1024 --contrast-factor 2`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runProcessCommand,
}

// processOutput is the JSON shape of a processed image.
type processOutput struct {
	File            string   `json:"file"`
	Output          string   `json:"output"`
	Format          string   `json:"format,omitempty"`
	OriginalWidth   int      `json:"original_width"`
	OriginalHeight  int      `json:"original_height"`
	ProcessedWidth  int      `json:"processed_width"`
	ProcessedHeight int      `json:"processed_height"`
	Operations      []string `json:"operations"`
	ResizeStrategy  string   `json:"resize_strategy"`
	EnhancePath     string   `json:"enhance_path,omitempty"`
	ElapsedMs       float64  `json:"elapsed_ms"`
	MemoryDelta     int64    `json:"memory_delta_bytes"`
}

func runProcessCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	opts := optionsFromFlags(cfg.ToPipelineOptions(), cmd)
	if err := opts.Validate(); err != nil {
		return err
	}

	// A configured csv format only applies to batch reports.
	format := cfg.Output.Format
	if cmd.Flags().Changed("format") {
		format, _ = cmd.Flags().GetString("format")
		if format != "text" && format != "json" {
			return fmt.Errorf("invalid format: %s (must be one of: text, json)", format)
		}
	}

	in := args[0]
	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = batch.OutputPath(in, filepath.Dir(in), cfg.Batch.Suffix)
	}

	h, err := lazyimg.Open(in)
	if err != nil {
		return err
	}
	info, err := h.Info()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", in, err)
	}
	buf, err := h.Buffer()
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", in, err)
	}

	p := pipeline.New(pipeline.WithLogger(slog.Default()))
	res, err := p.Process(cmd.Context(), buf, opts)
	if err != nil {
		return fmt.Errorf("preprocessing failed: %w", err)
	}

	img, err := res.Buffer.ToImage()
	if err != nil {
		return err
	}
	if err := imaging.Save(img, out); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	slog.Debug("Image processed", "input", in, "output", out, "elapsed", res.Elapsed)

	po := toProcessOutput(in, out, info.Format, res)
	if format == "json" {
		return writeProcessJSON(cmd.OutOrStdout(), po)
	}
	writeProcessText(cmd.OutOrStdout(), po)
	return nil
}

func toProcessOutput(in, out, format string, res *pipeline.Result) processOutput {
	po := processOutput{
		File:            in,
		Output:          out,
		Format:          format,
		OriginalWidth:   res.OriginalWidth,
		OriginalHeight:  res.OriginalHeight,
		ProcessedWidth:  res.ProcessedWidth,
		ProcessedHeight: res.ProcessedHeight,
		Operations:      res.Operations,
		ResizeStrategy:  res.ResizeStrategy.String(),
		ElapsedMs:       float64(res.Elapsed.Microseconds()) / 1000,
		MemoryDelta:     res.MemoryDelta,
	}
	if po.Operations == nil {
		po.Operations = []string{}
	}
	if res.Applied(pipeline.StageEnhance) {
		po.EnhancePath = res.EnhancePath.String()
	}
	return po
}

func writeProcessJSON(w io.Writer, po processOutput) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(po)
}

func writeProcessText(w io.Writer, po processOutput) {
	ops := "none"
	if len(po.Operations) > 0 {
		ops = strings.Join(po.Operations, ", ")
	}
	_, _ = fmt.Fprintf(w, "File: %s\n", po.File)
	_, _ = fmt.Fprintf(w, "Output: %s\n", po.Output)
	_, _ = fmt.Fprintf(w, "Size: %dx%d -> %dx%d\n", po.OriginalWidth, po.OriginalHeight, po.ProcessedWidth, po.ProcessedHeight)
	_, _ = fmt.Fprintf(w, "Operations: %s\n", ops)
	_, _ = fmt.Fprintf(w, "Resize strategy: %s\n", po.ResizeStrategy)
	if po.EnhancePath != "" {
		_, _ = fmt.Fprintf(w, "Enhance path: %s\n", po.EnhancePath)
	}
	_, _ = fmt.Fprintf(w, "Time: %.2fms\n", po.ElapsedMs)
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringP("output", "o", "", "output PNG path (default: <image>_prep.png next to the input)")
	processCmd.Flags().StringP("format", "f", "text", "report format: text, json")
	addOptionFlags(processCmd)
}
