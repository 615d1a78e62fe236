package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/TAAK61/qr-code-reader-sub001/internal/batch"
	"github.com/TAAK61/qr-code-reader-sub001/internal/config"
	"github.com/spf13/cobra"
)

// batchCmd represents the batch command for chunked parallel preprocessing.
var batchCmd = &cobra.Command{
	Use:   "batch [files or directories...]",
	Short: "Preprocess many images in memory-bounded chunks",
	Long: `Preprocess a set of image files in parallel. Images are decoded lazily and
scheduled in chunks sized so that their working memory fits the memory limit;
scratch memory is reclaimed after every chunk.

Without --output-dir only the report is produced.

Supported formats: JPEG, PNG, GIF, BMP, TIFF, WebP

Examples:
  qrprep batch *.jpg *.png --output-dir prepped
  qrprep batch scans/ --recursive --workers 8 --stats
  qrprep batch scans/ --format json --output report.json
  qrprep batch scans/ --progress --memory-limit 512MB`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatchCommand,
}

// configToBatchConfig maps centralized configuration to batch.Config.
// Explicitly set flags override config file values.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) *batch.Config {
	bc := batch.DefaultConfig()
	f := cmd.Flags()

	bc.Options = optionsFromFlags(cfg.ToPipelineOptions(), cmd)

	bc.Workers = cfg.Batch.Workers
	if f.Changed("workers") {
		bc.Workers, _ = f.GetInt("workers")
	}

	bc.MemoryLimit = cfg.Batch.MemoryLimit
	if f.Changed("memory-limit") {
		bc.MemoryLimit, _ = f.GetString("memory-limit")
	}

	bc.Recursive = cfg.Batch.Recursive
	if f.Changed("recursive") {
		bc.Recursive, _ = f.GetBool("recursive")
	}

	bc.OutputDir = cfg.Batch.OutputDir
	if f.Changed("output-dir") {
		bc.OutputDir, _ = f.GetString("output-dir")
	}

	bc.Suffix = cfg.Batch.Suffix
	if f.Changed("suffix") {
		bc.Suffix, _ = f.GetString("suffix")
	}

	bc.Format = cfg.Output.Format
	if f.Changed("format") {
		bc.Format, _ = f.GetString("format")
	}

	bc.OutputFile = cfg.Output.File
	if f.Changed("output") {
		bc.OutputFile, _ = f.GetString("output")
	}

	// File discovery and progress settings are CLI-only
	bc.IncludePatterns, _ = f.GetStringSlice("include")
	bc.ExcludePatterns, _ = f.GetStringSlice("exclude")
	bc.ShowProgress, _ = f.GetBool("progress")
	bc.Quiet, _ = f.GetBool("quiet")
	bc.ShowStats, _ = f.GetBool("stats")
	bc.ProgressInterval, _ = f.GetDuration("progress-interval")
	bc.ProgressWriter = cmd.ErrOrStderr()
	bc.Logger = slog.Default()

	return bc
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	bc := configToBatchConfig(cfg, cmd)
	out := cmd.OutOrStdout()

	if !bc.Quiet {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Processing %d paths...\n", len(args))
	}

	result, err := batch.ProcessBatch(cmd.Context(), args, bc)
	if result == nil {
		if errors.Is(err, batch.ErrNoImages) {
			return fmt.Errorf("no supported images found in %v", args)
		}
		return err
	}

	// A partial result is still reported before the error is returned.
	if saveErr := result.SaveResults(out, bc.Format, bc.OutputFile, bc.Quiet); saveErr != nil {
		return fmt.Errorf("failed to save results: %w", saveErr)
	}
	if bc.ShowStats {
		result.PrintStats(out, bc.Quiet)
	}
	return err
}

func init() {
	rootCmd.AddCommand(batchCmd)

	addOptionFlags(batchCmd)

	// Output flags
	batchCmd.Flags().StringP("format", "f", "text", "report format: text, json, csv")
	batchCmd.Flags().StringP("output", "o", "", "report file (default: stdout)")
	batchCmd.Flags().String("output-dir", "", "directory for processed PNG images")
	batchCmd.Flags().String("suffix", "_prep", "suffix appended to output file names")

	// Scheduling flags
	batchCmd.Flags().IntP("workers", "w", 0, fmt.Sprintf("number of parallel workers (default: %d)", runtime.NumCPU()))
	batchCmd.Flags().String("memory-limit", "auto", "memory budget (e.g. 1GB, 512MB, auto)")

	// File discovery flags
	batchCmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")
	batchCmd.Flags().StringSlice("include", nil, "file patterns to include (default: all supported formats)")
	batchCmd.Flags().StringSlice("exclude", nil, "file patterns to exclude")

	// Progress and monitoring flags
	batchCmd.Flags().Bool("progress", false, "show progress bar")
	batchCmd.Flags().Bool("quiet", false, "suppress progress output")
	batchCmd.Flags().Bool("stats", false, "show processing statistics")
	batchCmd.Flags().Duration("progress-interval", 500*time.Millisecond, "progress update interval")
}
