package cmd

import (
	"github.com/TAAK61/qr-code-reader-sub001/internal/pipeline"
	"github.com/spf13/cobra"
)

// addOptionFlags registers the stage flags shared by process, batch and serve.
func addOptionFlags(cmd *cobra.Command) {
	d := pipeline.DefaultOptions()
	cmd.Flags().Bool("enhance-contrast", d.EnhanceContrast, "apply linear contrast enhancement")
	cmd.Flags().Float64("contrast-factor", d.ContrastFactor, "contrast factor (0.1-10, 1.0 = unchanged)")
	cmd.Flags().Bool("reduce-noise", d.ReduceNoise, "apply a 3x3 median filter")
	cmd.Flags().Bool("resize", d.ResizeIfLarge, "downscale images larger than --max-dimension")
	cmd.Flags().Int("max-dimension", d.MaxDimension, "largest allowed width or height in pixels")
	cmd.Flags().Bool("high-quality", d.HighQualityResize, "halve repeatedly before the final resize step")
}

// optionsFromFlags starts from the configured pipeline options and applies
// the stage flags that were set explicitly.
func optionsFromFlags(opts pipeline.Options, cmd *cobra.Command) pipeline.Options {
	f := cmd.Flags()
	if f.Changed("enhance-contrast") {
		opts.EnhanceContrast, _ = f.GetBool("enhance-contrast")
	}
	if f.Changed("contrast-factor") {
		opts.ContrastFactor, _ = f.GetFloat64("contrast-factor")
	}
	if f.Changed("reduce-noise") {
		opts.ReduceNoise, _ = f.GetBool("reduce-noise")
	}
	if f.Changed("resize") {
		opts.ResizeIfLarge, _ = f.GetBool("resize")
	}
	if f.Changed("max-dimension") {
		opts.MaxDimension, _ = f.GetInt("max-dimension")
	}
	if f.Changed("high-quality") {
		opts.HighQualityResize, _ = f.GetBool("high-quality")
	}
	return opts
}
