package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ovolkov/benchvision/internal/config"
)

// CreateValidateConfigCmd creates the validate-config command.
func CreateValidateConfigCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "validate-config [pipeline.toml]",
		Short: "Validate a pipeline tuning file",
		Long: `Parses the given pipeline tuning file, overlays it onto the defaults, and ` +
			`rejects settings the pipeline cannot run with (bad thresholds, unknown detectors, ` +
			`inverted analysis windows).`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			path := args[0]

			if _, err := os.Stat(path); err != nil {
				fmt.Fprintf(os.Stderr, "cannot read %s: %v\n", path, err)
				os.Exit(1)
			}
			cfg, err := config.LoadPipelineConfig(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
				os.Exit(1)
			}
			if !quiet {
				fmt.Printf("%s is valid\n", path)
				fmt.Printf("  scheduler: target_ratio=%.2f max_step=%d\n",
					cfg.Scheduler.TargetRatio, cfg.Scheduler.MaxAllowedStep)
				fmt.Printf("  tags: %d thresholds\n", len(cfg.Tags.Thresholds))
				fmt.Printf("  channels: %d\n", len(cfg.Channels))
			}
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress the configuration echo")

	return cmd
}
