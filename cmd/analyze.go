package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ovolkov/benchvision/internal/config"
	"github.com/ovolkov/benchvision/internal/events"
	"github.com/ovolkov/benchvision/internal/logging"
	"github.com/ovolkov/benchvision/internal/metrics"
	"github.com/ovolkov/benchvision/internal/pipeline"
	"github.com/ovolkov/benchvision/internal/sched"
	"github.com/ovolkov/benchvision/internal/sink"
	"github.com/ovolkov/benchvision/internal/smooth"
	"github.com/ovolkov/benchvision/internal/source"
	"github.com/ovolkov/benchvision/internal/state"
)

// CreateAnalyzeCmd creates the analyze command: a headless one-shot run over
// a single video source.
func CreateAnalyzeCmd() *cobra.Command {
	var configFile string
	var workLogPath string
	var summaryPath string
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "analyze [source]",
		Short: "Run the analysis pipeline over a video source",
		Long: `Decodes the given file or stream URL, runs the detector channels with ` +
			`adaptive frame skipping, and prints the run summary as JSON. ` +
			`Tuning comes from pipeline.toml and is hot-reloaded while the run is active.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			sourcePath := args[0]

			loggingConfig := logging.Config{
				Level:  "info",
				Format: "text",
			}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("analyze")

			cfg, err := config.LoadPipelineConfig(configFile)
			if err != nil {
				logger.Error("Failed to load pipeline config", "error", err, "config", configFile)
				os.Exit(1)
			}
			if workLogPath != "" {
				cfg.WorkLog.Path = workLogPath
			}

			src, err := source.OpenFFmpeg(cfg.Source, sourcePath, logging.GetLogger("source"))
			if err != nil {
				logger.Error("Failed to open source", "error", err, "source", sourcePath)
				os.Exit(1)
			}
			defer src.Close()

			info := src.Info()
			if cfg.Scheduler.VideoFPS == 0 {
				cfg.Scheduler.VideoFPS = info.FPS
			}
			logger.Info("Source opened",
				"source", sourcePath,
				"fps", info.FPS,
				"duration_s", info.Duration,
				"resolution", fmt.Sprintf("%dx%d", info.Width, info.Height))

			channels, err := cfg.BuildChannels()
			if err != nil {
				logger.Error("Failed to build detector channels", "error", err)
				os.Exit(1)
			}

			bus := events.New()
			runner := pipeline.NewRunner(channels,
				smooth.NewTagSmoother(cfg.Tags),
				smooth.NewCountSmoother(cfg.People),
				state.NewEngine(cfg.State),
				bus)
			scheduler := sched.New(cfg.Scheduler)
			harness := pipeline.NewHarness(cfg.Harness, src, runner, scheduler, sink.NewLatest(), bus)

			teardown := metrics.Bridge(bus, harness.RunID())
			defer teardown()

			summary := sink.NewSummary(harness.RunID())
			defer summary.Attach(bus)()

			if cfg.WorkLog.Path != "" {
				workLog, wlErr := sink.NewWorkLog(cfg.WorkLog, harness.RunID())
				if wlErr != nil {
					logger.Error("Failed to open work log", "error", wlErr, "path", cfg.WorkLog.Path)
					os.Exit(1)
				}
				defer workLog.Close()
				defer workLog.Attach(bus)()
			}

			// Hot-reload scheduler aggressiveness from pipeline.toml
			watcher := config.NewConfigWatcher(
				configFile,
				config.LoadPipelineConfig,
				logger,
				config.WithDebounce[config.PipelineConfig](1500*time.Millisecond),
			)
			watcher.OnReload(func(fresh config.PipelineConfig) {
				scheduler.SetTargetRatio(fresh.Scheduler.TargetRatio)
				bus.Publish(events.TuningAppliedEvent{
					Path:        configFile,
					TargetRatio: fresh.Scheduler.TargetRatio,
					Timestamp:   time.Now().Format(time.RFC3339),
				})
				logger.Info("Tuning applied", "target_ratio", fresh.Scheduler.TargetRatio)
			})
			if err := watcher.Start(); err != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", err)
			} else {
				defer func() { _ = watcher.Stop() }()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stats, runErr := harness.Run(ctx)
			if runErr != nil && ctx.Err() == nil {
				logger.Error("Run failed", "error", runErr, "reason", stats.Reason)
			}

			out, jsonErr := summary.JSON()
			if jsonErr != nil {
				logger.Error("Failed to render summary", "error", jsonErr)
				os.Exit(1)
			}
			if summaryPath != "" {
				if writeErr := os.WriteFile(summaryPath, out, 0644); writeErr != nil {
					logger.Error("Failed to write summary", "error", writeErr, "path", summaryPath)
					os.Exit(1)
				}
			}
			fmt.Println(string(out))

			if runErr != nil && ctx.Err() == nil {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "pipeline.toml", "Path to pipeline tuning file")
	cmd.Flags().StringVar(&workLogPath, "work-log", "", "Write interval CSV rows to this path (overrides config)")
	cmd.Flags().StringVar(&summaryPath, "summary", "", "Write the run summary JSON to this path")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}
