package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ovolkov/benchvision/cmd"
	"github.com/ovolkov/benchvision/internal/api"
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

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Pipeline settings
	PipelineConfigFile string `help:"Pipeline tuning file" default:"pipeline.toml" toml:"pipeline.config_file" env:"PIPELINE_CONFIG_FILE"`
	Source             string `help:"Video file or stream URL to analyze" toml:"pipeline.source" env:"PIPELINE_SOURCE"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingPipeline string `help:"Pipeline logging level" default:"info" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingSource   string `help:"Source decoder logging level" default:"info" toml:"logging.source" env:"LOGGING_SOURCE"`
	LoggingDetect   string `help:"Detector logging level" default:"info" toml:"logging.detect" env:"LOGGING_DETECT"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP     string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func main() {
	// Create Huma CLI. Declared before New so the handler can reach the root
	// command for CLI-flag precedence in LoadConfig.
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		loggingConfig := logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"pipeline": opts.LoggingPipeline,
				"source":   opts.LoggingSource,
				"detect":   opts.LoggingDetect,
				"api":      opts.LoggingAPI,
				"http":     opts.LoggingHTTP,
			},
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		// Load pipeline tuning
		pipelineCfg, cfgErr := config.LoadPipelineConfig(opts.PipelineConfigFile)
		if cfgErr != nil {
			logger.Error("Invalid pipeline config", "error", cfgErr, "config", opts.PipelineConfigFile)
			os.Exit(1)
		}

		// Create event bus for in-process event handling
		eventBus := events.New()

		// Forward new log entries to the bus for the log stream endpoint
		var logSeq atomic.Uint64
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        logSeq.Add(1),
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		// Build the analysis pipeline
		channels, chErr := pipelineCfg.BuildChannels()
		if chErr != nil {
			logger.Error("Failed to build detector channels", "error", chErr)
			os.Exit(1)
		}
		runner := pipeline.NewRunner(channels,
			smooth.NewTagSmoother(pipelineCfg.Tags),
			smooth.NewCountSmoother(pipelineCfg.People),
			state.NewEngine(pipelineCfg.State),
			eventBus)
		scheduler := sched.New(pipelineCfg.Scheduler)
		latest := sink.NewLatest()

		// Open the source and create the run harness up front so the API can
		// report the run ID from the first request
		var src source.Source
		var harness *pipeline.Harness
		runID := ""
		if opts.Source != "" {
			opened, srcErr := source.OpenFFmpeg(pipelineCfg.Source, opts.Source, logging.GetLogger("source"))
			if srcErr != nil {
				logger.Error("Failed to open source", "error", srcErr, "source", opts.Source)
				os.Exit(1)
			}
			src = opened
			if pipelineCfg.Scheduler.VideoFPS == 0 {
				pipelineCfg.Scheduler.VideoFPS = opened.Info().FPS
				scheduler = sched.New(pipelineCfg.Scheduler)
			}
			harness = pipeline.NewHarness(pipelineCfg.Harness, src, runner, scheduler, latest, eventBus)
			runID = harness.RunID()
		} else {
			logger.Info("No source configured, serving API without an active run")
		}

		summary := sink.NewSummary(runID)
		summaryDetach := summary.Attach(eventBus)

		// Effective config is swapped by the watcher on reload
		var cfgMu sync.RWMutex
		currentCfg := pipelineCfg

		watcher := config.NewConfigWatcher(
			opts.PipelineConfigFile,
			config.LoadPipelineConfig,
			logger,
			config.WithDebounce[config.PipelineConfig](1500*time.Millisecond),
		)
		watcher.OnReload(func(fresh config.PipelineConfig) {
			scheduler.SetTargetRatio(fresh.Scheduler.TargetRatio)
			cfgMu.Lock()
			currentCfg = fresh
			cfgMu.Unlock()
			eventBus.Publish(events.TuningAppliedEvent{
				Path:        opts.PipelineConfigFile,
				TargetRatio: fresh.Scheduler.TargetRatio,
				Timestamp:   time.Now().Format(time.RFC3339),
			})
			logger.Info("Tuning applied", "target_ratio", fresh.Scheduler.TargetRatio)
		})

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			RunID:        runID,
			Source:       opts.Source,
			EventBus:     eventBus,
			Latest:       latest,
			Summary:      summary,
			Runner:       runner,
			PipelineConfig: func() config.PipelineConfig {
				cfgMu.RLock()
				defer cfgMu.RUnlock()
				return currentCfg
			},
			PrometheusHandler: promhttp.Handler(),
		}

		server := api.NewServer(apiOpts)

		runCtx, cancelRun := context.WithCancel(context.Background())
		runDone := make(chan struct{})

		hooks.OnStart(func() {
			if startErr := watcher.Start(); startErr != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", startErr)
			}

			if harness != nil {
				teardown := metrics.Bridge(eventBus, runID)
				go func() {
					defer close(runDone)
					defer teardown()
					stats, runErr := harness.Run(runCtx)
					if runErr != nil && runCtx.Err() == nil {
						logger.Error("Run failed", "error", runErr, "reason", stats.Reason)
						return
					}
					logger.Info("Run complete",
						"reason", stats.Reason,
						"processed", stats.Processed,
						"dropped", stats.Dropped,
						"video_time_s", stats.LastVideoTimeS)
				}()
			} else {
				close(runDone)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Stop the analysis run and wait for the worker to drain
			cancelRun()
			select {
			case <-runDone:
			case <-time.After(10 * time.Second):
				logger.Warn("Timed out waiting for the run to stop")
			}
			if src != nil {
				if closeErr := src.Close(); closeErr != nil {
					logger.Error("Error closing source", "error", closeErr)
				}
			}

			summaryDetach()
			_ = watcher.Stop()
		})
	})

	// Add validate-config command
	validateCmd := cmd.CreateValidateConfigCmd()
	cli.Root().AddCommand(validateCmd)

	// Add analyze command
	analyzeCmd := cmd.CreateAnalyzeCmd()
	cli.Root().AddCommand(analyzeCmd)

	// Run the CLI
	cli.Run()
}
