package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ovolkov/benchvision/internal/smooth"
)

func TestDefaultPipelineConfigValid(t *testing.T) {
	cfg := DefaultPipelineConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if len(cfg.Channels) != 3 {
		t.Fatalf("channels = %d", len(cfg.Channels))
	}
	if cfg.Tags.Thresholds["close"].OnCount != 12 {
		t.Fatalf("close threshold = %+v", cfg.Tags.Thresholds["close"])
	}
}

func TestLoadPipelineConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadPipelineConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.MaxAllowedStep != DefaultPipelineConfig().Scheduler.MaxAllowedStep {
		t.Fatalf("defaults not applied: %+v", cfg.Scheduler)
	}
}

func TestLoadPipelineConfigOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.toml")
	content := `
[scheduler]
video_fps = 30.0
max_allowed_step = 6
target_ratio = 1.2

[tags.thresholds.close]
on_count = 4
off_count = 9

[state]
debounce_k = 3

[source]
scale = "640:-1"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadPipelineConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.VideoFPS != 30.0 || cfg.Scheduler.MaxAllowedStep != 6 {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Tags.Thresholds["close"].OnCount != 4 || cfg.Tags.Thresholds["close"].OffCount != 9 {
		t.Fatalf("close = %+v", cfg.Tags.Thresholds["close"])
	}
	// Untouched sections keep their defaults.
	if cfg.Tags.Thresholds["sampling"].OnCount != 5 {
		t.Fatalf("sampling = %+v", cfg.Tags.Thresholds["sampling"])
	}
	if cfg.State.DebounceK != 3 {
		t.Fatalf("debounce_k = %d", cfg.State.DebounceK)
	}
	if cfg.Source.Scale != "640:-1" {
		t.Fatalf("scale = %q", cfg.Source.Scale)
	}
}

func TestLoadPipelineConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.toml")
	if err := os.WriteFile(path, []byte("[scheduler\nbroken"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPipelineConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPipelineConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PipelineConfig)
	}{
		{"negative fps", func(c *PipelineConfig) { c.Scheduler.VideoFPS = -1 }},
		{"zero threshold", func(c *PipelineConfig) {
			c.Tags.Thresholds["close"] = smooth.Hysteresis{OnCount: 0, OffCount: 3}
		}},
		{"accept probability", func(c *PipelineConfig) { c.People.AcceptExpected = 1.5 }},
		{"window inverted", func(c *PipelineConfig) { c.Source.StartSec = 10; c.Source.EndSec = 5 }},
		{"bad detector", func(c *PipelineConfig) { c.Channels[0].Detector = "lidar" }},
		{"bad off mode", func(c *PipelineConfig) { c.Channels[0].OffMode = "FREEZE" }},
		{"work log interval", func(c *PipelineConfig) { c.WorkLog.Path = "w.csv"; c.WorkLog.IntervalS = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPipelineConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestBuildChannels(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.Channels[2].InjectTags = map[string]float64{"blocking": 1}

	channels, err := cfg.BuildChannels()
	if err != nil {
		t.Fatal(err)
	}
	if len(channels) != 3 {
		t.Fatalf("channels = %d", len(channels))
	}
	if channels[0].Detector.Name() != "brightness" || channels[1].Detector.Name() != "motion" {
		t.Fatalf("detectors: %s, %s", channels[0].Detector.Name(), channels[1].Detector.Name())
	}
	if channels[2].Inject.Tags["blocking"] != 1 {
		t.Fatalf("inject: %+v", channels[2].Inject)
	}
}
