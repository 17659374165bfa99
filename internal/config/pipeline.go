package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/ovolkov/benchvision/internal/detect"
	"github.com/ovolkov/benchvision/internal/pipeline"
	"github.com/ovolkov/benchvision/internal/sched"
	"github.com/ovolkov/benchvision/internal/sink"
	"github.com/ovolkov/benchvision/internal/smooth"
	"github.com/ovolkov/benchvision/internal/source"
	"github.com/ovolkov/benchvision/internal/state"
)

// Detector kinds accepted in [[channels]].
const (
	DetectorBrightness = "brightness"
	DetectorMotion     = "motion"
	DetectorRemote     = "remote"
)

// ChannelConfig describes one detector channel.
type ChannelConfig struct {
	// Detector selects the implementation: brightness, motion, or remote.
	Detector string `toml:"detector" json:"detector"`
	// Enabled defaults to true when omitted.
	Enabled *bool `toml:"enabled,omitempty" json:"enabled,omitempty"`
	// OffMode selects the substitute for a disabled channel:
	// EMPTY, HOLD_LAST, or INJECT.
	OffMode string `toml:"off_mode,omitempty" json:"off_mode,omitempty"`
	// InjectTags is the observation substituted in INJECT mode.
	InjectTags map[string]float64 `toml:"inject_tags,omitempty" json:"inject_tags,omitempty"`

	Brightness detect.BrightnessConfig `toml:"brightness,omitempty" json:"brightness,omitempty"`
	Motion     detect.MotionConfig     `toml:"motion,omitempty" json:"motion,omitempty"`
	Remote     detect.RemoteConfig     `toml:"remote,omitempty" json:"remote,omitempty"`
}

// On reports the effective enable state.
func (c ChannelConfig) On() bool {
	return c.Enabled == nil || *c.Enabled
}

// PipelineConfig is the complete pipeline tuning file (pipeline.toml).
type PipelineConfig struct {
	Scheduler sched.Config               `toml:"scheduler" json:"scheduler"`
	Harness   pipeline.HarnessConfig     `toml:"harness" json:"harness"`
	Tags      smooth.TagSmootherConfig   `toml:"tags" json:"tags"`
	People    smooth.CountSmootherConfig `toml:"people" json:"people"`
	State     state.Config               `toml:"state" json:"state"`
	Source    source.FFmpegConfig        `toml:"source" json:"source"`
	Channels  []ChannelConfig            `toml:"channels" json:"channels"`
	WorkLog   sink.WorkLogConfig         `toml:"work_log" json:"work_log"`
}

// DefaultPipelineConfig returns the tuning used when no pipeline.toml is
// given: hysteresis thresholds for the four standard tags, both heuristic
// channels on, the remote channel off in HOLD_LAST mode.
func DefaultPipelineConfig() PipelineConfig {
	off := false
	return PipelineConfig{
		Scheduler: sched.DefaultConfig(),
		Harness:   pipeline.DefaultHarnessConfig(),
		Tags: smooth.TagSmootherConfig{
			Thresholds: map[string]smooth.Hysteresis{
				"close":       {OnCount: 12, OffCount: 18},
				"sampling":    {OnCount: 5, OffCount: 8},
				"blocking":    {OnCount: 6, OffCount: 3},
				"no_blocking": {OnCount: 3, OffCount: 3},
			},
			ForceOneOf: []string{"blocking", "no_blocking"},
			Exclusive:  [][2]string{{"blocking", "no_blocking"}},
		},
		People: smooth.DefaultCountSmootherConfig(),
		State:  state.Config{DebounceK: 1},
		Source: source.DefaultFFmpegConfig(),
		Channels: []ChannelConfig{
			{Detector: DetectorBrightness, Brightness: detect.DefaultBrightnessConfig()},
			{Detector: DetectorMotion, Motion: detect.DefaultMotionConfig()},
			{Detector: DetectorRemote, Enabled: &off, OffMode: string(pipeline.OffHoldLast), Remote: detect.DefaultRemoteConfig()},
		},
		WorkLog: sink.DefaultWorkLogConfig(),
	}
}

// LoadPipelineConfig reads the tuning file, overlaying it onto the defaults.
// A missing file returns the defaults; a malformed one is an error.
func LoadPipelineConfig(path string) (PipelineConfig, error) {
	cfg := DefaultPipelineConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read pipeline config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse pipeline config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SavePipelineConfig writes the tuning file, creating parent directories.
func SavePipelineConfig(path string, cfg PipelineConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal pipeline config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write pipeline config: %w", err)
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c PipelineConfig) Validate() error {
	if c.Scheduler.VideoFPS < 0 {
		return fmt.Errorf("scheduler.video_fps must not be negative")
	}
	if c.Scheduler.MaxAllowedStep < 0 {
		return fmt.Errorf("scheduler.max_allowed_step must not be negative")
	}
	if c.Scheduler.TargetRatio < 0 {
		return fmt.Errorf("scheduler.target_ratio must not be negative")
	}
	for tag, h := range c.Tags.Thresholds {
		if h.OnCount < 1 || h.OffCount < 1 {
			return fmt.Errorf("tags.thresholds.%s: on_count and off_count must be at least 1", tag)
		}
	}
	if c.People.AcceptExpected <= 0 || c.People.AcceptExpected > 1 {
		return fmt.Errorf("people.accept_expected must be in (0, 1]")
	}
	if c.People.AcceptOther <= 0 || c.People.AcceptOther > 1 {
		return fmt.Errorf("people.accept_other must be in (0, 1]")
	}
	if c.Source.EndSec != 0 && c.Source.EndSec < c.Source.StartSec {
		return fmt.Errorf("source.end_sec must not precede source.start_sec")
	}
	if c.WorkLog.Path != "" && c.WorkLog.IntervalS <= 0 {
		return fmt.Errorf("work_log.interval_s must be positive")
	}
	for i, ch := range c.Channels {
		switch ch.Detector {
		case DetectorBrightness, DetectorMotion, DetectorRemote:
		default:
			return fmt.Errorf("channels[%d]: unknown detector %q", i, ch.Detector)
		}
		switch pipeline.OffMode(ch.OffMode) {
		case "", pipeline.OffEmpty, pipeline.OffHoldLast, pipeline.OffInject:
		default:
			return fmt.Errorf("channels[%d]: unknown off_mode %q", i, ch.OffMode)
		}
	}
	return nil
}

// BuildChannels constructs the detector channels described by the config.
func (c PipelineConfig) BuildChannels() ([]*pipeline.Channel, error) {
	channels := make([]*pipeline.Channel, 0, len(c.Channels))
	for i, cc := range c.Channels {
		var d detect.Detector
		switch cc.Detector {
		case DetectorBrightness:
			d = detect.NewBrightness(cc.Brightness)
		case DetectorMotion:
			d = detect.NewMotion(cc.Motion)
		case DetectorRemote:
			d = detect.NewRemote(cc.Remote)
		default:
			return nil, fmt.Errorf("channels[%d]: unknown detector %q", i, cc.Detector)
		}
		ch := pipeline.NewChannel(d, pipeline.OffMode(cc.OffMode))
		ch.SetEnabled(cc.On())
		if len(cc.InjectTags) > 0 {
			ch.Inject = detect.Observation{Tags: cc.InjectTags}
		}
		channels = append(channels, ch)
	}
	return channels, nil
}
