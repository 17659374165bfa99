// Package sched decides how many source frames to advance between
// inference calls so that playback keeps up with video time when
// per-frame processing is slower than the source frame rate.
package sched

import "math"

// Config holds scheduler tuning parameters.
type Config struct {
	// VideoFPS is the nominal frame rate of the source.
	VideoFPS float64 `toml:"video_fps"`
	// WarmupFrames is the number of initial observations during which the
	// step is pinned to 1. Model load and cache warm-up inflate the first
	// latencies; acting on them would produce an oversized skip.
	WarmupFrames int `toml:"warmup_frames"`
	// TargetRatio biases the step: 1.0 aims for real-time, >1.0 catches up
	// faster, <1.0 trades lag for smoother output.
	TargetRatio float64 `toml:"target_ratio"`
	// MaxAllowedStep clamps the step. MinStep defaults to 1.
	MaxAllowedStep int `toml:"max_allowed_step"`
	MinStep        int `toml:"min_step"`
	// SmoothingWindow is the sample-equivalent window of the latency EMA.
	SmoothingWindow int `toml:"smoothing_window"`
}

// DefaultConfig returns scheduler defaults for a 25 fps source.
func DefaultConfig() Config {
	return Config{
		VideoFPS:        25.0,
		WarmupFrames:    5,
		TargetRatio:     1.0,
		MaxAllowedStep:  10,
		MinStep:         1,
		SmoothingWindow: 3,
	}
}

// Decision is the scheduling outcome for one processed frame.
type Decision struct {
	// Step is the number of source frames to advance before the next
	// inference, always in [MinStep, MaxAllowedStep].
	Step int
	// RawStep is the unclamped, unsmoothed step estimate for this frame.
	RawStep float64
	// SmoothStep is the EMA-smoothed step estimate before clamping.
	SmoothStep float64
	// Capped reports whether clamping to MaxAllowedStep changed the step.
	Capped bool
	// Ratio is the smoothed real-time ratio (video time over wall time).
	// Zero until two processed frames have been observed.
	Ratio float64
	// Warmup reports whether this decision was made during warmup.
	Warmup bool
}

// Scheduler maps measured per-frame latency to a frame-skip step.
// It is not safe for concurrent use; the processing worker owns it.
type Scheduler struct {
	cfg   Config
	alpha float64

	emaLatencyMS float64
	emaValid     bool
	count        int

	ratio *RatioTracker
}

// New creates a scheduler. Degenerate config values are clamped to
// minimum positive values so Observe can never fail.
func New(cfg Config) *Scheduler {
	if cfg.VideoFPS <= 0 {
		cfg.VideoFPS = 0.1
	}
	if cfg.TargetRatio <= 0 {
		cfg.TargetRatio = 0.01
	}
	if cfg.MaxAllowedStep < 1 {
		cfg.MaxAllowedStep = 1
	}
	if cfg.MinStep < 1 {
		cfg.MinStep = 1
	}
	if cfg.MinStep > cfg.MaxAllowedStep {
		cfg.MinStep = cfg.MaxAllowedStep
	}
	if cfg.WarmupFrames < 0 {
		cfg.WarmupFrames = 0
	}
	if cfg.SmoothingWindow < 1 {
		cfg.SmoothingWindow = 1
	}
	return &Scheduler{
		cfg:   cfg,
		alpha: 2.0 / (float64(cfg.SmoothingWindow) + 1.0),
		ratio: NewRatioTracker(defaultRatioSmoothing),
	}
}

// Config returns the current configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// SetTargetRatio adjusts the aggressiveness factor, bounded to sane values.
// Called by the auto-tuner and by live config reloads.
func (s *Scheduler) SetTargetRatio(ratio float64) {
	if ratio <= 0 {
		ratio = 0.01
	}
	s.cfg.TargetRatio = ratio
}

// FrameIntervalMS returns the nominal inter-frame time of the source.
func (s *Scheduler) FrameIntervalMS() float64 {
	return 1000.0 / s.cfg.VideoFPS
}

// Observe records the measured wall-clock cost of one processed frame and
// returns the step to use before the next inference.
//
// During warmup the step is pinned to 1. The latency EMA is reset at the
// warmup boundary so that cold-start samples do not skew the first real
// decisions.
func (s *Scheduler) Observe(latencyMS float64) Decision {
	if latencyMS < 0 {
		latencyMS = 0
	}

	warmup := s.count < s.cfg.WarmupFrames
	if s.count == s.cfg.WarmupFrames {
		s.emaValid = false
	}
	s.count++

	if !s.emaValid {
		s.emaLatencyMS = latencyMS
		s.emaValid = true
	} else {
		s.emaLatencyMS = s.alpha*latencyMS + (1-s.alpha)*s.emaLatencyMS
	}

	interval := s.FrameIntervalMS()
	rawStep := latencyMS / interval
	smoothStep := s.cfg.TargetRatio * s.emaLatencyMS / interval

	step := s.cfg.MinStep
	if !warmup {
		step = int(math.Round(smoothStep))
		if step < s.cfg.MinStep {
			step = s.cfg.MinStep
		}
	}
	capped := step > s.cfg.MaxAllowedStep
	if capped {
		step = s.cfg.MaxAllowedStep
	}

	return Decision{
		Step:       step,
		RawStep:    rawStep,
		SmoothStep: smoothStep,
		Capped:     capped,
		Ratio:      s.ratio.Ratio(),
		Warmup:     warmup,
	}
}

// RecordProgress feeds the real-time ratio tracker with the video time of a
// frame that produced a new inference result and the wall-clock moment it
// finished. Dropped frames must not be recorded.
func (s *Scheduler) RecordProgress(videoTimeS, wallTimeS float64) {
	s.ratio.Record(videoTimeS, wallTimeS)
}

// EMALatencyMS returns the current latency estimate.
func (s *Scheduler) EMALatencyMS() float64 { return s.emaLatencyMS }
