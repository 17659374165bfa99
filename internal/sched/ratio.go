package sched

// defaultRatioSmoothing matches a lightly damped EMA; small enough to react
// to sustained drift, large enough to ignore single-frame jitter.
const defaultRatioSmoothing = 0.2

// minWallDeltaS guards against division by near-zero wall deltas when two
// samples land inside the same scheduler tick.
const minWallDeltaS = 0.05

// RatioTracker measures elapsed video time against elapsed wall time across
// frames that produced inference results. A ratio of 1.0 means the analysis
// is keeping up with playback exactly.
type RatioTracker struct {
	smoothing float64

	lastVideoS float64
	lastWallS  float64
	hasLast    bool

	ema      float64
	emaValid bool
}

// NewRatioTracker creates a tracker with the given EMA smoothing in (0, 1].
func NewRatioTracker(smoothing float64) *RatioTracker {
	if smoothing <= 0 || smoothing > 1 {
		smoothing = defaultRatioSmoothing
	}
	return &RatioTracker{smoothing: smoothing}
}

// Record adds one (video time, wall time) sample pair, in seconds.
// Samples with non-monotonic video time or a too-small wall delta are
// absorbed without producing a ratio sample.
func (t *RatioTracker) Record(videoS, wallS float64) {
	if !t.hasLast {
		t.lastVideoS = videoS
		t.lastWallS = wallS
		t.hasLast = true
		return
	}

	dWall := wallS - t.lastWallS
	dVideo := videoS - t.lastVideoS
	if dWall < minWallDeltaS || dVideo < 0 {
		return
	}

	ratio := dVideo / dWall
	if !t.emaValid {
		t.ema = ratio
		t.emaValid = true
	} else {
		t.ema = t.smoothing*ratio + (1-t.smoothing)*t.ema
	}
	t.lastVideoS = videoS
	t.lastWallS = wallS
}

// Ratio returns the smoothed real-time ratio, or 0 before enough samples.
func (t *RatioTracker) Ratio() float64 {
	if !t.emaValid {
		return 0
	}
	return t.ema
}

// AutoTuner nudges the scheduler's target ratio toward real-time playback
// based on observed ratio drift, bounded to avoid oscillation.
type AutoTuner struct {
	// Min and Max bound the tuned target ratio.
	Min, Max float64
	// StepSize is the per-adjustment nudge applied to the target.
	StepSize float64
	// Deadband is the |ratio-1.0| region in which no adjustment happens.
	Deadband float64
}

// DefaultAutoTuner returns the tuning bounds used by the worker.
func DefaultAutoTuner() AutoTuner {
	return AutoTuner{Min: 0.5, Max: 2.0, StepSize: 0.05, Deadband: 0.02}
}

// Adjust returns the new target ratio given the current target and the
// latest smoothed real-time ratio. A ratio below 1.0 means the pipeline is
// falling behind, so the target is raised to skip more aggressively.
func (a AutoTuner) Adjust(target, ratio float64) float64 {
	if ratio <= 0 {
		return target
	}
	switch {
	case ratio < 1.0-a.Deadband:
		target += a.StepSize
	case ratio > 1.0+a.Deadband:
		target -= a.StepSize
	}
	if target < a.Min {
		target = a.Min
	}
	if target > a.Max {
		target = a.Max
	}
	return target
}
