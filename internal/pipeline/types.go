// Package pipeline runs the per-frame analysis chain: detector channels,
// smoothers, and the state engine, driven by a reader/worker pair that skips
// frames under load to stay synchronized with video time.
package pipeline

import (
	"github.com/ovolkov/benchvision/internal/smooth"
	"github.com/ovolkov/benchvision/internal/state"
)

// OffMode selects the substitute signal for a disabled channel.
type OffMode string

const (
	// OffEmpty substitutes an empty observation.
	OffEmpty OffMode = "EMPTY"
	// OffHoldLast repeats the channel's last real observation.
	OffHoldLast OffMode = "HOLD_LAST"
	// OffInject substitutes a configured fixed observation.
	OffInject OffMode = "INJECT"
)

// FrameMetrics carries the scheduling and cost measurements attached to one
// processed frame.
type FrameMetrics struct {
	// Step chosen for the next cycle.
	Step int `json:"step"`
	// RawStep is the unsmoothed step estimate for this frame.
	RawStep float64 `json:"raw_step"`
	// Capped reports whether the step hit the configured maximum.
	Capped bool `json:"capped"`
	// Ratio is the smoothed real-time ratio, video time over wall time.
	Ratio float64 `json:"ratio"`
	// LatencyMS is the wall-clock cost of processing this frame.
	LatencyMS float64 `json:"latency_ms"`
	// EMALatencyMS is the scheduler's smoothed latency estimate.
	EMALatencyMS float64 `json:"ema_latency_ms"`
	// DetectorErrors lists channels that failed on this frame and were
	// substituted with empty observations.
	DetectorErrors []string `json:"detector_errors,omitempty"`
}

// FrameOutput is the complete analysis result for one processed frame.
type FrameOutput struct {
	FrameIndex int64              `json:"frame_index"`
	VideoTimeS float64            `json:"video_time_s"`
	Tags       map[string]bool    `json:"tags"`
	People     smooth.StableCount `json:"people"`
	State      state.Result       `json:"state"`
	Metrics    FrameMetrics       `json:"metrics"`
}

// Sink receives frame outputs from the worker. Emit must not block; the
// single-slot latest-wins buffer in internal/sink is the default
// implementation.
type Sink interface {
	Emit(FrameOutput)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(FrameOutput)

// Emit calls f.
func (f SinkFunc) Emit(out FrameOutput) { f(out) }
