package detect

import (
	"context"

	"github.com/ovolkov/benchvision/internal/source"
)

// MotionConfig tunes the frame-differencing activity heuristic.
type MotionConfig struct {
	// PixelDelta is the per-pixel luma change (0-255) that counts as motion.
	PixelDelta float64 `toml:"pixel_delta"`
	// ActiveFraction is the share of sampled pixels that must change for
	// the frame to count as active.
	ActiveFraction float64 `toml:"active_fraction"`
	// SampleStride skips pixels when differencing, matching the brightness
	// detector's speed/accuracy trade.
	SampleStride int `toml:"sample_stride"`
}

// DefaultMotionConfig returns thresholds that pick up hand movement at a
// workstation without reacting to sensor noise.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{PixelDelta: 18.0, ActiveFraction: 0.02, SampleStride: 4}
}

// Motion emits "sampling" when enough pixels changed since the previous
// analyzed frame. The first frame, and any frame after a resolution change,
// only establishes the reference and emits nothing.
type Motion struct {
	cfg  MotionConfig
	prev []float64
	w, h int
}

// NewMotion creates a motion detector.
func NewMotion(cfg MotionConfig) *Motion {
	if cfg.SampleStride < 1 {
		cfg.SampleStride = 1
	}
	return &Motion{cfg: cfg}
}

func (m *Motion) Name() string { return "motion" }

func (m *Motion) Detect(_ context.Context, frame *source.FrameSample) (Observation, error) {
	cur := sampleLuma(frame, m.cfg.SampleStride)
	obs := Empty()

	if m.prev != nil && m.w == frame.Width && m.h == frame.Height {
		changed := 0
		for i := range cur {
			d := cur[i] - m.prev[i]
			if d < 0 {
				d = -d
			}
			if d > m.cfg.PixelDelta {
				changed++
			}
		}
		frac := float64(changed) / float64(len(cur))
		if frac >= m.cfg.ActiveFraction {
			conf := frac / (m.cfg.ActiveFraction * 4)
			if conf > 1 {
				conf = 1
			}
			obs.Tags[TagSampling] = conf
		}
	}

	m.prev = cur
	m.w, m.h = frame.Width, frame.Height
	return obs, nil
}

func sampleLuma(frame *source.FrameSample, stride int) []float64 {
	out := make([]float64, 0, (frame.Width/stride+1)*(frame.Height/stride+1))
	for y := 0; y < frame.Height; y += stride {
		for x := 0; x < frame.Width; x += stride {
			r, g, b := frame.RGB(x, y)
			out = append(out, 0.299*float64(r)+0.587*float64(g)+0.114*float64(b))
		}
	}
	return out
}
