package detect

import (
	"context"

	"github.com/ovolkov/benchvision/internal/source"
)

// BrightnessConfig tunes the closed-cover heuristic.
type BrightnessConfig struct {
	// CloseBelow is the mean luma (0-255) under which the scene counts as
	// closed. A covered or switched-off camera reads near black.
	CloseBelow float64 `toml:"close_below"`
	// SampleStride skips pixels when computing the mean. 1 reads every
	// pixel; higher values trade accuracy for speed on large frames.
	SampleStride int `toml:"sample_stride"`
}

// DefaultBrightnessConfig returns thresholds that treat a mostly-dark frame
// as closed without tripping on normal indoor lighting.
func DefaultBrightnessConfig() BrightnessConfig {
	return BrightnessConfig{CloseBelow: 28.0, SampleStride: 4}
}

// Brightness flags frames whose mean luma falls below a threshold as
// "close". It is the cheapest channel in the default pipeline and never
// fails.
type Brightness struct {
	cfg BrightnessConfig
}

// NewBrightness creates a brightness detector.
func NewBrightness(cfg BrightnessConfig) *Brightness {
	if cfg.SampleStride < 1 {
		cfg.SampleStride = 1
	}
	return &Brightness{cfg: cfg}
}

func (b *Brightness) Name() string { return "brightness" }

func (b *Brightness) Detect(_ context.Context, frame *source.FrameSample) (Observation, error) {
	mean := meanLuma(frame, b.cfg.SampleStride)
	obs := Empty()
	if mean < b.cfg.CloseBelow {
		// Confidence grows as the frame gets darker relative to the cutoff.
		obs.Tags[TagClose] = 1.0 - mean/b.cfg.CloseBelow
	}
	return obs, nil
}

// meanLuma averages Rec.601 luma over the frame, visiting every
// stride-th pixel in both axes.
func meanLuma(frame *source.FrameSample, stride int) float64 {
	if frame.Width == 0 || frame.Height == 0 {
		return 0
	}
	var sum float64
	var n int
	for y := 0; y < frame.Height; y += stride {
		for x := 0; x < frame.Width; x += stride {
			r, g, b := frame.RGB(x, y)
			sum += 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
