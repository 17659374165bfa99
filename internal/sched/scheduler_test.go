package sched

import (
	"math"
	"testing"
)

func TestObserveStepBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WarmupFrames = 2
	cfg.MaxAllowedStep = 7
	s := New(cfg)

	latencies := []float64{0, -5, 10000, 3, 900, 0.001, 50000, 40, 40, 40}
	for i, l := range latencies {
		d := s.Observe(l)
		if d.Step < 1 || d.Step > cfg.MaxAllowedStep {
			t.Fatalf("observation %d: step %d out of [1, %d]", i, d.Step, cfg.MaxAllowedStep)
		}
	}
}

func TestObserveWarmupPinsStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VideoFPS = 30
	cfg.WarmupFrames = 5
	s := New(cfg)

	// Huge cold-start latencies must not produce a skip during warmup.
	for i := 0; i < 5; i++ {
		d := s.Observe(5000)
		if !d.Warmup {
			t.Fatalf("observation %d: expected warmup", i)
		}
		if d.Step != 1 {
			t.Fatalf("observation %d: warmup step = %d, want 1", i, d.Step)
		}
	}

	// First post-warmup decision must reflect only post-warmup latency,
	// not the cold-start spike.
	d := s.Observe(100)
	if d.Warmup {
		t.Fatal("expected warmup to be over")
	}
	if d.Step != 3 {
		t.Fatalf("first post-warmup step = %d, want 3", d.Step)
	}
}

func TestObserveConvergence(t *testing.T) {
	// Constant 100 ms latency at 30 fps with target 1.0 must settle on
	// step 3 (100 / 33.3) and stay there.
	cfg := Config{
		VideoFPS:        30,
		WarmupFrames:    5,
		TargetRatio:     1.0,
		MaxAllowedStep:  12,
		MinStep:         1,
		SmoothingWindow: 3,
	}
	s := New(cfg)

	var last Decision
	for i := 0; i < 50; i++ {
		last = s.Observe(100)
		if i >= 10 && last.Step != 3 {
			t.Fatalf("observation %d: step = %d, want settled 3", i, last.Step)
		}
	}
	if last.Capped {
		t.Fatal("step 3 should not be capped at max 12")
	}
	if math.Abs(last.SmoothStep-3.0) > 0.01 {
		t.Fatalf("smooth step = %f, want ~3.0", last.SmoothStep)
	}
}

func TestObserveTargetRatioScalesStep(t *testing.T) {
	tests := []struct {
		name   string
		target float64
		want   int
	}{
		{"catch up", 2.0, 6},
		{"real time", 1.0, 3},
		{"smooth", 0.5, 2}, // round(1.5)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.VideoFPS = 30
			cfg.WarmupFrames = 0
			cfg.TargetRatio = tt.target
			s := New(cfg)
			var d Decision
			for i := 0; i < 20; i++ {
				d = s.Observe(100)
			}
			if d.Step != tt.want {
				t.Fatalf("step = %d, want %d", d.Step, tt.want)
			}
		})
	}
}

func TestObserveCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VideoFPS = 30
	cfg.WarmupFrames = 0
	cfg.MaxAllowedStep = 4
	s := New(cfg)

	var d Decision
	for i := 0; i < 10; i++ {
		d = s.Observe(1000) // would be step 30
	}
	if d.Step != 4 {
		t.Fatalf("step = %d, want capped 4", d.Step)
	}
	if !d.Capped {
		t.Fatal("expected capped flag")
	}
}

func TestObserveDegenerateConfig(t *testing.T) {
	s := New(Config{VideoFPS: -1, TargetRatio: -1, MaxAllowedStep: 0, MinStep: -3})
	d := s.Observe(-50)
	if d.Step != 1 {
		t.Fatalf("step = %d, want 1", d.Step)
	}
}

func TestRatioTracker(t *testing.T) {
	rt := NewRatioTracker(1.0) // no smoothing, direct ratio

	if rt.Ratio() != 0 {
		t.Fatal("ratio before samples should be 0")
	}

	rt.Record(0, 0)
	rt.Record(1.0, 2.0) // half speed
	if got := rt.Ratio(); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("ratio = %f, want 0.5", got)
	}

	// Too-small wall delta and backwards video time are ignored.
	rt.Record(1.0005, 2.001)
	rt.Record(0.5, 3.0)
	if got := rt.Ratio(); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("ratio after ignored samples = %f, want 0.5", got)
	}

	rt.Record(2.0, 3.0) // full speed over the next second
	if got := rt.Ratio(); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("ratio = %f, want 1.0", got)
	}
}

func TestAutoTunerAdjust(t *testing.T) {
	a := DefaultAutoTuner()

	tests := []struct {
		name   string
		target float64
		ratio  float64
		want   float64
	}{
		{"behind raises target", 1.0, 0.8, 1.05},
		{"ahead lowers target", 1.0, 1.2, 0.95},
		{"deadband holds", 1.0, 1.01, 1.0},
		{"no samples holds", 1.0, 0, 1.0},
		{"clamped at max", 2.0, 0.5, 2.0},
		{"clamped at min", 0.5, 1.5, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Adjust(tt.target, tt.ratio)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Adjust(%f, %f) = %f, want %f", tt.target, tt.ratio, got, tt.want)
			}
		})
	}
}
