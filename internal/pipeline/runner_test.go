package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/ovolkov/benchvision/internal/detect"
	"github.com/ovolkov/benchvision/internal/events"
	"github.com/ovolkov/benchvision/internal/smooth"
	"github.com/ovolkov/benchvision/internal/source"
	"github.com/ovolkov/benchvision/internal/state"
)

// immediateSmoother builds a tag smoother whose thresholds are 1/1, so raw
// observations pass straight through.
func immediateSmoother(tags ...string) *smooth.TagSmoother {
	th := map[string]smooth.Hysteresis{}
	for _, tag := range tags {
		th[tag] = smooth.Hysteresis{OnCount: 1, OffCount: 1}
	}
	return smooth.NewTagSmoother(smooth.TagSmootherConfig{Thresholds: th})
}

func immediateCounter() *smooth.CountSmoother {
	cfg := smooth.DefaultCountSmootherConfig()
	cfg.MinTrackHits = 1
	cfg.ActiveIDAge = 0
	cfg.VoteWindow = 1
	cfg.HoldOut = 1
	cfg.HoldBack = 1
	return smooth.NewCountSmoother(cfg)
}

type failingDetector struct{ name string }

func (d *failingDetector) Name() string { return d.name }
func (d *failingDetector) Detect(context.Context, *source.FrameSample) (detect.Observation, error) {
	return detect.Empty(), errors.New("model offline")
}

func frameAt(idx int64, t float64) *source.FrameSample {
	return &source.FrameSample{Index: idx, VideoTimeS: t, Width: 1, Height: 1, Pixels: []byte{0, 0, 0}}
}

func newTestRunner(channels []*Channel, bus *events.Bus) *Runner {
	return NewRunner(channels,
		immediateSmoother(detect.TagClose, detect.TagBlocking, detect.TagNoBlocking, detect.TagSampling),
		immediateCounter(),
		state.NewEngine(state.Config{}),
		bus)
}

func TestProcessMergesChannels(t *testing.T) {
	chans := []*Channel{
		NewChannel(detect.NewScripted("a", []detect.Observation{
			{Tags: map[string]float64{detect.TagBlocking: 0.9}},
		}), OffEmpty),
		NewChannel(detect.NewScripted("b", []detect.Observation{
			{Tags: map[string]float64{detect.TagSampling: 0.8}, TrackIDs: []int{1, 2}},
		}), OffEmpty),
	}
	r := newTestRunner(chans, nil)

	out, err := r.Process(context.Background(), frameAt(0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !out.Tags[detect.TagBlocking] || !out.Tags[detect.TagSampling] {
		t.Fatalf("tags not merged: %v", out.Tags)
	}
	if out.State.State != state.StateOpenNormalSampling {
		t.Fatalf("state = %s", out.State.State)
	}
	if out.People.Count != 2 {
		t.Fatalf("people = %d", out.People.Count)
	}
}

func TestProcessDetectorFailureRecovers(t *testing.T) {
	bus := events.New()
	errCh := make(chan events.DetectorErrorEvent, 1)
	unsub := bus.Subscribe(func(e events.DetectorErrorEvent) { errCh <- e })
	defer unsub()

	chans := []*Channel{
		NewChannel(&failingDetector{name: "remote"}, OffEmpty),
		NewChannel(detect.NewScripted("ok", []detect.Observation{
			{Tags: map[string]float64{detect.TagClose: 1}},
		}), OffEmpty),
	}
	r := newTestRunner(chans, bus)

	out, err := r.Process(context.Background(), frameAt(7, 0.28))
	if err != nil {
		t.Fatalf("detector failure must not fail Process: %v", err)
	}
	if len(out.Metrics.DetectorErrors) != 1 || out.Metrics.DetectorErrors[0] != "remote" {
		t.Fatalf("detector errors: %v", out.Metrics.DetectorErrors)
	}
	// The healthy channel still drives the state.
	if out.State.State != state.StateClose {
		t.Fatalf("state = %s", out.State.State)
	}

	ev := <-errCh
	if ev.Channel != "remote" || ev.FrameIndex != 7 {
		t.Fatalf("event: %+v", ev)
	}
}

func TestProcessContextCancelled(t *testing.T) {
	r := newTestRunner(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Process(ctx, frameAt(0, 0)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestOffModes(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		ch := NewChannel(detect.NewScripted("c", []detect.Observation{
			{Tags: map[string]float64{detect.TagClose: 1}},
		}), OffEmpty)
		r := newTestRunner([]*Channel{ch}, nil)

		r.EnableChannel("c", false)
		out, _ := r.Process(context.Background(), frameAt(0, 0))
		if out.Tags[detect.TagClose] {
			t.Fatalf("disabled EMPTY channel leaked tags: %v", out.Tags)
		}
	})

	t.Run("hold_last", func(t *testing.T) {
		ch := NewChannel(detect.NewScripted("c", []detect.Observation{
			{Tags: map[string]float64{detect.TagClose: 1}},
		}), OffHoldLast)
		r := newTestRunner([]*Channel{ch}, nil)

		// One live frame records the observation, then the channel goes off.
		r.Process(context.Background(), frameAt(0, 0))
		r.EnableChannel("c", false)
		out, _ := r.Process(context.Background(), frameAt(1, 0.04))
		if !out.Tags[detect.TagClose] {
			t.Fatalf("HOLD_LAST dropped the held observation: %v", out.Tags)
		}
	})

	t.Run("inject", func(t *testing.T) {
		ch := NewChannel(detect.NewScripted("c", nil), OffInject)
		ch.Inject = detect.Observation{Tags: map[string]float64{detect.TagBlocking: 1}}
		r := newTestRunner([]*Channel{ch}, nil)

		r.EnableChannel("c", false)
		out, _ := r.Process(context.Background(), frameAt(0, 0))
		if !out.Tags[detect.TagBlocking] {
			t.Fatalf("INJECT observation missing: %v", out.Tags)
		}
	})
}

func TestEnableChannelUnknownName(t *testing.T) {
	r := newTestRunner(nil, nil)
	if r.EnableChannel("nope", false) {
		t.Fatal("unknown channel reported as toggled")
	}
}
