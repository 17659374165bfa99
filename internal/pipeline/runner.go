package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ovolkov/benchvision/internal/detect"
	"github.com/ovolkov/benchvision/internal/events"
	"github.com/ovolkov/benchvision/internal/logging"
	"github.com/ovolkov/benchvision/internal/smooth"
	"github.com/ovolkov/benchvision/internal/source"
	"github.com/ovolkov/benchvision/internal/state"
)

// Channel wraps one detector with its enable state and off-mode.
type Channel struct {
	Detector detect.Detector
	OffMode  OffMode
	// Inject is the observation substituted when OffMode is INJECT.
	Inject detect.Observation

	enabled bool
	last    detect.Observation
}

// NewChannel creates an enabled channel with the given off-mode.
func NewChannel(d detect.Detector, mode OffMode) *Channel {
	if mode == "" {
		mode = OffEmpty
	}
	return &Channel{Detector: d, OffMode: mode, enabled: true}
}

// SetEnabled sets the initial enable state. Once a runner owns the channel,
// use Runner.EnableChannel instead.
func (c *Channel) SetEnabled(on bool) { c.enabled = on }

// Runner executes the analysis chain for one frame at a time. It is owned by
// the processing worker; only the channel enable flags may be touched from
// other goroutines, via EnableChannel.
type Runner struct {
	mu       sync.Mutex
	channels []*Channel

	tags   *smooth.TagSmoother
	people *smooth.CountSmoother
	engine *state.Engine
	bus    *events.Bus
	logger logging.Logger
}

// NewRunner assembles a runner. The bus may be nil in tests; events are then
// skipped.
func NewRunner(channels []*Channel, tags *smooth.TagSmoother, people *smooth.CountSmoother, engine *state.Engine, bus *events.Bus) *Runner {
	return &Runner{
		channels: channels,
		tags:     tags,
		people:   people,
		engine:   engine,
		bus:      bus,
		logger:   logging.GetLogger("pipeline"),
	}
}

// EnableChannel toggles a detector channel by name. Returns false if no
// channel has that name.
func (r *Runner) EnableChannel(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.channels {
		if ch.Detector.Name() == name {
			ch.enabled = enabled
			return true
		}
	}
	return false
}

// Channels reports each channel's name and enable state.
func (r *Runner) Channels() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.channels))
	for _, ch := range r.channels {
		out[ch.Detector.Name()] = ch.enabled
	}
	return out
}

// Process runs one frame through every channel, the smoothers, and the state
// engine. Detector failures are recovered: the channel contributes an empty
// observation, the failure is recorded in the output metrics, and a
// DetectorErrorEvent is published. The only returned error is context
// cancellation.
func (r *Runner) Process(ctx context.Context, frame *source.FrameSample) (FrameOutput, error) {
	if err := ctx.Err(); err != nil {
		return FrameOutput{}, err
	}

	merged := map[string]float64{}
	var trackIDs []int
	var failed []string

	r.mu.Lock()
	channels := make([]*Channel, len(r.channels))
	copy(channels, r.channels)
	r.mu.Unlock()

	for _, ch := range channels {
		obs, err := r.observe(ctx, ch, frame)
		if err != nil {
			failed = append(failed, ch.Detector.Name())
			r.logger.Warn("detector failed, substituting empty observation",
				"channel", ch.Detector.Name(), "frame", frame.Index, "error", err)
			if r.bus != nil {
				r.bus.Publish(events.DetectorErrorEvent{
					Channel:    ch.Detector.Name(),
					FrameIndex: frame.Index,
					Error:      err.Error(),
					Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
				})
			}
			obs = detect.Empty()
		}
		for tag, conf := range obs.Tags {
			if conf > merged[tag] {
				merged[tag] = conf
			}
		}
		trackIDs = append(trackIDs, obs.TrackIDs...)
	}

	stable := r.tags.Update(merged)
	people := r.people.Update(trackIDs)
	res := r.engine.Compute(stable, frame.VideoTimeS)

	return FrameOutput{
		FrameIndex: frame.Index,
		VideoTimeS: frame.VideoTimeS,
		Tags:       stable,
		People:     people,
		State:      res,
		Metrics:    FrameMetrics{DetectorErrors: failed},
	}, nil
}

// observe resolves one channel's observation for the frame, honoring the
// enable flag and off-mode.
func (r *Runner) observe(ctx context.Context, ch *Channel, frame *source.FrameSample) (detect.Observation, error) {
	r.mu.Lock()
	enabled := ch.enabled
	r.mu.Unlock()

	if !enabled {
		switch ch.OffMode {
		case OffHoldLast:
			if ch.last.Tags != nil {
				return ch.last, nil
			}
			return detect.Empty(), nil
		case OffInject:
			if ch.Inject.Tags == nil {
				return detect.Empty(), nil
			}
			return ch.Inject, nil
		default:
			return detect.Empty(), nil
		}
	}

	obs, err := ch.Detector.Detect(ctx, frame)
	if err != nil {
		return detect.Empty(), fmt.Errorf("detect: %w", err)
	}
	ch.last = obs
	return obs, nil
}
