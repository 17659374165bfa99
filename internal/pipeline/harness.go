package pipeline

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/ovolkov/benchvision/internal/events"
	"github.com/ovolkov/benchvision/internal/logging"
	"github.com/ovolkov/benchvision/internal/sched"
	"github.com/ovolkov/benchvision/internal/source"
)

// HarnessConfig tunes the reader/worker pair.
type HarnessConfig struct {
	// QueueSlack is added to the scheduler's MaxAllowedStep to size the
	// frame queue. The slack keeps the reader decoding while the worker is
	// mid-frame without letting the queue grow stale.
	QueueSlack int `toml:"queue_slack"`
	// AutoTarget enables the target-ratio tuner.
	AutoTarget bool `toml:"auto_target"`
	// AdjustEvery is the number of processed frames between auto-target
	// adjustments.
	AdjustEvery int `toml:"adjust_every"`
}

// DefaultHarnessConfig returns harness defaults.
func DefaultHarnessConfig() HarnessConfig {
	return HarnessConfig{QueueSlack: 2, AdjustEvery: 25}
}

// Run end reasons reported in Stats and RunFinishedEvent.
const (
	ReasonEndOfStream = "end_of_stream"
	ReasonCancelled   = "cancelled"
	ReasonDecodeError = "decode_error"
)

// Stats summarizes a finished run.
type Stats struct {
	RunID          string  `json:"run_id"`
	Reason         string  `json:"reason"`
	Processed      int64   `json:"processed"`
	Dropped        int64   `json:"dropped"`
	LastVideoTimeS float64 `json:"last_video_time_s"`
	WallTimeS      float64 `json:"wall_time_s"`
}

// Harness couples a sequential decoder to the processing worker through a
// bounded queue. The reader blocks when the queue fills; the worker discards
// step-1 queued frames after each processed one, which is what realizes the
// scheduler's skip.
type Harness struct {
	cfg    HarnessConfig
	src    source.Source
	runner *Runner
	sched  *sched.Scheduler
	tuner  sched.AutoTuner
	sink   Sink
	bus    *events.Bus
	logger logging.Logger
	runID  string
}

// NewHarness creates a harness. Sink and bus may be nil.
func NewHarness(cfg HarnessConfig, src source.Source, runner *Runner, scheduler *sched.Scheduler, sink Sink, bus *events.Bus) *Harness {
	if cfg.QueueSlack < 0 {
		cfg.QueueSlack = 0
	}
	if cfg.AdjustEvery < 1 {
		cfg.AdjustEvery = 25
	}
	return &Harness{
		cfg:    cfg,
		src:    src,
		runner: runner,
		sched:  scheduler,
		tuner:  sched.DefaultAutoTuner(),
		sink:   sink,
		bus:    bus,
		logger: logging.GetLogger("pipeline"),
		runID:  uuid.NewString(),
	}
}

// RunID returns the identifier stamped on this run's events and outputs.
func (h *Harness) RunID() string { return h.runID }

// Run drives the pipeline until end of stream, decode failure, or context
// cancellation. It always returns final Stats; the error is non-nil only for
// decode failures and cancellation.
func (h *Harness) Run(ctx context.Context) (Stats, error) {
	queueCap := h.sched.Config().MaxAllowedStep + h.cfg.QueueSlack
	frames := make(chan *source.FrameSample, queueCap)
	readErr := make(chan error, 1)

	info := h.src.Info()
	h.publish(events.RunStartedEvent{
		RunID:     h.runID,
		Source:    info.Path,
		FPS:       info.FPS,
		DurationS: info.Duration,
		Timestamp: now(),
	})
	h.logger.Info("run started",
		"run_id", h.runID, "source", info.Path,
		"fps", info.FPS, "queue_cap", queueCap)

	go h.read(ctx, frames, readErr)

	stats := Stats{RunID: h.runID, Reason: ReasonEndOfStream}
	start := time.Now()
	sinceAdjust := 0

worker:
	for frame := range frames {
		t0 := time.Now()
		out, err := h.runner.Process(ctx, frame)
		if err != nil {
			stats.Reason = ReasonCancelled
			break
		}
		latencyMS := float64(time.Since(t0)) / float64(time.Millisecond)

		h.sched.RecordProgress(frame.VideoTimeS, time.Since(start).Seconds())
		d := h.sched.Observe(latencyMS)

		out.Metrics.Step = d.Step
		out.Metrics.RawStep = d.RawStep
		out.Metrics.Capped = d.Capped
		out.Metrics.Ratio = d.Ratio
		out.Metrics.LatencyMS = latencyMS
		out.Metrics.EMALatencyMS = h.sched.EMALatencyMS()

		// Nothing leaves the pipeline once the run is cancelled.
		if ctx.Err() != nil {
			stats.Reason = ReasonCancelled
			break
		}
		if h.sink != nil {
			h.sink.Emit(out)
		}
		stats.Processed++
		stats.LastVideoTimeS = frame.VideoTimeS
		h.publishFrame(out)

		if h.cfg.AutoTarget {
			sinceAdjust++
			if sinceAdjust >= h.cfg.AdjustEvery && d.Ratio > 0 {
				target := h.tuner.Adjust(h.sched.Config().TargetRatio, d.Ratio)
				h.sched.SetTargetRatio(target)
				sinceAdjust = 0
			}
		}

		// Skip step-1 frames without blocking. A slow reader means fewer
		// frames to discard, never a stall here.
	discard:
		for i := 0; i < d.Step-1; i++ {
			select {
			case skipped, ok := <-frames:
				if !ok {
					break worker
				}
				stats.Dropped++
				stats.LastVideoTimeS = skipped.VideoTimeS
			default:
				break discard
			}
		}
	}

	err := <-readErr
	stats.WallTimeS = time.Since(start).Seconds()
	switch {
	case stats.Reason == ReasonCancelled:
		err = context.Canceled
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		stats.Reason = ReasonCancelled
	case err != nil:
		stats.Reason = ReasonDecodeError
	}

	h.publish(events.RunFinishedEvent{
		RunID:           h.runID,
		Reason:          stats.Reason,
		FramesProcessed: stats.Processed,
		FramesDropped:   stats.Dropped,
		VideoTimeS:      stats.LastVideoTimeS,
		Timestamp:       now(),
	})
	h.logger.Info("run finished",
		"run_id", h.runID, "reason", stats.Reason,
		"processed", stats.Processed, "dropped", stats.Dropped,
		"video_time_s", stats.LastVideoTimeS, "wall_time_s", stats.WallTimeS)
	return stats, err
}

// read decodes sequentially into the frame queue, blocking when it is full.
// It owns closing the queue and always reports exactly one result.
func (h *Harness) read(ctx context.Context, frames chan<- *source.FrameSample, result chan<- error) {
	defer close(frames)
	for {
		frame, err := h.src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				result <- nil
			} else {
				result <- err
			}
			return
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			result <- ctx.Err()
			return
		}
	}
}

func (h *Harness) publishFrame(out FrameOutput) {
	if h.bus == nil {
		return
	}
	ts := now()
	h.bus.Publish(events.FrameProcessedEvent{
		FrameIndex:   out.FrameIndex,
		VideoTimeS:   out.VideoTimeS,
		State:        string(out.State.State),
		Reason:       out.State.Reason,
		DurationS:    out.State.Duration,
		Tags:         out.Tags,
		People:       out.People.Count,
		PeopleOK:     out.People.OK,
		Step:         out.Metrics.Step,
		Ratio:        out.Metrics.Ratio,
		LatencyMS:    out.Metrics.LatencyMS,
		EMALatencyMS: out.Metrics.EMALatencyMS,
		Timestamp:    ts,
	})
	if out.State.Changed {
		h.bus.Publish(events.StateChangedEvent{
			From:       string(out.State.Previous),
			To:         string(out.State.State),
			Reason:     out.State.Reason,
			FrameIndex: out.FrameIndex,
			VideoTimeS: out.VideoTimeS,
			Timestamp:  ts,
		})
	}
}

func (h *Harness) publish(ev events.Event) {
	if h.bus != nil {
		h.bus.Publish(ev)
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
