package sink

import (
	"encoding/json"
	"sync"

	"github.com/ovolkov/benchvision/internal/events"
)

// RunSummary is the end-of-run aggregate.
type RunSummary struct {
	RunID           string             `json:"run_id"`
	Reason          string             `json:"reason"`
	FramesProcessed int64              `json:"frames_processed"`
	FramesDropped   int64              `json:"frames_dropped"`
	VideoTimeS      float64            `json:"video_time_s"`
	StateDurations  map[string]float64 `json:"state_durations_s"`
	Transitions     int                `json:"transitions"`
	MeanLatencyMS   float64            `json:"mean_latency_ms"`
	FinalRatio      float64            `json:"final_ratio"`
}

// Summary accumulates per-state video-time durations and run counters from
// pipeline events. Durations sum to the total analyzed video time: the span
// between a frame and its predecessor is attributed to the state that was in
// effect during that span.
type Summary struct {
	mu     sync.Mutex
	runID  string
	reason string

	durations   map[string]float64
	lastState   string
	lastT       float64
	primed      bool
	firstT      float64
	transitions int

	frames     int64
	dropped    int64
	latencySum float64
	finalRatio float64
}

// NewSummary creates an empty summary for a run.
func NewSummary(runID string) *Summary {
	return &Summary{runID: runID, durations: make(map[string]float64)}
}

// Attach subscribes the summary to the event bus. Returns an unsubscribe
// function.
func (s *Summary) Attach(bus *events.Bus) func() {
	unsubFrame := bus.Subscribe(func(e events.FrameProcessedEvent) { s.Observe(e) })
	unsubDone := bus.Subscribe(func(e events.RunFinishedEvent) { s.Finish(e) })
	return func() {
		unsubFrame()
		unsubDone()
	}
}

// Observe folds one processed frame into the aggregate.
func (s *Summary) Observe(e events.FrameProcessedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames++
	s.latencySum += e.LatencyMS
	s.finalRatio = e.Ratio

	if !s.primed {
		s.primed = true
		s.firstT = e.VideoTimeS
		s.lastT = e.VideoTimeS
		s.lastState = e.State
		return
	}
	if e.VideoTimeS > s.lastT {
		s.durations[s.lastState] += e.VideoTimeS - s.lastT
		s.lastT = e.VideoTimeS
	}
	if e.State != s.lastState {
		s.transitions++
		s.lastState = e.State
	}
}

// Finish records the run totals.
func (s *Summary) Finish(e events.RunFinishedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reason = e.Reason
	s.dropped = e.FramesDropped
}

// Result snapshots the aggregate.
func (s *Summary) Result() RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	durations := make(map[string]float64, len(s.durations))
	for state, d := range s.durations {
		durations[state] = d
	}
	mean := 0.0
	if s.frames > 0 {
		mean = s.latencySum / float64(s.frames)
	}
	return RunSummary{
		RunID:           s.runID,
		Reason:          s.reason,
		FramesProcessed: s.frames,
		FramesDropped:   s.dropped,
		VideoTimeS:      s.lastT - s.firstT,
		StateDurations:  durations,
		Transitions:     s.transitions,
		MeanLatencyMS:   mean,
		FinalRatio:      s.finalRatio,
	}
}

// JSON renders the aggregate for logging and the summary file.
func (s *Summary) JSON() ([]byte, error) {
	return json.MarshalIndent(s.Result(), "", "  ")
}
