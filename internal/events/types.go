package events

// Event type constants for kelindar/event.
const (
	TypeFrameProcessed uint32 = iota + 1
	TypeStateChanged
	TypeDetectorError
	TypeRunStarted
	TypeRunFinished
	TypeTuningApplied
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// FrameProcessedEvent is published for every frame the worker processes.
// Fields are flattened so SSE clients get a self-contained JSON object.
type FrameProcessedEvent struct {
	FrameIndex   int64           `json:"frame_index" example:"1200" doc:"Source frame index"`
	VideoTimeS   float64         `json:"video_time_s" example:"48.0" doc:"Frame position in video time, seconds"`
	State        string          `json:"state" example:"OPEN_NORMAL_SAMPLING" doc:"Debounced activity state"`
	Reason       string          `json:"reason" example:"blocking_with_sampling" doc:"Rule that produced the state"`
	DurationS    float64         `json:"duration_s" example:"12.4" doc:"Video time spent in the current state"`
	Tags         map[string]bool `json:"tags" doc:"Stable per-tag signals after smoothing"`
	People       int             `json:"people" example:"2" doc:"Stable people count"`
	PeopleOK     bool            `json:"people_ok" example:"true" doc:"Whether the count matches the expected staffing"`
	Step         int             `json:"step" example:"3" doc:"Frame step the scheduler chose for the next cycle"`
	Ratio        float64         `json:"ratio" example:"0.98" doc:"Real-time ratio, video time over wall time"`
	LatencyMS    float64         `json:"latency_ms" example:"112.5" doc:"Wall-clock cost of processing this frame"`
	EMALatencyMS float64         `json:"ema_latency_ms" example:"108.2" doc:"Smoothed processing latency"`
	Timestamp    string          `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameProcessedEvent.
func (e FrameProcessedEvent) Type() uint32 { return TypeFrameProcessed }

// StateChangedEvent is published when the debounced state transitions.
type StateChangedEvent struct {
	From       string  `json:"from" example:"OPEN_NORMAL_IDLE" doc:"Previous state"`
	To         string  `json:"to" example:"OPEN_VIOLATION" doc:"New state"`
	Reason     string  `json:"reason" example:"no_blocking_idle" doc:"Rule that produced the new state"`
	FrameIndex int64   `json:"frame_index" example:"1200" doc:"Frame on which the transition happened"`
	VideoTimeS float64 `json:"video_time_s" example:"48.0" doc:"Video time of the transition, seconds"`
	Timestamp  string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// DetectorErrorEvent is published when a detector channel fails on a frame.
// The pipeline substitutes an empty observation and keeps running.
type DetectorErrorEvent struct {
	Channel    string `json:"channel" example:"remote" doc:"Detector channel name"`
	FrameIndex int64  `json:"frame_index" example:"1200" doc:"Frame the detector failed on"`
	Error      string `json:"error" example:"inference request: connection refused" doc:"Error description"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DetectorErrorEvent.
func (e DetectorErrorEvent) Type() uint32 { return TypeDetectorError }

// RunStartedEvent is published when an analysis run begins.
type RunStartedEvent struct {
	RunID     string  `json:"run_id" example:"7f9c24e8-3b2a-4f0e-9e6d-2a1b3c4d5e6f" doc:"Run identifier"`
	Source    string  `json:"source" example:"/videos/shift-03.mp4" doc:"Video source path or URL"`
	FPS       float64 `json:"fps" example:"25" doc:"Source frame rate"`
	DurationS float64 `json:"duration_s" example:"3600" doc:"Source duration when known, seconds"`
	Timestamp string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RunStartedEvent.
func (e RunStartedEvent) Type() uint32 { return TypeRunStarted }

// RunFinishedEvent is published once when a run drains, fails, or is
// cancelled.
type RunFinishedEvent struct {
	RunID           string  `json:"run_id" example:"7f9c24e8-3b2a-4f0e-9e6d-2a1b3c4d5e6f" doc:"Run identifier"`
	Reason          string  `json:"reason" example:"end_of_stream" doc:"Why the run ended: end_of_stream, cancelled, decode_error"`
	FramesProcessed int64   `json:"frames_processed" example:"30000" doc:"Frames that went through the detectors"`
	FramesDropped   int64   `json:"frames_dropped" example:"60000" doc:"Frames skipped by the scheduler"`
	VideoTimeS      float64 `json:"video_time_s" example:"3600" doc:"Video time covered by the run, seconds"`
	Timestamp       string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RunFinishedEvent.
func (e RunFinishedEvent) Type() uint32 { return TypeRunFinished }

// TuningAppliedEvent is published when the live-tuning watcher applies a
// changed pipeline configuration mid-run.
type TuningAppliedEvent struct {
	Path        string  `json:"path" example:"/etc/benchvision/pipeline.toml" doc:"Config file that changed"`
	TargetRatio float64 `json:"target_ratio" example:"1.1" doc:"Scheduler target ratio now in effect"`
	Timestamp   string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for TuningAppliedEvent.
func (e TuningAppliedEvent) Type() uint32 { return TypeTuningApplied }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"pipeline" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
