// Package state classifies stable detection signals into a single
// operational state and tracks how long the state has been held in
// video time.
package state

// State is the discretized activity classification.
type State string

const (
	// StateClose means the enclosure/hood is closed.
	StateClose State = "CLOSE"
	// StateOpenDanger means open without blocking while sampling is active.
	StateOpenDanger State = "OPEN_DANGER"
	// StateOpenViolation means open without blocking and no sampling.
	StateOpenViolation State = "OPEN_VIOLATION"
	// StateOpenNormalSampling means open, properly blocked, sampling.
	StateOpenNormalSampling State = "OPEN_NORMAL_SAMPLING"
	// StateOpenNormalIdle means open, properly blocked, idle.
	StateOpenNormalIdle State = "OPEN_NORMAL_IDLE"
	// StateOpenUnknown is the default when signals do not match any rule.
	StateOpenUnknown State = "OPEN_UNKNOWN"
)

// Config holds state engine tuning.
type Config struct {
	// DebounceK requires K consecutive identical classifications before
	// the published state changes. 1 disables the extra debounce; the
	// smoothers already provide per-signal hysteresis.
	DebounceK int `toml:"debounce_k"`
}

// Result is the engine's answer for one frame.
type Result struct {
	// State is the published (debounced) state.
	State State `json:"state"`
	// Previous is the state before this frame; equal to State when nothing
	// changed.
	Previous State `json:"previous"`
	// Raw is the classification before debouncing.
	Raw State `json:"raw"`
	// Reason names the rule that matched, for logs and reports.
	Reason string `json:"reason"`
	// EnteredAtVideoTime is the video time when State was entered.
	EnteredAtVideoTime float64 `json:"entered_at_video_time_s"`
	// Duration is the video time spent in State, never wall time.
	Duration float64 `json:"duration_s"`
	// Changed reports whether this frame transitioned the state.
	Changed bool `json:"changed"`
}

// Engine is a deterministic state machine over stable tag signals.
// Single-writer: the processing worker owns it.
type Engine struct {
	cfg Config

	current      State
	started      bool
	enteredAt    float64
	lastVideoT   float64
	duration     float64
	pending      State
	pendingCount int
}

// NewEngine creates an engine in the idle/default state.
func NewEngine(cfg Config) *Engine {
	if cfg.DebounceK < 1 {
		cfg.DebounceK = 1
	}
	return &Engine{cfg: cfg, current: StateOpenUnknown}
}

// classify evaluates the rules in priority order; the first match wins.
// Safety-relevant conditions outrank normal operation, so a simultaneous
// close+sampling frame resolves to CLOSE.
func classify(tags map[string]bool) (State, string) {
	blocking := tags["blocking"]
	noBlocking := tags["no_blocking"]
	if blocking && noBlocking {
		blocking = false
	}

	switch {
	case tags["close"]:
		return StateClose, "close"
	case noBlocking && tags["sampling"]:
		return StateOpenDanger, "no_blocking+sampling"
	case noBlocking:
		return StateOpenViolation, "no_blocking+no_sampling"
	case blocking && tags["sampling"]:
		return StateOpenNormalSampling, "blocking+sampling"
	case blocking:
		return StateOpenNormalIdle, "blocking+no_sampling"
	}
	return StateOpenUnknown, "open_missing_blocking"
}

// Compute classifies one frame's stable tags at the given video time and
// updates duration accounting. Duration is fed by video time deltas, not
// wall time, so skipped frames are attributed correctly.
func (e *Engine) Compute(tags map[string]bool, videoTimeS float64) Result {
	raw, reason := classify(tags)
	next := e.debounce(raw)

	if !e.started {
		prev := e.current
		e.started = true
		e.current = next
		e.enteredAt = videoTimeS
		e.lastVideoT = videoTimeS
		e.duration = 0
		return Result{State: next, Previous: prev, Raw: raw, Reason: reason, EnteredAtVideoTime: videoTimeS, Changed: true}
	}

	prev := e.current
	changed := next != e.current
	if changed {
		e.current = next
		e.enteredAt = videoTimeS
		e.duration = 0
	} else if videoTimeS > e.lastVideoT {
		e.duration += videoTimeS - e.lastVideoT
	}
	e.lastVideoT = videoTimeS

	return Result{
		State:              e.current,
		Previous:           prev,
		Raw:                raw,
		Reason:             reason,
		EnteredAtVideoTime: e.enteredAt,
		Duration:           e.duration,
		Changed:            changed,
	}
}

// debounce requires DebounceK consecutive identical raw classifications
// before adopting a new state.
func (e *Engine) debounce(raw State) State {
	if e.cfg.DebounceK <= 1 || !e.started {
		e.pending = ""
		e.pendingCount = 0
		return raw
	}
	if raw == e.current {
		e.pending = ""
		e.pendingCount = 0
		return e.current
	}
	if raw != e.pending {
		e.pending = raw
		e.pendingCount = 1
		return e.current
	}
	e.pendingCount++
	if e.pendingCount >= e.cfg.DebounceK {
		e.pending = ""
		e.pendingCount = 0
		return raw
	}
	return e.current
}

// Current returns the published state without advancing time.
func (e *Engine) Current() State { return e.current }
