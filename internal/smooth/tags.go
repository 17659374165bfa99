// Package smooth turns noisy per-frame detections into stable signals.
// Smoothers operate purely on frame sequence; they never look at the clock.
package smooth

import "sort"

// Hysteresis holds per-tag debounce thresholds. A tag turns on only after
// OnCount consecutive frames observing it, and off only after OffCount
// consecutive frames without it. Asymmetric thresholds let a channel confirm
// appearance slowly and disappearance quickly (or the reverse).
type Hysteresis struct {
	OnCount  int `toml:"on_count"`
	OffCount int `toml:"off_count"`
}

// TagSmootherConfig configures one tag channel.
type TagSmootherConfig struct {
	// Thresholds maps each tracked tag to its hysteresis.
	Thresholds map[string]Hysteresis `toml:"thresholds"`
	// ForceOneOf lists tags of which at least one must always be stable.
	// When the debounced set contains none of them, the previous stable
	// members are held instead of emitting an empty answer.
	ForceOneOf []string `toml:"force_one_of"`
	// Exclusive lists raw tag pairs that contradict each other. When both
	// are observed on the same frame the first is dropped: a detector that
	// reports both "blocking" and "no_blocking" is trusted on the negative.
	Exclusive [][2]string `toml:"exclusive"`
}

// TagState is the debounce state of a single tag, exported for status
// endpoints and logging.
type TagState struct {
	Active     bool    `json:"active"`
	OnCount    int     `json:"on_count"`
	OffCount   int     `json:"off_count"`
	Confidence float64 `json:"confidence"`
}

// TagSmoother debounces a set-valued tag channel.
type TagSmoother struct {
	cfg        TagSmootherConfig
	states     map[string]*TagState
	lastActive map[string]bool
}

// NewTagSmoother creates a smoother tracking exactly the configured tags.
func NewTagSmoother(cfg TagSmootherConfig) *TagSmoother {
	states := make(map[string]*TagState, len(cfg.Thresholds))
	for tag := range cfg.Thresholds {
		states[tag] = &TagState{}
	}
	return &TagSmoother{
		cfg:        cfg,
		states:     states,
		lastActive: make(map[string]bool),
	}
}

// Update consumes one frame's raw observation (tag -> confidence) and
// returns the stable tag set. A stable tag changes only after its
// consecutive-count threshold is reached; a disagreeing observation resets
// the opposing counter.
func (s *TagSmoother) Update(raw map[string]float64) map[string]bool {
	observed := make(map[string]bool, len(raw))
	for tag := range raw {
		observed[tag] = true
	}
	for _, pair := range s.cfg.Exclusive {
		if observed[pair[0]] && observed[pair[1]] {
			delete(observed, pair[0])
		}
	}

	for tag, th := range s.cfg.Thresholds {
		st := s.states[tag]
		if observed[tag] {
			st.OnCount++
			st.OffCount = 0
		} else {
			st.OffCount++
			st.OnCount = 0
		}
		st.Confidence = raw[tag]

		if !st.Active && st.OnCount >= th.OnCount {
			st.Active = true
		}
		if st.Active && st.OffCount >= th.OffCount {
			st.Active = false
		}
	}

	stable := make(map[string]bool)
	for tag, st := range s.states {
		if st.Active {
			stable[tag] = true
		}
	}

	if len(s.cfg.ForceOneOf) > 0 && !anyOf(stable, s.cfg.ForceOneOf) {
		for _, tag := range s.cfg.ForceOneOf {
			if s.lastActive[tag] {
				stable[tag] = true
			}
		}
	}
	if len(stable) > 0 {
		s.lastActive = make(map[string]bool, len(stable))
		for tag := range stable {
			s.lastActive[tag] = true
		}
	}
	return stable
}

// States returns a copy of the per-tag debounce state.
func (s *TagSmoother) States() map[string]TagState {
	out := make(map[string]TagState, len(s.states))
	for tag, st := range s.states {
		out[tag] = *st
	}
	return out
}

func anyOf(set map[string]bool, tags []string) bool {
	for _, tag := range tags {
		if set[tag] {
			return true
		}
	}
	return false
}

// SortedTags flattens a stable tag set into a deterministic slice for
// logging and serialization.
func SortedTags(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for tag := range set {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
