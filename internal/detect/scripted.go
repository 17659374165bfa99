package detect

import (
	"context"

	"github.com/ovolkov/benchvision/internal/source"
)

// Scripted replays a recorded sequence of observations, one per Detect call.
// Past the end of the script it keeps returning the last entry, so a short
// script describes a steady state. Used by tests and by the inject path for
// disabled channels.
type Scripted struct {
	name   string
	script []Observation
	pos    int
}

// NewScripted creates a replay detector. An empty script always yields
// Empty().
func NewScripted(name string, script []Observation) *Scripted {
	return &Scripted{name: name, script: script}
}

func (s *Scripted) Name() string { return s.name }

func (s *Scripted) Detect(_ context.Context, _ *source.FrameSample) (Observation, error) {
	if len(s.script) == 0 {
		return Empty(), nil
	}
	obs := s.script[s.pos]
	if s.pos < len(s.script)-1 {
		s.pos++
	}
	return obs, nil
}

// Rewind restarts the script from the beginning.
func (s *Scripted) Rewind() { s.pos = 0 }
