package smooth

// CountSmootherConfig configures the people-count channel.
type CountSmootherConfig struct {
	// ExpectedPeople is the count considered normal for the scene.
	ExpectedPeople int `toml:"expected_people"`
	// MaxIDAge is how many frames a track ID survives without being seen.
	MaxIDAge int `toml:"max_id_age"`
	// ActiveIDAge is the maximum age for an ID to count toward the total.
	ActiveIDAge int `toml:"active_id_age"`
	// MinTrackHits is the minimum sightings before an ID counts.
	MinTrackHits int `toml:"min_track_hits"`
	// VoteWindow is the number of recent counts participating in the vote.
	VoteWindow int `toml:"vote_window"`
	// AcceptExpected is the vote share required to adopt ExpectedPeople.
	AcceptExpected float64 `toml:"accept_expected"`
	// AcceptOther is the vote share required to adopt any other count.
	// Higher than AcceptExpected: leaving the normal count needs more proof.
	AcceptOther float64 `toml:"accept_other"`
	// HoldOut delays switching away from ExpectedPeople, in frames.
	HoldOut int `toml:"hold_out"`
	// HoldBack delays switching back to ExpectedPeople, in frames.
	HoldBack int `toml:"hold_back"`
}

// DefaultCountSmootherConfig returns thresholds tuned for a two-person
// station watched at a handful of inferences per second.
func DefaultCountSmootherConfig() CountSmootherConfig {
	return CountSmootherConfig{
		ExpectedPeople: 2,
		MaxIDAge:       20,
		ActiveIDAge:    8,
		MinTrackHits:   3,
		VoteWindow:     25,
		AcceptExpected: 0.60,
		AcceptOther:    0.80,
		HoldOut:        20,
		HoldBack:       8,
	}
}

// StableCount is the smoothed people-count signal.
type StableCount struct {
	Count int  `json:"count"`
	OK    bool `json:"ok"`
}

type trackInfo struct {
	lastSeen int
	hits     int
}

// CountSmoother debounces a people count derived from tracker IDs. Raw
// counts vote over a sliding window; switching away from the expected count
// additionally requires a hold period so a few bad frames cannot flip the
// signal.
type CountSmoother struct {
	cfg    CountSmootherConfig
	frame  int
	tracks map[int]*trackInfo

	votes       []int
	stableCount int
	outCounter  int
	backCounter int
}

// NewCountSmoother creates a count smoother.
func NewCountSmoother(cfg CountSmootherConfig) *CountSmoother {
	if cfg.VoteWindow < 1 {
		cfg.VoteWindow = 1
	}
	return &CountSmoother{
		cfg:    cfg,
		tracks: make(map[int]*trackInfo),
	}
}

// Update consumes the track IDs active on one frame and returns the stable
// count. IDs must be stable across frames for the same person (tracker IDs,
// not detection indices).
func (s *CountSmoother) Update(activeIDs []int) StableCount {
	s.frame++
	for _, id := range activeIDs {
		tr := s.tracks[id]
		if tr == nil {
			tr = &trackInfo{}
			s.tracks[id] = tr
		}
		tr.lastSeen = s.frame
		tr.hits++
	}

	countRaw := 0
	for id, tr := range s.tracks {
		age := s.frame - tr.lastSeen
		if age > s.cfg.MaxIDAge {
			delete(s.tracks, id)
			continue
		}
		if age <= s.cfg.ActiveIDAge && tr.hits >= s.cfg.MinTrackHits {
			countRaw++
		}
	}

	stable := s.vote(countRaw)
	return StableCount{Count: stable, OK: stable == s.cfg.ExpectedPeople}
}

// vote applies the windowed majority vote with hold counters.
func (s *CountSmoother) vote(countRaw int) int {
	s.votes = append(s.votes, countRaw)
	if len(s.votes) > s.cfg.VoteWindow {
		s.votes = s.votes[1:]
	}

	freq := make(map[int]int, len(s.votes))
	for _, c := range s.votes {
		freq[c]++
	}
	total := len(s.votes)
	shareExpected := float64(freq[s.cfg.ExpectedPeople]) / float64(total)

	candidate := s.stableCount
	if candidate == 0 {
		candidate = countRaw
	}
	switch {
	case shareExpected >= s.cfg.AcceptExpected:
		candidate = s.cfg.ExpectedPeople
	case 1.0-shareExpected >= s.cfg.AcceptOther:
		best, bestFreq := candidate, 0
		for c, f := range freq {
			if c == s.cfg.ExpectedPeople {
				continue
			}
			if f > bestFreq || (f == bestFreq && c > best) {
				best, bestFreq = c, f
			}
		}
		if bestFreq > 0 {
			candidate = best
		}
	}

	if s.stableCount == 0 {
		s.stableCount = candidate
		return s.stableCount
	}
	if candidate == s.stableCount {
		s.outCounter = 0
		s.backCounter = 0
		return s.stableCount
	}

	expected := s.cfg.ExpectedPeople
	switch {
	case s.stableCount == expected && candidate != expected:
		s.outCounter++
		s.backCounter = 0
		if s.outCounter >= s.cfg.HoldOut {
			s.stableCount = candidate
			s.outCounter = 0
		}
	case s.stableCount != expected && candidate == expected:
		s.backCounter++
		s.outCounter = 0
		if s.backCounter >= s.cfg.HoldBack {
			s.stableCount = candidate
			s.backCounter = 0
		}
	default:
		s.outCounter = 0
		s.backCounter = 0
		s.stableCount = candidate
	}
	return s.stableCount
}
