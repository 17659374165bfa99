package smooth

import (
	"reflect"
	"testing"
)

func obs(tags ...string) map[string]float64 {
	m := make(map[string]float64, len(tags))
	for _, t := range tags {
		m[t] = 0.9
	}
	return m
}

func TestTagSmootherThreshold(t *testing.T) {
	s := NewTagSmoother(TagSmootherConfig{
		Thresholds: map[string]Hysteresis{
			"sampling": {OnCount: 3, OffCount: 2},
		},
	})

	// Two agreeing frames are not enough for OnCount=3.
	for i := 0; i < 2; i++ {
		if got := s.Update(obs("sampling")); got["sampling"] {
			t.Fatalf("frame %d: tag active before threshold", i)
		}
	}
	if got := s.Update(obs("sampling")); !got["sampling"] {
		t.Fatal("tag not active after 3 consecutive observations")
	}

	// One missing frame is not enough for OffCount=2.
	if got := s.Update(obs()); !got["sampling"] {
		t.Fatal("tag dropped after a single missing observation")
	}
	if got := s.Update(obs()); got["sampling"] {
		t.Fatal("tag still active after 2 consecutive missing observations")
	}
}

func TestTagSmootherAlternatingNeverFlips(t *testing.T) {
	s := NewTagSmoother(TagSmootherConfig{
		Thresholds: map[string]Hysteresis{
			"close": {OnCount: 3, OffCount: 3},
		},
	})

	for i := 0; i < 40; i++ {
		var raw map[string]float64
		if i%2 == 0 {
			raw = obs("close")
		} else {
			raw = obs()
		}
		if got := s.Update(raw); got["close"] {
			t.Fatalf("frame %d: alternating observations flipped the stable value", i)
		}
	}
}

func TestTagSmootherNoThreeConsecutive(t *testing.T) {
	// With threshold 3 the sequence never reaches 3 consecutive "off"
	// frames, so an established tag must never turn off.
	s := NewTagSmoother(TagSmootherConfig{
		Thresholds: map[string]Hysteresis{
			"sampling": {OnCount: 2, OffCount: 3},
		},
	})

	seq := []bool{true, true, false, true, true, true, true}
	for i, present := range seq {
		raw := obs()
		if present {
			raw = obs("sampling")
		}
		got := s.Update(raw)
		if i >= 1 && !got["sampling"] {
			t.Fatalf("frame %d: tag off, want on throughout", i)
		}
	}
}

func TestTagSmootherExclusivePair(t *testing.T) {
	s := NewTagSmoother(TagSmootherConfig{
		Thresholds: map[string]Hysteresis{
			"blocking":    {OnCount: 1, OffCount: 1},
			"no_blocking": {OnCount: 1, OffCount: 1},
		},
		Exclusive: [][2]string{{"blocking", "no_blocking"}},
	})

	got := s.Update(obs("blocking", "no_blocking"))
	if got["blocking"] {
		t.Fatal("contradictory frame: blocking should be dropped")
	}
	if !got["no_blocking"] {
		t.Fatal("contradictory frame: no_blocking should win")
	}
}

func TestTagSmootherForceOneOf(t *testing.T) {
	s := NewTagSmoother(TagSmootherConfig{
		Thresholds: map[string]Hysteresis{
			"blocking":    {OnCount: 2, OffCount: 2},
			"no_blocking": {OnCount: 2, OffCount: 2},
		},
		ForceOneOf: []string{"blocking", "no_blocking"},
	})

	s.Update(obs("blocking"))
	got := s.Update(obs("blocking"))
	if !got["blocking"] {
		t.Fatal("blocking should be stable")
	}

	// Both counters in limbo: neither tag stable, so the last answer holds.
	s.Update(obs())
	got = s.Update(obs())
	if !got["blocking"] {
		t.Fatal("force_one_of should hold the previous stable tag")
	}
}

func TestSortedTags(t *testing.T) {
	got := SortedTags(map[string]bool{"sampling": true, "close": true})
	want := []string{"close", "sampling"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SortedTags = %v, want %v", got, want)
	}
}
