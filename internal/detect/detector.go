// Package detect defines the per-frame detector channel abstraction and the
// built-in detector implementations: heuristic brightness and motion
// detectors, a scripted replay detector, and an HTTP client for remote model
// inference.
package detect

import (
	"context"

	"github.com/ovolkov/benchvision/internal/source"
)

// Common tag names produced by the built-in detectors. Remote detectors may
// emit arbitrary labels; the smoother configuration decides which ones matter.
const (
	TagClose      = "close"
	TagBlocking   = "blocking"
	TagNoBlocking = "no_blocking"
	TagSampling   = "sampling"
)

// Box is a detection bounding box in pixel coordinates.
type Box struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	W          int     `json:"w"`
	H          int     `json:"h"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	TrackID    int     `json:"track_id,omitempty"`
}

// Observation is the raw per-frame output of one detector channel.
// Tags maps label to confidence; a label's presence means the detector saw it
// on this frame. TrackIDs carries stable per-person tracker IDs for the
// people-count channel and is empty for detectors without tracking.
type Observation struct {
	Tags     map[string]float64 `json:"tags"`
	TrackIDs []int              `json:"track_ids,omitempty"`
	Boxes    []Box              `json:"boxes,omitempty"`
}

// Empty returns an observation with no tags. Used when a channel is disabled
// or its detector failed on a frame.
func Empty() Observation {
	return Observation{Tags: map[string]float64{}}
}

// Detector analyzes one decoded frame. Implementations must be safe for
// sequential reuse across frames but are never called concurrently.
type Detector interface {
	// Name identifies the channel in logs, metrics, and config.
	Name() string
	// Detect returns the raw observation for the frame. An error means the
	// frame produced no usable observation; the pipeline substitutes an
	// empty one and continues.
	Detect(ctx context.Context, frame *source.FrameSample) (Observation, error)
}
