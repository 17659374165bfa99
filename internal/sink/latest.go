// Package sink holds the output consumers fed by the pipeline: the
// latest-wins frame buffer the API reads, the CSV work log, and the
// end-of-run summary.
package sink

import (
	"sync"

	"github.com/ovolkov/benchvision/internal/pipeline"
)

// Latest is a single-slot, latest-wins buffer. The worker overwrites the
// slot on every processed frame; readers poll the freshest output and never
// apply backpressure to the pipeline.
type Latest struct {
	mu  sync.RWMutex
	out pipeline.FrameOutput
	ok  bool
}

// NewLatest creates an empty buffer.
func NewLatest() *Latest {
	return &Latest{}
}

// Emit replaces the buffered output. Never blocks.
func (l *Latest) Emit(out pipeline.FrameOutput) {
	l.mu.Lock()
	l.out = out
	l.ok = true
	l.mu.Unlock()
}

// Get returns the most recent output. ok is false before the first frame.
func (l *Latest) Get() (pipeline.FrameOutput, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.out, l.ok
}
