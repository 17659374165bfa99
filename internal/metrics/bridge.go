package metrics

import "github.com/ovolkov/benchvision/internal/events"

// Bridge subscribes the Prometheus metrics to pipeline events for one run.
// Returns an unsubscribe function. Events carry no run identity; the bridge
// attributes everything it sees to runID, so create one bridge per run.
func Bridge(bus *events.Bus, runID string) func() {
	unsubFrame := bus.Subscribe(func(e events.FrameProcessedEvent) {
		RecordFrame(runID, e.Step, e.Ratio, e.EMALatencyMS, e.State, e.People)
	})
	unsubErr := bus.Subscribe(func(e events.DetectorErrorEvent) {
		RecordDetectorError(runID, e.Channel)
	})
	unsubDone := bus.Subscribe(func(e events.RunFinishedEvent) {
		SetFramesDropped(runID, float64(e.FramesDropped))
	})
	return func() {
		unsubFrame()
		unsubErr()
		unsubDone()
	}
}
