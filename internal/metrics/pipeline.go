// Package metrics provides Prometheus metrics for the analysis pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineStep = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "benchvision",
		Subsystem: "pipeline",
		Name:      "step",
		Help:      "Frame-skip step chosen by the scheduler",
	}, []string{"run_id"})

	pipelineRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "benchvision",
		Subsystem: "pipeline",
		Name:      "realtime_ratio",
		Help:      "Smoothed real-time ratio, video time over wall time",
	}, []string{"run_id"})

	pipelineEMALatency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "benchvision",
		Subsystem: "pipeline",
		Name:      "ema_latency_ms",
		Help:      "Smoothed per-frame processing latency in milliseconds",
	}, []string{"run_id"})

	pipelineStateCode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "benchvision",
		Subsystem: "pipeline",
		Name:      "state_code",
		Help:      "Current activity state encoded as an integer",
	}, []string{"run_id"})

	pipelinePeople = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "benchvision",
		Subsystem: "pipeline",
		Name:      "people_count",
		Help:      "Stable people count",
	}, []string{"run_id"})

	framesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "benchvision",
		Subsystem: "pipeline",
		Name:      "frames_processed_total",
		Help:      "Frames that went through the detector channels",
	}, []string{"run_id"})

	framesDropped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "benchvision",
		Subsystem: "pipeline",
		Name:      "frames_dropped_total",
		Help:      "Frames skipped by the scheduler",
	}, []string{"run_id"})

	detectorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "benchvision",
		Subsystem: "pipeline",
		Name:      "detector_errors_total",
		Help:      "Detector failures substituted with empty observations",
	}, []string{"run_id", "channel"})

	// Local cache for API access.
	runCache   = make(map[string]*RunMetrics)
	runCacheMu sync.RWMutex
)

// stateCodes maps state names to stable numeric codes for the state gauge.
var stateCodes = map[string]float64{
	"CLOSE":                0,
	"OPEN_DANGER":          1,
	"OPEN_VIOLATION":       2,
	"OPEN_NORMAL_SAMPLING": 3,
	"OPEN_NORMAL_IDLE":     4,
	"OPEN_UNKNOWN":         5,
}

// RunMetrics holds current metric values for one run.
type RunMetrics struct {
	Step         int
	Ratio        float64
	EMALatencyMS float64
	State        string
	People       int
	Processed    float64
	Dropped      float64
}

// RecordFrame updates the per-run gauges from one processed frame.
func RecordFrame(runID string, step int, ratio, emaLatencyMS float64, state string, people int) {
	pipelineStep.WithLabelValues(runID).Set(float64(step))
	pipelineRatio.WithLabelValues(runID).Set(ratio)
	pipelineEMALatency.WithLabelValues(runID).Set(emaLatencyMS)
	if code, ok := stateCodes[state]; ok {
		pipelineStateCode.WithLabelValues(runID).Set(code)
	}
	pipelinePeople.WithLabelValues(runID).Set(float64(people))
	framesProcessed.WithLabelValues(runID).Inc()

	updateRun(runID, func(m *RunMetrics) {
		m.Step = step
		m.Ratio = ratio
		m.EMALatencyMS = emaLatencyMS
		m.State = state
		m.People = people
		m.Processed++
	})
}

// RecordDetectorError counts one detector failure.
func RecordDetectorError(runID, channel string) {
	detectorErrors.WithLabelValues(runID, channel).Inc()
}

// SetFramesDropped records the cumulative drop count for a run.
func SetFramesDropped(runID string, count float64) {
	framesDropped.WithLabelValues(runID).Set(count)
	updateRun(runID, func(m *RunMetrics) { m.Dropped = count })
}

// DeleteRunMetrics removes all metrics for a run.
func DeleteRunMetrics(runID string) {
	pipelineStep.DeleteLabelValues(runID)
	pipelineRatio.DeleteLabelValues(runID)
	pipelineEMALatency.DeleteLabelValues(runID)
	pipelineStateCode.DeleteLabelValues(runID)
	pipelinePeople.DeleteLabelValues(runID)
	framesProcessed.DeleteLabelValues(runID)
	framesDropped.DeleteLabelValues(runID)
	detectorErrors.DeletePartialMatch(prometheus.Labels{"run_id": runID})

	runCacheMu.Lock()
	delete(runCache, runID)
	runCacheMu.Unlock()
}

// GetRunMetrics returns current metric values for a run.
func GetRunMetrics(runID string) *RunMetrics {
	runCacheMu.RLock()
	defer runCacheMu.RUnlock()
	if m, ok := runCache[runID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

func updateRun(runID string, fn func(*RunMetrics)) {
	runCacheMu.Lock()
	defer runCacheMu.Unlock()
	m, ok := runCache[runID]
	if !ok {
		m = &RunMetrics{}
		runCache[runID] = m
	}
	fn(m)
}
