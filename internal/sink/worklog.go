package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/ovolkov/benchvision/internal/events"
	"github.com/ovolkov/benchvision/internal/logging"
)

// WorkLogConfig configures the sampled CSV log.
type WorkLogConfig struct {
	// Path of the CSV file. Empty disables the work log.
	Path string `toml:"path"`
	// IntervalS is the video-time sampling interval in seconds.
	IntervalS float64 `toml:"interval_s"`
}

// DefaultWorkLogConfig returns a disabled work log sampled at 60 s of video
// time once a path is set.
func DefaultWorkLogConfig() WorkLogConfig {
	return WorkLogConfig{IntervalS: 60}
}

// WorkLog writes one CSV row per video-time interval: the state, blocking
// signal, and people count in effect when the interval boundary was crossed.
// It consumes FrameProcessedEvents off the bus, so a slow disk never stalls
// the worker.
type WorkLog struct {
	mu    sync.Mutex
	runID string
	file  *os.File
	w     *csv.Writer

	interval float64
	nextT    float64
	primed   bool
	logger   logging.Logger
}

// NewWorkLog opens the CSV file and writes the header row.
func NewWorkLog(cfg WorkLogConfig, runID string) (*WorkLog, error) {
	if cfg.IntervalS <= 0 {
		cfg.IntervalS = 60
	}
	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("create work log: %w", err)
	}
	w := csv.NewWriter(f)
	header := []string{"run_id", "video_time_s", "state", "blocking", "people", "people_ok"}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write work log header: %w", err)
	}
	w.Flush()
	return &WorkLog{
		runID:    runID,
		file:     f,
		w:        w,
		interval: cfg.IntervalS,
		logger:   logging.GetLogger("worklog"),
	}, nil
}

// Attach subscribes the work log to the event bus. Returns an unsubscribe
// function; call Close separately to flush the file.
func (l *WorkLog) Attach(bus *events.Bus) func() {
	return bus.Subscribe(func(e events.FrameProcessedEvent) {
		if err := l.Record(e); err != nil {
			l.logger.Warn("work log write failed", "error", err)
		}
	})
}

// Record writes a row for every interval boundary the frame crossed. The
// first frame sets the sampling origin without writing.
func (l *WorkLog) Record(e events.FrameProcessedEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.primed {
		l.primed = true
		l.nextT = e.VideoTimeS + l.interval
		return nil
	}
	for e.VideoTimeS >= l.nextT {
		row := []string{
			l.runID,
			strconv.FormatFloat(l.nextT, 'f', 3, 64),
			e.State,
			strconv.FormatBool(e.Tags["blocking"]),
			strconv.Itoa(e.People),
			strconv.FormatBool(e.PeopleOK),
		}
		if err := l.w.Write(row); err != nil {
			return err
		}
		l.nextT += l.interval
	}
	l.w.Flush()
	return l.w.Error()
}

// Close flushes and closes the file.
func (l *WorkLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
