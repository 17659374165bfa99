package api

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ovolkov/benchvision/internal/events"
)

// sseMessages connects to an SSE URL and forwards data lines to a channel.
func sseMessages(t *testing.T, url string) (<-chan string, func()) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Failed to connect to SSE: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		resp.Body.Close()
		t.Fatalf("Expected SSE content type, got %s", resp.Header.Get("Content-Type"))
	}

	messageChan := make(chan string, 10)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data:") {
				messageChan <- line
			}
		}
	}()
	return messageChan, func() { resp.Body.Close() }
}

func waitForMessage(t *testing.T, messageChan <-chan string, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-messageChan:
			if strings.Contains(msg, want) {
				return
			}
			// Skip unrelated events (e.g. the connection confirmation)
		case <-deadline:
			t.Fatalf("Timeout waiting for SSE message containing %q", want)
		}
	}
}

func TestSSEConnectionAndEvents(t *testing.T) {
	server, opts := newTestServer(t, "run-sse")
	ts := httptest.NewServer(server.GetMux())
	defer ts.Close()

	credentials := base64.StdEncoding.EncodeToString([]byte(testUser + ":" + testPass))
	messageChan, closeSSE := sseMessages(t, fmt.Sprintf("%s/api/events?auth=%s", ts.URL, credentials))
	defer closeSSE()

	// Initial connection confirmation carries the run ID
	waitForMessage(t, messageChan, "run-sse")

	// A state transition published on the bus reaches the SSE client
	opts.EventBus.Publish(events.StateChangedEvent{
		From:       "OPEN_NORMAL_IDLE",
		To:         "OPEN_VIOLATION",
		Reason:     "no_blocking_idle",
		FrameIndex: 1200,
		VideoTimeS: 48.0,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
	waitForMessage(t, messageChan, "OPEN_VIOLATION")

	// Detector errors are forwarded too
	opts.EventBus.Publish(events.DetectorErrorEvent{
		Channel:    "remote",
		FrameIndex: 1205,
		Error:      "inference request: connection refused",
		Timestamp:  time.Now().Format(time.RFC3339),
	})
	waitForMessage(t, messageChan, "connection refused")
}

func TestSSEMetricsStream(t *testing.T) {
	server, opts := newTestServer(t, "run-sse-metrics")
	ts := httptest.NewServer(server.GetMux())
	defer ts.Close()

	credentials := base64.StdEncoding.EncodeToString([]byte(testUser + ":" + testPass))
	messageChan, closeSSE := sseMessages(t, fmt.Sprintf("%s/api/metrics?auth=%s", ts.URL, credentials))
	defer closeSSE()

	opts.EventBus.Publish(events.FrameProcessedEvent{
		FrameIndex:   300,
		VideoTimeS:   12.0,
		State:        "OPEN_NORMAL_SAMPLING",
		Step:         3,
		Ratio:        0.97,
		LatencyMS:    115.0,
		EMALatencyMS: 109.4,
		Timestamp:    time.Now().Format(time.RFC3339),
	})
	waitForMessage(t, messageChan, `"ema_latency_ms":109.4`)

	opts.EventBus.Publish(events.TuningAppliedEvent{
		Path:        "/etc/benchvision/pipeline.toml",
		TargetRatio: 1.1,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
	waitForMessage(t, messageChan, `"target_ratio":1.1`)
}

func TestSSEAuthFailure(t *testing.T) {
	server, _ := newTestServer(t, "run-sse-auth")
	ts := httptest.NewServer(server.GetMux())
	defer ts.Close()

	// Test without auth
	resp, err := http.Get(fmt.Sprintf("%s/api/events", ts.URL))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", resp.StatusCode)
	}

	// Test with wrong auth
	credentials := base64.StdEncoding.EncodeToString([]byte("wrong:wrong"))
	resp, err = http.Get(fmt.Sprintf("%s/api/events?auth=%s", ts.URL, credentials))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected status 401 for wrong auth, got %d", resp.StatusCode)
	}
}
