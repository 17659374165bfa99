package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/ovolkov/benchvision/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	// Register SSE endpoint with event type mapping
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time event stream for frame results, state transitions, detector errors, and run lifecycle",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"frame-processed": events.FrameProcessedEvent{},
		"state-changed":   events.StateChangedEvent{},
		"detector-error":  events.DetectorErrorEvent{},
		"run-started":     events.RunStartedEvent{},
		"run-finished":    events.RunFinishedEvent{},
		"tuning-applied":  events.TuningAppliedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Create event channel for this connection
		eventCh := make(chan any, 10)

		// Subscribe to all event types using event bus
		unsubscribers := []func(){
			events.SubscribeToChannel[events.FrameProcessedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.StateChangedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.DetectorErrorEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.RunStartedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.RunFinishedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.TuningAppliedEvent](s.options.EventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Send initial connection confirmation
		if err := send.Data(events.RunStartedEvent{
			RunID:     s.options.RunID,
			Source:    s.options.Source,
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		// Keep connection alive and forward events
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				// Send event using Huma's SSE sender with error handling
				if err := send.Data(event); err != nil {
					// Connection failed, clean up and exit
					return
				}
			}
		}
	})
}
