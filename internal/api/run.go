package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ovolkov/benchvision/internal/api/models"
	"github.com/ovolkov/benchvision/internal/metrics"
)

// registerRunRoutes registers run status, latest frame, and summary routes.
func (s *Server) registerRunRoutes() {
	// Current run status
	huma.Register(s.api, huma.Operation{
		OperationID: "get-run",
		Method:      http.MethodGet,
		Path:        "/api/run",
		Summary:     "Run Status",
		Description: "Get the current analysis run: scheduler step, real-time ratio, state, and frame counters",
		Tags:        []string{"run"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.RunStatusResponse, error) {
		status := models.RunStatusData{
			RunID:  s.options.RunID,
			Source: s.options.Source,
		}
		if m := metrics.GetRunMetrics(s.options.RunID); m != nil {
			status.State = m.State
			status.People = m.People
			status.Step = m.Step
			status.Ratio = m.Ratio
			status.EMALatencyMS = m.EMALatencyMS
			status.Processed = int64(m.Processed)
			status.Dropped = int64(m.Dropped)
		}
		return &models.RunStatusResponse{Body: status}, nil
	})

	// Latest processed frame output
	huma.Register(s.api, huma.Operation{
		OperationID: "get-run-frame",
		Method:      http.MethodGet,
		Path:        "/api/run/frame",
		Summary:     "Latest Frame",
		Description: "Get the full analysis output of the most recently processed frame",
		Tags:        []string{"run"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, _ *struct{}) (*models.FrameResponse, error) {
		out, ok := s.options.Latest.Get()
		if !ok {
			return nil, huma.Error404NotFound("no frame processed yet")
		}
		return &models.FrameResponse{Body: out}, nil
	})

	// Run summary (available mid-run, final after the run ends)
	huma.Register(s.api, huma.Operation{
		OperationID: "get-run-summary",
		Method:      http.MethodGet,
		Path:        "/api/run/summary",
		Summary:     "Run Summary",
		Description: "Get the run aggregate: per-state durations in video time, transition count, and mean latency",
		Tags:        []string{"run"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SummaryResponse, error) {
		return &models.SummaryResponse{Body: s.options.Summary.Result()}, nil
	})
}
