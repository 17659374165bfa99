package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ovolkov/benchvision/internal/config"
)

// ConfigResponse wraps the pipeline configuration currently in effect.
type ConfigResponse struct {
	Body config.PipelineConfig
}

// registerConfigRoutes registers the pipeline configuration route.
func (s *Server) registerConfigRoutes() {
	// Get effective pipeline configuration
	huma.Register(s.api, huma.Operation{
		OperationID: "get-pipeline-config",
		Method:      http.MethodGet,
		Path:        "/api/config",
		Summary:     "Get Pipeline Configuration",
		Description: "Get the scheduler, smoother, state, and channel configuration currently in effect, including live-tuning updates",
		Tags:        []string{"configuration"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*ConfigResponse, error) {
		return &ConfigResponse{Body: s.options.PipelineConfig()}, nil
	})
}
