package models

import (
	"github.com/ovolkov/benchvision/internal/pipeline"
	"github.com/ovolkov/benchvision/internal/sink"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Run status models
type RunStatusData struct {
	RunID        string  `json:"run_id" example:"7f9c24e8-3b2a-4f0e-9e6d-2a1b3c4d5e6f" doc:"Run identifier"`
	Source       string  `json:"source" example:"/videos/shift-03.mp4" doc:"Video source path or URL"`
	State        string  `json:"state" example:"OPEN_NORMAL_SAMPLING" doc:"Current debounced activity state"`
	People       int     `json:"people" example:"2" doc:"Stable people count"`
	Step         int     `json:"step" example:"3" doc:"Current frame-skip step"`
	Ratio        float64 `json:"ratio" example:"0.98" doc:"Smoothed real-time ratio"`
	EMALatencyMS float64 `json:"ema_latency_ms" example:"108.2" doc:"Smoothed per-frame latency"`
	Processed    int64   `json:"frames_processed" example:"30000" doc:"Frames processed so far"`
	Dropped      int64   `json:"frames_dropped" example:"60000" doc:"Frames skipped so far"`
}

type RunStatusResponse struct {
	Body RunStatusData
}

// Latest frame output, as produced by the pipeline worker.
type FrameResponse struct {
	Body pipeline.FrameOutput
}

// End-of-run (or running) aggregate.
type SummaryResponse struct {
	Body sink.RunSummary
}

// Detector channel models
type ChannelData struct {
	Name    string `json:"name" example:"remote" doc:"Detector channel name"`
	Enabled bool   `json:"enabled" example:"true" doc:"Whether the channel runs its detector"`
}

type ChannelListData struct {
	Channels []ChannelData `json:"channels" doc:"Detector channels in the pipeline"`
	Count    int           `json:"count" example:"3" doc:"Number of channels"`
}

type ChannelListResponse struct {
	Body ChannelListData
}

type ChannelToggleRequest struct {
	Name string `path:"name" example:"remote" doc:"Detector channel name"`
	Body struct {
		Enabled bool `json:"enabled" example:"false" doc:"Desired channel state"`
	}
}

type ChannelToggleResponse struct {
	Body ChannelData
}

// Error response
type ErrorData struct {
	Status  string `json:"status" example:"error" doc:"Error status"`
	Message string `json:"message" example:"Channel not found" doc:"Error message"`
}

type ErrorResponse struct {
	Body ErrorData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.21.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}
