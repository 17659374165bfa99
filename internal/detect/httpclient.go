package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/ovolkov/benchvision/internal/logging"
	"github.com/ovolkov/benchvision/internal/source"
)

// RemoteConfig configures an HTTP inference channel.
type RemoteConfig struct {
	// Name identifies the channel; defaults to "remote".
	Name string `toml:"name"`
	// ServiceURL is the inference server base URL.
	ServiceURL string `toml:"service_url"`
	// Timeout bounds one inference round trip. TimeoutS is the TOML-facing
	// equivalent in seconds; it wins when both are set.
	Timeout  time.Duration `toml:"-"`
	TimeoutS float64       `toml:"timeout_s"`
	// ConfidenceThreshold is forwarded to the server when set.
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	// EnabledClasses restricts the labels the server reports when set.
	EnabledClasses []string `toml:"enabled_classes"`
	// JPEGQuality for the frame upload, 1-100.
	JPEGQuality int `toml:"jpeg_quality"`
	// TrackLabel names the class whose track IDs feed the people counter.
	TrackLabel string `toml:"track_label"`
}

// DefaultRemoteConfig returns settings for a local inference sidecar.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Name:        "remote",
		ServiceURL:  "http://127.0.0.1:9050",
		Timeout:     10 * time.Second,
		JPEGQuality: 80,
		TrackLabel:  "person",
	}
}

type inferRequest struct {
	Image               string   `json:"image"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	EnabledClasses      []string `json:"enabled_classes,omitempty"`
}

type inferDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	TrackID    int     `json:"track_id"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	W          int     `json:"w"`
	H          int     `json:"h"`
}

type inferResponse struct {
	Detections      []inferDetection `json:"detections"`
	InferenceTimeMs float64          `json:"inference_time_ms"`
}

// Remote sends frames to an HTTP inference server and maps the returned
// detections onto tags and track IDs. Frames are uploaded as base64 JPEG in
// a JSON body.
type Remote struct {
	cfg    RemoteConfig
	client *http.Client
	logger logging.Logger
}

// NewRemote creates an HTTP inference channel.
func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.Name == "" {
		cfg.Name = "remote"
	}
	if cfg.TimeoutS > 0 {
		cfg.Timeout = time.Duration(cfg.TimeoutS * float64(time.Second))
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 80
	}
	return &Remote{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logging.GetLogger("detect"),
	}
}

func (r *Remote) Name() string { return r.cfg.Name }

func (r *Remote) Detect(ctx context.Context, frame *source.FrameSample) (Observation, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image(), &jpeg.Options{Quality: r.cfg.JPEGQuality}); err != nil {
		return Empty(), fmt.Errorf("encode frame %d: %w", frame.Index, err)
	}

	req := inferRequest{Image: base64.StdEncoding.EncodeToString(buf.Bytes())}
	if r.cfg.ConfidenceThreshold > 0 {
		req.ConfidenceThreshold = &r.cfg.ConfidenceThreshold
	}
	if len(r.cfg.EnabledClasses) > 0 {
		req.EnabledClasses = r.cfg.EnabledClasses
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Empty(), fmt.Errorf("marshal request: %w", err)
	}

	url := r.cfg.ServiceURL + "/api/v1/inference"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Empty(), fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return Empty(), fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Empty(), fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Empty(), fmt.Errorf("inference server returned status %d: %s", resp.StatusCode, respBody)
	}

	var out inferResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Empty(), fmt.Errorf("parse response: %w", err)
	}

	r.logger.Debug("inference completed",
		"channel", r.cfg.Name,
		"frame", frame.Index,
		"detections", len(out.Detections),
		"inference_time_ms", out.InferenceTimeMs,
		"request_ms", time.Since(start).Milliseconds(),
	)

	obs := Empty()
	for _, d := range out.Detections {
		if d.Confidence > obs.Tags[d.Label] {
			obs.Tags[d.Label] = d.Confidence
		}
		obs.Boxes = append(obs.Boxes, Box{
			X: d.X, Y: d.Y, W: d.W, H: d.H,
			Label: d.Label, Confidence: d.Confidence, TrackID: d.TrackID,
		})
		if d.Label == r.cfg.TrackLabel && d.TrackID > 0 {
			obs.TrackIDs = append(obs.TrackIDs, d.TrackID)
		}
	}
	return obs, nil
}

// HealthCheck verifies the inference server is reachable and ready.
func (r *Remote) HealthCheck(ctx context.Context) error {
	url := r.cfg.ServiceURL + "/health/ready"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference server not ready: status %d", resp.StatusCode)
	}
	return nil
}
