package source

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// probeOutput mirrors the ffprobe -print_format json fields we consume.
type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe against the path and returns the stream description of
// the first video stream.
func Probe(cfg FFmpegConfig, path string) (Info, error) {
	bin := cfg.ProbeBinary
	if bin == "" {
		bin = "ffprobe"
	}
	out, err := exec.Command(bin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_streams",
		"-show_format",
		"-print_format", "json",
		path,
	).Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(cfg, path, out)
}

func parseProbe(cfg FFmpegConfig, path string, raw []byte) (Info, error) {
	var probed probeOutput
	if err := json.Unmarshal(raw, &probed); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, st := range probed.Streams {
		if st.CodecType != "video" {
			continue
		}
		info := Info{
			Path:   path,
			Width:  st.Width,
			Height: st.Height,
			FPS:    parseRate(st.AvgFrameRate),
		}
		if info.FPS <= 0 {
			info.FPS = parseRate(st.RFrameRate)
		}
		if info.FPS <= 0 {
			info.FPS = cfg.AssumeFPS
		}
		if info.FPS <= 0 {
			info.FPS = 25.0
		}
		if n, err := strconv.ParseInt(st.NbFrames, 10, 64); err == nil {
			info.TotalFrames = n
		}
		if d, err := strconv.ParseFloat(st.Duration, 64); err == nil {
			info.Duration = d
		} else if d, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil {
			info.Duration = d
		}
		if info.Width <= 0 || info.Height <= 0 {
			return Info{}, fmt.Errorf("video stream reports no dimensions")
		}
		return info, nil
	}
	return Info{}, fmt.Errorf("no video stream in %s", path)
}

// parseRate converts an ffprobe rational like "30000/1001" to a float.
func parseRate(r string) float64 {
	if r == "" || r == "0/0" {
		return 0
	}
	num, den, found := strings.Cut(r, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
