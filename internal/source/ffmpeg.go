package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ovolkov/benchvision/internal/logging"
)

// FFmpegConfig controls the decode subprocess.
type FFmpegConfig struct {
	// Binary overrides the ffmpeg executable name.
	Binary string `toml:"binary"`
	// ProbeBinary overrides the ffprobe executable name.
	ProbeBinary string `toml:"probe_binary"`
	// Scale downsizes frames before analysis, e.g. "640:-1". Empty keeps
	// the source resolution.
	Scale string `toml:"scale"`
	// StartSec seeks before decoding. EndSec bounds the analysis window;
	// 0 means until end of stream.
	StartSec float64 `toml:"start_sec"`
	EndSec   float64 `toml:"end_sec"`
	// AssumeFPS is used when the container reports no frame rate
	// (raw streams, some live sources).
	AssumeFPS float64 `toml:"assume_fps"`
	// StopTimeout bounds graceful subprocess shutdown before SIGKILL.
	StopTimeout time.Duration `toml:"-"`
}

// DefaultFFmpegConfig returns decoder defaults.
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		Binary:      "ffmpeg",
		ProbeBinary: "ffprobe",
		AssumeFPS:   25.0,
		StopTimeout: 5 * time.Second,
	}
}

// buildDecodeArgs assembles the ffmpeg invocation that emits raw RGB24
// frames on stdout. Stderr stays at level+info for the log parser.
func buildDecodeArgs(cfg FFmpegConfig, path string, info Info) []string {
	args := []string{"-hide_banner", "-loglevel", "level+info", "-nostats"}
	if cfg.StartSec > 0 {
		args = append(args, "-ss", strconv.FormatFloat(cfg.StartSec, 'f', 3, 64))
	}
	args = append(args, "-i", path)
	if cfg.EndSec > cfg.StartSec {
		args = append(args, "-t", strconv.FormatFloat(cfg.EndSec-cfg.StartSec, 'f', 3, 64))
	}
	if cfg.Scale != "" {
		args = append(args, "-vf", "scale="+cfg.Scale)
	}
	// Pin the output rate to the probed fps so frame index maps to video
	// time even for variable-rate sources.
	if info.FPS > 0 {
		args = append(args, "-r", strconv.FormatFloat(info.FPS, 'f', -1, 64))
	}
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-an",
		"pipe:1",
	)
	return args
}

// FFmpegSource decodes a file or stream URL through an ffmpeg subprocess.
type FFmpegSource struct {
	cfg    FFmpegConfig
	info   Info
	logger logging.Logger

	cmd    *exec.Cmd
	stdout *bufio.Reader
	done   chan error

	frameBytes int
	nextIndex  int64
	closed     bool
}

// OpenFFmpeg probes the source, applies the scale to the reported
// dimensions, and starts the decode subprocess.
func OpenFFmpeg(cfg FFmpegConfig, path string, logger logging.Logger) (*FFmpegSource, error) {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.ProbeBinary == "" {
		cfg.ProbeBinary = "ffprobe"
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}

	info, err := Probe(cfg, path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	if w, h, ok := scaledSize(cfg.Scale, info.Width, info.Height); ok {
		info.Width, info.Height = w, h
	}

	s := &FFmpegSource{
		cfg:        cfg,
		info:       info,
		logger:     logger,
		frameBytes: info.Width * info.Height * 3,
		done:       make(chan error, 1),
	}
	if err := s.start(path); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FFmpegSource) start(path string) error {
	args := buildDecodeArgs(s.cfg, path, s.info)
	s.cmd = exec.Command(s.cfg.Binary, args...)
	s.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := s.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.cfg.Binary, err)
	}
	s.logger.Info("Decoder started",
		"pid", s.cmd.Process.Pid,
		"source", path,
		"size", fmt.Sprintf("%dx%d", s.info.Width, s.info.Height),
		"fps", s.info.FPS)

	s.stdout = bufio.NewReaderSize(stdout, s.frameBytes)
	go s.streamStderr(stderr)
	go func() { s.done <- s.cmd.Wait() }()
	return nil
}

// streamStderr forwards decoder log lines at their own severity.
func (s *FFmpegSource) streamStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		level, msg := ParseLogLevel(scanner.Text())
		switch level {
		case "fatal", "error":
			s.logger.Error(msg)
		case "warning":
			s.logger.Warn(msg)
		case "debug", "trace", "verbose":
			s.logger.Debug(msg)
		default:
			s.logger.Debug(msg)
		}
	}
}

// Info returns the probed source description.
func (s *FFmpegSource) Info() Info { return s.info }

// Next reads one raw frame off the decoder pipe. Returns io.EOF when the
// subprocess finishes the stream cleanly.
func (s *FFmpegSource) Next(ctx context.Context) (*FrameSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, s.frameBytes)
	_, err := io.ReadFull(s.stdout, buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// Partial frame: distinguish clean stop from decoder crash.
			if exitErr := s.waitExit(); exitErr != nil {
				return nil, &DecodeError{Index: s.nextIndex, Stage: "read", Err: exitErr}
			}
			return nil, io.EOF
		}
		return nil, &DecodeError{Index: s.nextIndex, Stage: "read", Err: err}
	}

	idx := s.nextIndex
	s.nextIndex++
	return &FrameSample{
		Index:      idx,
		VideoTimeS: s.cfg.StartSec + float64(idx)/s.info.FPS,
		Width:      s.info.Width,
		Height:     s.info.Height,
		Pixels:     buf,
	}, nil
}

// waitExit waits briefly for the subprocess result after the pipe closed.
func (s *FFmpegSource) waitExit() error {
	select {
	case err := <-s.done:
		return err
	case <-time.After(s.cfg.StopTimeout):
		return fmt.Errorf("decoder did not exit after closing its pipe")
	}
}

// Close stops the subprocess: SIGINT first, SIGKILL after StopTimeout.
func (s *FFmpegSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}

	if err := s.cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("Failed to signal decoder", "error", err)
	}
	select {
	case <-s.done:
		return nil
	case <-time.After(s.cfg.StopTimeout):
		s.logger.Warn("Decoder shutdown timeout, killing", "timeout", s.cfg.StopTimeout)
		if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill decoder: %w", err)
		}
		<-s.done
		return nil
	}
}

// scaledSize resolves an ffmpeg scale expression like "640:-1" against the
// probed dimensions. Only numeric and -1 terms are supported; anything else
// keeps the probed size.
func scaledSize(scale string, w, h int) (int, int, bool) {
	if scale == "" || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	parts := strings.SplitN(scale, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	sw, err1 := strconv.Atoi(parts[0])
	sh, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	switch {
	case sw > 0 && sh > 0:
		return sw, sh, true
	case sw > 0 && sh == -1:
		return sw, even(sw * h / w), true
	case sw == -1 && sh > 0:
		return even(sh * w / h), sh, true
	}
	return 0, 0, false
}

// even rounds down to the next even dimension; rgb24 does not require it,
// but keeping parity with encoder alignment avoids surprises downstream.
func even(n int) int { return n &^ 1 }
