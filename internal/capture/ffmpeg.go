package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// FFmpegVideo captures the camera with an ffmpeg child process writing an
// MP4 into the media directory.
type FFmpegVideo struct {
	command string
}

// NewFFmpegVideo creates a camera capture backend. command defaults to
// "ffmpeg" resolved from PATH.
func NewFFmpegVideo(command string) *FFmpegVideo {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegVideo{command: command}
}

func (c *FFmpegVideo) Start(ctx context.Context, cfg VideoConfig) (Session, error) {
	if cfg.InputFormat == "" {
		cfg.InputFormat = "v4l2"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "/dev/video0"
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.OutputPath == "" {
		return nil, errors.New("video capture requires an output path")
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-framerate", strconv.Itoa(cfg.FrameRate),
		"-i", cfg.InputDevice,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-y", cfg.OutputPath,
	}
	return startProcess(ctx, c.command, args, cfg.OutputPath)
}

// FFmpegAudio captures the microphone with an ffmpeg child process writing
// an audio file into the media directory.
type FFmpegAudio struct {
	command string
}

// NewFFmpegAudio creates a microphone capture backend.
func NewFFmpegAudio(command string) *FFmpegAudio {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegAudio{command: command}
}

func (c *FFmpegAudio) Start(ctx context.Context, cfg AudioConfig) (Session, error) {
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.OutputPath == "" {
		return nil, errors.New("audio capture requires an output path")
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-y", cfg.OutputPath,
	}
	return startProcess(ctx, c.command, args, cfg.OutputPath)
}

// startProcess launches ffmpeg and verifies it survives startup: an input
// device error makes ffmpeg exit within the probe window.
func startProcess(ctx context.Context, command string, args []string, outputPath string) (Session, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegSession{
		process:    cmd.Process,
		waitErr:    waitErr,
		outputPath: outputPath,
	}, nil
}

type ffmpegSession struct {
	process    *os.Process
	waitErr    <-chan error
	outputPath string

	stopOnce sync.Once
	stopErr  error

	mu     sync.Mutex
	exited bool
}

// Stop interrupts ffmpeg so it finalizes the container, escalating to kill
// after a bounded wait. The media handle becomes available once the
// process has exited.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(3 * time.Second):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		s.mu.Lock()
		s.exited = true
		s.mu.Unlock()
	})
	return s.stopErr
}

// MediaPath reports the captured file once ffmpeg has exited and the file
// exists on disk.
func (s *ffmpegSession) MediaPath() (string, bool) {
	s.mu.Lock()
	exited := s.exited
	s.mu.Unlock()
	if !exited {
		return "", false
	}
	if _, err := os.Stat(s.outputPath); err != nil {
		return "", false
	}
	return s.outputPath, true
}

// ffmpeg exits non-zero on SIGINT even after a clean container flush;
// treat plain exit errors as a successful stop.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
