// Package overlay burns session context into finalized videos with ffmpeg.
package overlay

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xowhq/boothcore/internal/session"
)

const defaultBrandMark = "XoW"

// Transcoder re-encodes a captured video with a drawtext overlay: booth
// name, wall-clock timestamp, running timecode and frame counter, plus the
// brand mark. Output is written next to the input with +faststart so the
// file streams progressively once uploaded.
type Transcoder struct {
	ffmpegPath string
	brandMark  string
	logger     *zap.Logger
}

func NewTranscoder(ffmpegPath, brandMark string, logger *zap.Logger) (*Transcoder, error) {
	if ffmpegPath == "" {
		path, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}
		ffmpegPath = path
	}
	if brandMark == "" {
		brandMark = defaultBrandMark
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transcoder{ffmpegPath: ffmpegPath, brandMark: brandMark, logger: logger}, nil
}

// Process implements the controller's burn-in step. It returns the path of
// the overlaid file; on any failure the caller keeps the original.
func (t *Transcoder) Process(ctx context.Context, videoPath string, info session.OverlayInfo) (string, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return "", fmt.Errorf("video file not accessible: %w", err)
	}

	outPath := overlayPath(videoPath)
	args := []string{
		"-y",
		"-i", videoPath,
		"-vf", t.filter(info),
		"-c:a", "copy",
		"-movflags", "+faststart",
		outPath,
	}

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	t.logger.Debug("burning overlay", zap.String("input", videoPath), zap.String("output", outPath))
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("ffmpeg overlay failed: %w: %s", err, tail(stderr.String()))
	}
	return outPath, nil
}

// filter builds the drawtext chain. Timestamp and timecode come from
// ffmpeg's own pts/timecode expansion so they track the encoded frames, not
// wall time during transcoding.
func (t *Transcoder) filter(info session.OverlayInfo) string {
	rate := info.FrameRate
	if rate <= 0 {
		rate = 30
	}
	started := info.StartedAt.Format("2006-01-02 15:04:05")
	lines := []string{
		drawtext(escapeText(info.BoothName), "x=16", "y=16"),
		drawtext(escapeText(started), "x=16", "y=52"),
		drawtext(fmt.Sprintf("timecode='00\\:00\\:00\\:00':rate=%d", rate), "x=16", "y=h-88"),
		drawtext("text='frame %{n}'", "x=16", "y=h-52"),
		drawtext(escapeText(t.brandMark), "x=w-tw-16", "y=16"),
	}
	return strings.Join(lines, ",")
}

func drawtext(text string, position ...string) string {
	parts := append([]string{text}, position...)
	parts = append(parts, "fontcolor=white", "fontsize=28", "box=1", "boxcolor=black@0.5", "boxborderw=6")
	return "drawtext=" + strings.Join(parts, ":")
}

func escapeText(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `%`, `\%`)
	return "text='" + replacer.Replace(s) + "'"
}

func overlayPath(videoPath string) string {
	dir := filepath.Dir(videoPath)
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	return filepath.Join(dir, base+"_overlay.mp4")
}

// tail keeps the last chunk of ffmpeg's stderr for error messages.
func tail(s string) string {
	const max = 400
	s = strings.TrimSpace(s)
	if len(s) > max {
		return "..." + s[len(s)-max:]
	}
	return s
}
