package session

import (
	"context"
	"time"

	"github.com/xowhq/boothcore/internal/models"
)

// State models the recording lifecycle. Idle is both initial and terminal.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
)

// NoticeKind identifies transient user-facing notices.
type NoticeKind string

const (
	NoticeSavedLocally  NoticeKind = "saved_locally"
	NoticeSaveFailed    NoticeKind = "save_failed"
	NoticeUploaded      NoticeKind = "uploaded"
	NoticeMediaDegraded NoticeKind = "media_degraded"
)

// EventSink emits state changes and notices to the UI shell.
type EventSink interface {
	StateChanged(state State)
	Notice(kind NoticeKind, message string)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) StateChanged(State)        {}
func (NopSink) Notice(NoticeKind, string) {}

// SessionStore is the slice of the local store the controller needs.
type SessionStore interface {
	Append(session *models.LocalSession) error
}

// OverlayInfo carries the text burned into the video by the processor.
type OverlayInfo struct {
	BoothName string
	StartedAt time.Time
	FrameRate int
}

// VideoProcessor is the opaque burn-in transcoding step. On failure the
// caller uses the original file unchanged.
type VideoProcessor interface {
	Process(ctx context.Context, videoPath string, info OverlayInfo) (string, error)
}
