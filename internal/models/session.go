package models

import (
	"time"

	"github.com/google/uuid"
)

// CloudStatus is the remote service's view of a session's pipeline state.
type CloudStatus string

const (
	CloudStatusRecording  CloudStatus = "recording"
	CloudStatusCompleted  CloudStatus = "completed"
	CloudStatusUploaded   CloudStatus = "uploaded"
	CloudStatusProcessing CloudStatus = "processing"
	CloudStatusProcessed  CloudStatus = "processed"
	CloudStatusError      CloudStatus = "error"
)

// ScanEvent is a visitor-badge scan captured during an active recording,
// timestamped relative to session start. Immutable once created.
type ScanEvent struct {
	ID             string  `json:"id"`
	BarcodeData    string  `json:"barcode_data"`
	VisitorName    string  `json:"visitor_name,omitempty"`
	VideoTimestamp float64 `json:"video_timestamp"` // seconds since session start
	FrameCode      int     `json:"frame_code"`
}

// LocalSession is a recorded session persisted on-device. RemoteID and
// Uploaded are set exactly once by the sync engine; everything else is
// immutable after finalize.
type LocalSession struct {
	LocalID    string      `json:"local_id"`
	RemoteID   string      `json:"remote_id,omitempty"`
	DeviceID   string      `json:"device_id"`
	ExpoName   string      `json:"expo_name"`
	BoothName  string      `json:"booth_name"`
	VideoPath  string      `json:"video_path,omitempty"`
	AudioPath  string      `json:"audio_path,omitempty"`
	Scans      []ScanEvent `json:"scans"`
	Duration   float64     `json:"duration"` // wall-clock seconds
	FrameCount int         `json:"frame_count"`
	CreatedAt  time.Time   `json:"created_at"`
	Uploaded   bool        `json:"uploaded"`
}

// NewLocalSession creates a not-yet-finalized session record for an active
// recording.
func NewLocalSession(deviceID, expoName, boothName string) *LocalSession {
	return &LocalSession{
		LocalID:   uuid.New().String(),
		DeviceID:  deviceID,
		ExpoName:  expoName,
		BoothName: boothName,
		Scans:     []ScanEvent{},
		CreatedAt: time.Now().UTC(),
	}
}

// HasVideo reports whether a video file was captured.
func (s *LocalSession) HasVideo() bool { return s.VideoPath != "" }

// HasAudio reports whether an audio file was captured.
func (s *LocalSession) HasAudio() bool { return s.AudioPath != "" }

// HasMedia reports whether any media was captured at all. A session with
// neither track is still a valid record, flagged as empty media.
func (s *LocalSession) HasMedia() bool { return s.HasVideo() || s.HasAudio() }

// CloudSession is the remote service's representation of a session. The
// AI-derived fields are populated asynchronously and opaque to this core.
type CloudSession struct {
	RemoteID             string      `json:"id"`
	DeviceID             string      `json:"device_id"`
	ExpoName             string      `json:"expo_name"`
	BoothName            string      `json:"booth_name"`
	StartTime            time.Time   `json:"start_time"`
	Duration             float64     `json:"duration,omitempty"`
	Status               CloudStatus `json:"status"`
	HasVideo             bool        `json:"has_video"`
	HasAudio             bool        `json:"has_audio"`
	Transcript           string      `json:"transcript,omitempty"`
	TranslatedTranscript string      `json:"translated_transcript,omitempty"`
	Summary              string      `json:"summary,omitempty"`
	ScanCount            int         `json:"scan_count,omitempty"`
	ConversationCount    int         `json:"conversation_count,omitempty"`
}
