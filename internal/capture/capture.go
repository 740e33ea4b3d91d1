// Package capture defines the device capture ports. The controller only
// sees these interfaces; platform specifics (ffmpeg, test fakes) live in
// the implementations.
package capture

import "context"

// VideoConfig describes how the camera should be captured.
type VideoConfig struct {
	InputFormat string // e.g. v4l2, avfoundation
	InputDevice string
	FrameRate   int
	OutputPath  string
}

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	InputFormat string // e.g. pulse, alsa
	InputDevice string
	SampleRate  int
	Channels    int
	OutputPath  string
}

// Session is a live capture in progress. After Stop, MediaPath reports the
// captured file once the encoder has flushed; callers poll it a bounded
// number of times rather than waiting indefinitely.
type Session interface {
	Stop() error
	MediaPath() (string, bool)
}

// VideoCapture creates camera capture sessions.
type VideoCapture interface {
	Start(ctx context.Context, cfg VideoConfig) (Session, error)
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (Session, error)
}
