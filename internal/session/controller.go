// Package session owns the recording lifecycle: the state machine driving
// capture start/stop, the scan correlator, and the hand-off of finalized
// sessions into the local store.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xowhq/boothcore/internal/capture"
	"github.com/xowhq/boothcore/internal/clock"
	"github.com/xowhq/boothcore/internal/errs"
	"github.com/xowhq/boothcore/internal/models"
	"github.com/xowhq/boothcore/internal/storage"
)

// Config controls controller behavior.
type Config struct {
	MediaDir string
	Video    capture.VideoConfig
	Audio    capture.AudioConfig

	// Bounded wait for a capture source to yield its media handle after
	// stop. Finalize proceeds with the media marked absent once exhausted.
	StopPollInterval time.Duration
	StopPollAttempts int
}

// Controller is the recording session state machine. Exactly one session
// is Recording at any time; Begin while Recording is rejected, not queued.
type Controller struct {
	clock      *clock.Clock
	correlator *Correlator
	video      capture.VideoCapture
	audio      capture.AudioCapture
	media      storage.MediaStore
	store      SessionStore
	processor  VideoProcessor
	events     EventSink
	logger     *zap.Logger
	cfg        Config

	mu      sync.Mutex
	state   State
	current *activeSession
}

type activeSession struct {
	session   *models.LocalSession
	videoSess capture.Session
	audioSess capture.Session
	startedAt time.Time
}

func NewController(
	clk *clock.Clock,
	video capture.VideoCapture,
	audio capture.AudioCapture,
	media storage.MediaStore,
	store SessionStore,
	processor VideoProcessor,
	events EventSink,
	logger *zap.Logger,
	cfg Config,
) *Controller {
	if events == nil {
		events = NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StopPollInterval <= 0 {
		cfg.StopPollInterval = 200 * time.Millisecond
	}
	if cfg.StopPollAttempts <= 0 {
		cfg.StopPollAttempts = 15
	}
	return &Controller{
		clock:      clk,
		correlator: NewCorrelator(clk),
		video:      video,
		audio:      audio,
		media:      media,
		store:      store,
		processor:  processor,
		events:     events,
		logger:     logger,
		cfg:        cfg,
		state:      StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active returns the in-progress session, or nil outside Recording.
func (c *Controller) Active() *models.LocalSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.session
}

// Begin starts a new recording session. Each capture source is requested
// independently; one failing to start does not block the other, and a
// session with no capture sources at all still records scans and duration.
func (c *Controller) Begin(ctx context.Context, deviceID, boothName, expoName string) (*models.LocalSession, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: begin while %s", errs.ErrInvalidState, c.state)
	}
	if err := c.clock.Start(); err != nil {
		// The clock is owned exclusively by this controller and stopped on
		// every finalize, so a running clock here means a programmer error.
		c.mu.Unlock()
		return nil, err
	}
	session := models.NewLocalSession(deviceID, expoName, boothName)
	active := &activeSession{session: session, startedAt: session.CreatedAt}
	// Session and state move together: an End racing a slow capture start
	// must find the session it is finalizing the moment it sees Recording.
	c.current = active
	c.state = StateRecording
	c.mu.Unlock()

	c.correlator.Bind(session)
	c.events.StateChanged(StateRecording)

	var hasVideo, hasAudio bool
	videoCfg := c.cfg.Video
	videoCfg.OutputPath = filepath.Join(c.cfg.MediaDir, session.LocalID+"_video.mp4")
	if videoSess, err := c.video.Start(ctx, videoCfg); err != nil {
		c.logger.Warn("video capture failed to start", zap.String("local_id", session.LocalID), zap.Error(err))
		c.events.Notice(NoticeMediaDegraded, "video capture unavailable, recording audio only")
	} else {
		hasVideo = c.attach(active, &active.videoSess, videoSess)
	}

	audioCfg := c.cfg.Audio
	audioCfg.OutputPath = filepath.Join(c.cfg.MediaDir, session.LocalID+"_audio.m4a")
	if audioSess, err := c.audio.Start(ctx, audioCfg); err != nil {
		c.logger.Warn("audio capture failed to start", zap.String("local_id", session.LocalID), zap.Error(err))
		c.events.Notice(NoticeMediaDegraded, "audio capture unavailable")
	} else {
		hasAudio = c.attach(active, &active.audioSess, audioSess)
	}

	c.logger.Info("recording started",
		zap.String("local_id", session.LocalID),
		zap.String("booth", boothName),
		zap.Bool("video", hasVideo),
		zap.Bool("audio", hasAudio))
	return session, nil
}

// attach hands a freshly started capture to the active session. When the
// session was already finalized while the capture was still starting, the
// late capture is stopped instead and its media discarded.
func (c *Controller) attach(active *activeSession, slot *capture.Session, sess capture.Session) bool {
	c.mu.Lock()
	if c.current == active {
		*slot = sess
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()

	c.logger.Warn("capture started after session ended, discarding",
		zap.String("local_id", active.session.LocalID))
	if err := sess.Stop(); err != nil {
		c.logger.Warn("late capture did not stop cleanly", zap.Error(err))
	}
	return false
}

// AddScan records a badge scan against the active session, timestamped by
// the session clock.
func (c *Controller) AddScan(barcodeData, visitorName string) (models.ScanEvent, error) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return models.ScanEvent{}, fmt.Errorf("%w: scan while %s", errs.ErrInvalidState, c.state)
	}
	c.mu.Unlock()

	return c.correlator.Record(barcodeData, visitorName)
}

// End finalizes the active session: stops the clock and captures, waits a
// bounded time for each media handle, assembles the record and writes it
// to the store. Never fails outright over missing media, and always
// returns the controller to Idle.
func (c *Controller) End(ctx context.Context) (*models.LocalSession, error) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: end while %s", errs.ErrInvalidState, c.state)
	}
	c.state = StateFinalizing
	active := c.current
	c.current = nil
	c.mu.Unlock()

	c.correlator.Unbind()
	c.events.StateChanged(StateFinalizing)

	seconds, frames := c.clock.Stop()
	session := active.session
	session.Duration = seconds
	session.FrameCount = frames

	if active.videoSess != nil {
		if rawPath, ok := c.stopAndCollect(active.videoSess); ok {
			session.VideoPath = c.finishVideo(ctx, session, active.startedAt, rawPath)
		} else {
			c.logger.Warn("video capture yielded no media", zap.String("local_id", session.LocalID))
		}
	}
	if active.audioSess != nil {
		if rawPath, ok := c.stopAndCollect(active.audioSess); ok {
			session.AudioPath = c.ingest(session, rawPath, "audio/mp4")
		} else {
			c.logger.Warn("audio capture yielded no media", zap.String("local_id", session.LocalID))
		}
	}

	if !session.HasMedia() {
		c.events.Notice(NoticeMediaDegraded, "session saved without media")
	}

	if err := c.store.Append(session); err != nil {
		c.logger.Error("failed to persist session", zap.String("local_id", session.LocalID), zap.Error(err))
		c.events.Notice(NoticeSaveFailed, "session could not be saved to local storage")
	} else {
		c.events.Notice(NoticeSavedLocally, "session saved locally")
	}

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	c.events.StateChanged(StateIdle)
	c.logger.Info("recording finalized",
		zap.String("local_id", session.LocalID),
		zap.Float64("duration", session.Duration),
		zap.Int("scans", len(session.Scans)),
		zap.Bool("video", session.HasVideo()),
		zap.Bool("audio", session.HasAudio()))
	return session, nil
}

// stopAndCollect stops a capture session and polls for its media handle a
// fixed number of short intervals rather than waiting indefinitely.
func (c *Controller) stopAndCollect(sess capture.Session) (string, bool) {
	if err := sess.Stop(); err != nil {
		c.logger.Warn("capture did not stop cleanly", zap.Error(err))
	}
	for i := 0; i < c.cfg.StopPollAttempts; i++ {
		if path, ok := sess.MediaPath(); ok {
			return path, true
		}
		time.Sleep(c.cfg.StopPollInterval)
	}
	return "", false
}

// finishVideo runs the overlay burn-in when a processor is configured,
// falling back to the raw capture on failure, then ingests the result.
func (c *Controller) finishVideo(ctx context.Context, session *models.LocalSession, startedAt time.Time, rawPath string) string {
	path := rawPath
	if c.processor != nil {
		processed, err := c.processor.Process(ctx, rawPath, OverlayInfo{
			BoothName: session.BoothName,
			StartedAt: startedAt,
			FrameRate: c.clock.Rate(),
		})
		if err != nil {
			c.logger.Warn("overlay burn-in failed, keeping raw video", zap.String("local_id", session.LocalID), zap.Error(err))
		} else {
			path = processed
		}
	}
	return c.ingest(session, path, "video/mp4")
}

func (c *Controller) ingest(session *models.LocalSession, path, contentType string) string {
	name, err := c.media.IngestFile(path, storage.FileInfo{
		Filename:    filepath.Base(path),
		ContentType: contentType,
	})
	if err != nil {
		c.logger.Warn("failed to ingest media file", zap.String("local_id", session.LocalID), zap.String("path", path), zap.Error(err))
		return ""
	}
	return name
}
