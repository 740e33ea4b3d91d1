package session

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/xowhq/boothcore/internal/capture"
	"github.com/xowhq/boothcore/internal/clock"
	"github.com/xowhq/boothcore/internal/errs"
	"github.com/xowhq/boothcore/internal/models"
	"github.com/xowhq/boothcore/internal/storage"
)

type fakeTime struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeTime() *fakeTime {
	return &fakeTime{t: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

type fakeCaptureSession struct {
	path       string
	neverReady bool
	stopErr    error
	stopped    bool
}

func (s *fakeCaptureSession) Stop() error {
	s.stopped = true
	return s.stopErr
}

func (s *fakeCaptureSession) MediaPath() (string, bool) {
	if !s.stopped || s.neverReady {
		return "", false
	}
	return s.path, true
}

type fakeVideoCapture struct {
	startErr   error
	startDelay time.Duration
	session    *fakeCaptureSession
}

func (f *fakeVideoCapture) Start(_ context.Context, cfg capture.VideoConfig) (capture.Session, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	if f.startDelay > 0 {
		time.Sleep(f.startDelay)
	}
	if f.session == nil {
		f.session = &fakeCaptureSession{path: cfg.OutputPath}
	}
	return f.session, nil
}

type fakeAudioCapture struct {
	startErr error
	session  *fakeCaptureSession
}

func (f *fakeAudioCapture) Start(_ context.Context, cfg capture.AudioConfig) (capture.Session, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	if f.session == nil {
		f.session = &fakeCaptureSession{path: cfg.OutputPath}
	}
	return f.session, nil
}

// fakeMedia adopts files by base name without touching the filesystem.
type fakeMedia struct {
	ingested []string
}

func (m *fakeMedia) SaveFile(io.Reader, storage.FileInfo) (string, error) { return "", nil }

func (m *fakeMedia) IngestFile(srcPath string, _ storage.FileInfo) (string, error) {
	name := filepath.Base(srcPath)
	m.ingested = append(m.ingested, name)
	return name, nil
}

func (m *fakeMedia) OpenFile(string) (io.ReadSeekCloser, error) {
	return nil, errors.New("not implemented")
}

func (m *fakeMedia) DeleteFile(string) error { return nil }

type fakeStore struct {
	appendErr error
	sessions  []*models.LocalSession
}

func (s *fakeStore) Append(session *models.LocalSession) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.sessions = append(s.sessions, session)
	return nil
}

type fakeSink struct {
	states  []State
	notices []NoticeKind
}

func (s *fakeSink) StateChanged(state State) { s.states = append(s.states, state) }

func (s *fakeSink) Notice(kind NoticeKind, _ string) { s.notices = append(s.notices, kind) }

func (s *fakeSink) hasNotice(kind NoticeKind) bool {
	for _, n := range s.notices {
		if n == kind {
			return true
		}
	}
	return false
}

type controllerFixture struct {
	controller *Controller
	time       *fakeTime
	video      *fakeVideoCapture
	audio      *fakeAudioCapture
	store      *fakeStore
	sink       *fakeSink
}

func newFixture(video *fakeVideoCapture, audio *fakeAudioCapture) *controllerFixture {
	ft := newFakeTime()
	store := &fakeStore{}
	sink := &fakeSink{}
	controller := NewController(
		clock.New(30, ft.Now),
		video, audio,
		&fakeMedia{},
		store,
		nil,
		sink,
		nil,
		Config{MediaDir: "/tmp/media", StopPollInterval: time.Millisecond, StopPollAttempts: 3},
	)
	return &controllerFixture{controller: controller, time: ft, video: video, audio: audio, store: store, sink: sink}
}

// Scenario: begin, scan at 5s, end at 8s.
func TestControllerRecordAndFinalize(t *testing.T) {
	f := newFixture(&fakeVideoCapture{}, &fakeAudioCapture{})

	if _, err := f.controller.Begin(context.Background(), "D1", "Booth A", "Expo West"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	f.time.Advance(5 * time.Second)
	event, err := f.controller.AddScan("BADGE-001", "")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if event.VideoTimestamp != 5.0 {
		t.Errorf("expected scan timestamp 5.0, got %f", event.VideoTimestamp)
	}
	if event.FrameCode != 150 {
		t.Errorf("expected frame code 150, got %d", event.FrameCode)
	}

	f.time.Advance(3 * time.Second)
	session, err := f.controller.End(context.Background())
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}

	if session.Duration != 8.0 {
		t.Errorf("expected duration 8s, got %f", session.Duration)
	}
	if len(session.Scans) != 1 {
		t.Fatalf("expected 1 scan event, got %d", len(session.Scans))
	}
	if session.Scans[0].VideoTimestamp > session.Duration {
		t.Errorf("scan timestamp %f exceeds duration %f", session.Scans[0].VideoTimestamp, session.Duration)
	}
	if !session.HasVideo() || !session.HasAudio() {
		t.Errorf("expected both media tracks, got video=%v audio=%v", session.HasVideo(), session.HasAudio())
	}
	if len(f.store.sessions) != 1 {
		t.Errorf("expected session persisted, store has %d", len(f.store.sessions))
	}
	if f.controller.State() != StateIdle {
		t.Errorf("expected idle after end, got %s", f.controller.State())
	}
	if !f.sink.hasNotice(NoticeSavedLocally) {
		t.Error("expected saved-locally notice")
	}
}

// A second begin while recording is rejected and the original session keeps
// running.
func TestControllerSingleActiveSession(t *testing.T) {
	f := newFixture(&fakeVideoCapture{}, &fakeAudioCapture{})

	first, err := f.controller.Begin(context.Background(), "D1", "Booth A", "")
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	if _, err := f.controller.Begin(context.Background(), "D1", "Booth B", ""); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second begin, got %v", err)
	}

	// The original session is still recording.
	if f.controller.State() != StateRecording {
		t.Errorf("expected recording after rejected begin, got %s", f.controller.State())
	}
	f.time.Advance(2 * time.Second)
	session, err := f.controller.End(context.Background())
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if session.LocalID != first.LocalID {
		t.Errorf("finalized session %s is not the original %s", session.LocalID, first.LocalID)
	}
}

// Scenario: audio fails to start, video succeeds; end after 10s yields a
// video-only session without error.
func TestControllerDegradedAudio(t *testing.T) {
	f := newFixture(&fakeVideoCapture{}, &fakeAudioCapture{startErr: errors.New("mic unavailable")})

	if _, err := f.controller.Begin(context.Background(), "D1", "Booth A", ""); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	f.time.Advance(10 * time.Second)
	session, err := f.controller.End(context.Background())
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}

	if !session.HasVideo() {
		t.Error("expected video handle")
	}
	if session.HasAudio() {
		t.Error("expected no audio handle")
	}
	if session.Duration != 10.0 {
		t.Errorf("expected duration 10s, got %f", session.Duration)
	}
	if !f.sink.hasNotice(NoticeMediaDegraded) {
		t.Error("expected degraded-media notice")
	}
}

// Both captures failing still yields a persisted, empty-media session.
func TestControllerFinalizeWithNoMedia(t *testing.T) {
	f := newFixture(
		&fakeVideoCapture{startErr: errors.New("camera unavailable")},
		&fakeAudioCapture{startErr: errors.New("mic unavailable")},
	)

	if _, err := f.controller.Begin(context.Background(), "D1", "Booth A", ""); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	f.time.Advance(time.Second)
	session, err := f.controller.End(context.Background())
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if session.HasMedia() {
		t.Error("expected empty media")
	}
	if len(f.store.sessions) != 1 {
		t.Errorf("expected empty-media session persisted, store has %d", len(f.store.sessions))
	}
}

// A capture that never yields its handle is abandoned after the bounded
// poll instead of hanging finalize.
func TestControllerBoundedMediaWait(t *testing.T) {
	video := &fakeVideoCapture{session: &fakeCaptureSession{neverReady: true}}
	f := newFixture(video, &fakeAudioCapture{})

	if _, err := f.controller.Begin(context.Background(), "D1", "Booth A", ""); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	f.time.Advance(time.Second)

	done := make(chan *models.LocalSession, 1)
	go func() {
		session, _ := f.controller.End(context.Background())
		done <- session
	}()

	select {
	case session := <-done:
		if session.HasVideo() {
			t.Error("expected absent video after bounded wait")
		}
		if !session.HasAudio() {
			t.Error("expected audio handle")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("finalize hung waiting for media handle")
	}
}

// Duplicate scan payloads are preserved as distinct events.
func TestControllerDuplicateScansPreserved(t *testing.T) {
	f := newFixture(&fakeVideoCapture{}, &fakeAudioCapture{})

	if _, err := f.controller.Begin(context.Background(), "D1", "Booth A", ""); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	f.time.Advance(2 * time.Second)
	if _, err := f.controller.AddScan("BADGE-042", ""); err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	f.time.Advance(time.Second)
	if _, err := f.controller.AddScan("BADGE-042", ""); err != nil {
		t.Fatalf("second scan failed: %v", err)
	}

	session, err := f.controller.End(context.Background())
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if len(session.Scans) != 2 {
		t.Fatalf("expected 2 distinct events, got %d", len(session.Scans))
	}
	if session.Scans[0].ID == session.Scans[1].ID {
		t.Error("duplicate scans share an event id")
	}
	if session.Scans[0].VideoTimestamp > session.Scans[1].VideoTimestamp {
		t.Error("scan timestamps are not non-decreasing")
	}
}

// End issued while a capture source is still starting finalizes cleanly:
// the session is persisted without the late media, the straggling capture
// is stopped rather than leaked, and the controller returns to Idle.
func TestControllerEndDuringSlowCaptureStart(t *testing.T) {
	video := &fakeVideoCapture{startDelay: 200 * time.Millisecond}
	f := newFixture(video, &fakeAudioCapture{})

	beginDone := make(chan error, 1)
	go func() {
		_, err := f.controller.Begin(context.Background(), "D1", "Booth A", "")
		beginDone <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.controller.State() != StateRecording {
		if time.Now().After(deadline) {
			t.Fatal("controller never reached recording")
		}
		time.Sleep(time.Millisecond)
	}

	session, err := f.controller.End(context.Background())
	if err != nil {
		t.Fatalf("end during capture start failed: %v", err)
	}
	if session.HasMedia() {
		t.Error("expected no media from captures that finished starting late")
	}
	if f.controller.State() != StateIdle {
		t.Errorf("expected idle after end, got %s", f.controller.State())
	}
	if err := <-beginDone; err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if video.session == nil || !video.session.stopped {
		t.Error("expected the late video capture to be stopped")
	}
	if len(f.store.sessions) != 1 {
		t.Fatalf("expected session persisted, store has %d", len(f.store.sessions))
	}

	// The controller stays usable for the next visitor.
	if _, err := f.controller.Begin(context.Background(), "D1", "Booth A", ""); err != nil {
		t.Fatalf("begin after raced end failed: %v", err)
	}
	if _, err := f.controller.End(context.Background()); err != nil {
		t.Fatalf("end after raced end failed: %v", err)
	}
}

func TestControllerScanOutsideRecording(t *testing.T) {
	f := newFixture(&fakeVideoCapture{}, &fakeAudioCapture{})

	if _, err := f.controller.AddScan("BADGE-001", ""); !errors.Is(err, errs.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for scan while idle, got %v", err)
	}
}

func TestControllerEndWhileIdle(t *testing.T) {
	f := newFixture(&fakeVideoCapture{}, &fakeAudioCapture{})

	if _, err := f.controller.End(context.Background()); !errors.Is(err, errs.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for end while idle, got %v", err)
	}
}

// A store write failure surfaces as a notice; the in-memory record is
// still returned and the controller lands in Idle.
func TestControllerPersistFailureKeepsRecord(t *testing.T) {
	f := newFixture(&fakeVideoCapture{}, &fakeAudioCapture{})
	f.store.appendErr = errs.ErrPersistence

	if _, err := f.controller.Begin(context.Background(), "D1", "Booth A", ""); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	f.time.Advance(3 * time.Second)
	session, err := f.controller.End(context.Background())
	if err != nil {
		t.Fatalf("end must not fail over persistence: %v", err)
	}
	if session == nil || session.Duration != 3.0 {
		t.Fatalf("expected in-memory record, got %+v", session)
	}
	if !f.sink.hasNotice(NoticeSaveFailed) {
		t.Error("expected save-failed notice")
	}
	if f.controller.State() != StateIdle {
		t.Errorf("expected idle after failed persist, got %s", f.controller.State())
	}
}

func TestCorrelatorNoActiveSession(t *testing.T) {
	correlator := NewCorrelator(clock.New(30, newFakeTime().Now))

	if _, err := correlator.Record("BADGE-001", ""); !errors.Is(err, errs.ErrNoActiveSession) {
		t.Errorf("expected ErrNoActiveSession, got %v", err)
	}
}
