package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xowhq/boothcore/internal/api"
	"github.com/xowhq/boothcore/internal/capture"
	"github.com/xowhq/boothcore/internal/clock"
	"github.com/xowhq/boothcore/internal/cloud"
	"github.com/xowhq/boothcore/internal/health"
	"github.com/xowhq/boothcore/internal/models"
	"github.com/xowhq/boothcore/internal/session"
	"github.com/xowhq/boothcore/internal/storage"
	"github.com/xowhq/boothcore/internal/store"
	boothsync "github.com/xowhq/boothcore/internal/sync"
)

// TestServer wires the full daemon stack against a temp directory, with
// capture sources writing placeholder files and a fake remote service.
type TestServer struct {
	Server  *httptest.Server
	App     *api.App
	Repo    *store.SessionRepository
	Storage *storage.LocalStorage
	Backend *fakeBackend
	TempDir string
}

func setupTestServer(t *testing.T) *TestServer {
	t.Helper()
	tempDir := t.TempDir()

	mediaDir := filepath.Join(tempDir, "media")
	if err := os.MkdirAll(mediaDir, 0755); err != nil {
		t.Fatalf("Failed to create media dir: %v", err)
	}
	localStorage, err := storage.NewLocalStorage(mediaDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	db, err := store.NewDB(store.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(tempDir, "test.db"),
	})
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := store.NewSessionRepository(db, nil)

	backend := newFakeBackend()
	backendServer := httptest.NewServer(backend.router())
	t.Cleanup(backendServer.Close)

	remote := cloud.NewClient(backendServer.URL, time.Minute)
	engine := boothsync.NewEngine(remote, repo, localStorage, nil, nil)
	monitor := health.NewMonitor(remote, time.Minute, nil)
	monitor.Check(context.Background())

	clk := clock.New(30, nil)
	controller := session.NewController(
		clk,
		&stubVideoCapture{},
		&stubAudioCapture{},
		localStorage,
		repo,
		nil,
		nil,
		nil,
		session.Config{
			MediaDir:         mediaDir,
			StopPollInterval: 5 * time.Millisecond,
			StopPollAttempts: 5,
		},
	)

	app := &api.App{
		Recorder:  controller,
		Repo:      repo,
		Cloud:     remote,
		Promoter:  engine,
		Media:     localStorage,
		Health:    monitor,
		Clock:     clk,
		Logger:    zap.NewNop(),
		DeviceID:  "test-device",
		ExpoName:  "Test Expo",
		BoothName: "Test Booth",
	}

	server := httptest.NewServer(api.NewRouter(app))
	t.Cleanup(server.Close)

	return &TestServer{
		Server:  server,
		App:     app,
		Repo:    repo,
		Storage: localStorage,
		Backend: backend,
		TempDir: tempDir,
	}
}

func (ts *TestServer) postJSON(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.Server.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

func (ts *TestServer) getJSON(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.Server.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s response: %v", path, err)
		}
	}
	return resp
}

// stubVideoCapture writes a placeholder file where ffmpeg would.
type stubVideoCapture struct{}

func (stubVideoCapture) Start(_ context.Context, cfg capture.VideoConfig) (capture.Session, error) {
	return newStubSession(cfg.OutputPath)
}

type stubAudioCapture struct{}

func (stubAudioCapture) Start(_ context.Context, cfg capture.AudioConfig) (capture.Session, error) {
	return newStubSession(cfg.OutputPath)
}

type stubSession struct {
	path    string
	stopped bool
}

func newStubSession(path string) (*stubSession, error) {
	if err := os.WriteFile(path, []byte("captured media"), 0644); err != nil {
		return nil, err
	}
	return &stubSession{path: path}, nil
}

func (s *stubSession) Stop() error {
	s.stopped = true
	return nil
}

func (s *stubSession) MediaPath() (string, bool) {
	if !s.stopped {
		return "", false
	}
	return s.path, true
}

// fakeBackend mimics the remote recording service.
type fakeBackend struct {
	mu         sync.Mutex
	recordings []models.CloudSession
	uploads    map[string][]string
	scans      map[string][]map[string]any
	completed  map[string]bool
	failCreate bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		uploads:   make(map[string][]string),
		scans:     make(map[string][]map[string]any),
		completed: make(map[string]bool),
	}
}

func (b *fakeBackend) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Post("/api/recordings", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.failCreate {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		var payload struct {
			DeviceID  string `json:"device_id"`
			ExpoName  string `json:"expo_name"`
			BoothName string `json:"booth_name"`
		}
		json.NewDecoder(req.Body).Decode(&payload)
		rec := models.CloudSession{
			RemoteID:  uuid.New().String(),
			DeviceID:  payload.DeviceID,
			ExpoName:  payload.ExpoName,
			BoothName: payload.BoothName,
			StartTime: time.Now().UTC(),
			Status:    models.CloudStatusRecording,
		}
		b.recordings = append(b.recordings, rec)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	})

	r.Post("/api/recordings/{id}/upload-video", b.uploadHandler("video"))
	r.Post("/api/recordings/{id}/upload-audio", b.uploadHandler("audio"))

	r.Post("/api/barcodes", func(w http.ResponseWriter, req *http.Request) {
		var payload map[string]any
		json.NewDecoder(req.Body).Decode(&payload)
		id, _ := payload["recording_id"].(string)
		b.mu.Lock()
		b.scans[id] = append(b.scans[id], payload)
		b.mu.Unlock()
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Put("/api/recordings/{id}/complete", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		b.mu.Lock()
		b.completed[id] = true
		for i := range b.recordings {
			if b.recordings[i].RemoteID == id {
				b.recordings[i].Status = models.CloudStatusCompleted
			}
		}
		b.mu.Unlock()
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/api/recordings", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.recordings
		if deviceID := req.URL.Query().Get("device_id"); deviceID != "" {
			list = nil
			for _, rec := range b.recordings {
				if rec.DeviceID == deviceID {
					list = append(list, rec)
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(list)
	})

	return r
}

func (b *fakeBackend) uploadHandler(field string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		if err := req.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "bad multipart body", http.StatusBadRequest)
			return
		}
		file, header, err := req.FormFile(field)
		if err != nil {
			http.Error(w, "missing "+field+" field", http.StatusBadRequest)
			return
		}
		file.Close()
		b.mu.Lock()
		b.uploads[id] = append(b.uploads[id], field+":"+header.Filename)
		b.mu.Unlock()
		w.Write([]byte(`{"status":"ok"}`))
	}
}

func (b *fakeBackend) uploadCount(remoteID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.uploads[remoteID])
}

func (b *fakeBackend) scanCount(remoteID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.scans[remoteID])
}
