package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xowhq/boothcore/internal/errs"
	"github.com/xowhq/boothcore/internal/models"
	"github.com/xowhq/boothcore/internal/session"
	"github.com/xowhq/boothcore/internal/storage"
	"github.com/xowhq/boothcore/internal/store"
	"github.com/xowhq/boothcore/internal/view"
)

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// Recorder is the slice of the session controller the API drives.
type Recorder interface {
	Begin(ctx context.Context, deviceID, boothName, expoName string) (*models.LocalSession, error)
	AddScan(barcodeData, visitorName string) (models.ScanEvent, error)
	End(ctx context.Context) (*models.LocalSession, error)
	State() session.State
	Active() *models.LocalSession
}

// CloudLister fetches the device's remote session catalog.
type CloudLister interface {
	ListRecordings(ctx context.Context, deviceID string) ([]models.CloudSession, error)
}

// Promoter uploads one local session to the remote service.
type Promoter interface {
	Promote(ctx context.Context, session *models.LocalSession) error
}

// Connectivity reports whether the remote service is reachable.
type Connectivity interface {
	Online() bool
}

// ClockReader exposes the session clock's live readings for the status
// endpoint.
type ClockReader interface {
	ElapsedSeconds() float64
	Frame() int
}

type App struct {
	Recorder  Recorder
	Repo      *store.SessionRepository
	Cloud     CloudLister
	Promoter  Promoter
	Media     storage.MediaStore
	Health    Connectivity
	Clock     ClockReader
	Logger    *zap.Logger
	DeviceID  string
	ExpoName  string
	BoothName string
}

type startRequest struct {
	ExpoName  string `json:"expo_name"`
	BoothName string `json:"booth_name"`
}

func (app *App) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.Body != nil {
		// Body is optional; defaults come from device config.
		json.NewDecoder(r.Body).Decode(&req)
	}
	expoName := req.ExpoName
	if expoName == "" {
		expoName = app.ExpoName
	}
	boothName := req.BoothName
	if boothName == "" {
		boothName = app.BoothName
	}

	sess, err := app.Recorder.Begin(r.Context(), app.DeviceID, boothName, expoName)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidState) {
			app.respondError(w, http.StatusConflict, "a session is already in progress")
			return
		}
		app.Logger.Error("failed to start session", zap.Error(err))
		app.respondError(w, http.StatusInternalServerError, "failed to start session")
		return
	}
	app.respondJSON(w, http.StatusCreated, sess)
}

type scanRequest struct {
	BarcodeData string `json:"barcode_data"`
	VisitorName string `json:"visitor_name"`
}

func (app *App) ScanHandler(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BarcodeData == "" {
		app.respondError(w, http.StatusBadRequest, "barcode_data is required")
		return
	}

	event, err := app.Recorder.AddScan(req.BarcodeData, req.VisitorName)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidState) || errors.Is(err, errs.ErrNoActiveSession) {
			app.respondError(w, http.StatusConflict, "no recording in progress")
			return
		}
		app.Logger.Error("failed to record scan", zap.Error(err))
		app.respondError(w, http.StatusInternalServerError, "failed to record scan")
		return
	}
	app.respondJSON(w, http.StatusCreated, event)
}

func (app *App) StopSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := app.Recorder.End(r.Context())
	if err != nil {
		if errors.Is(err, errs.ErrInvalidState) {
			app.respondError(w, http.StatusConflict, "no recording in progress")
			return
		}
		app.Logger.Error("failed to stop session", zap.Error(err))
		app.respondError(w, http.StatusInternalServerError, "failed to stop session")
		return
	}
	app.respondJSON(w, http.StatusOK, sess)
}

// ListSessionsHandler returns the reconciled gallery: pending local sessions
// merged with the cloud catalog. A cloud fetch failure degrades to the local
// list instead of failing the request.
func (app *App) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	local := app.Repo.List()

	var remote []models.CloudSession
	if app.Cloud != nil && app.Health != nil && app.Health.Online() {
		list, err := app.Cloud.ListRecordings(r.Context(), app.DeviceID)
		if err != nil {
			app.Logger.Warn("cloud catalog unavailable, showing local sessions only", zap.Error(err))
		} else {
			remote = list
		}
	}

	app.respondJSON(w, http.StatusOK, view.Merge(local, remote))
}

func (app *App) PromoteSessionHandler(w http.ResponseWriter, r *http.Request) {
	localID := chi.URLParam(r, "id")

	sess, err := app.Repo.Get(localID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			app.respondError(w, http.StatusNotFound, "session not found")
			return
		}
		app.Logger.Error("failed to load session", zap.String("local_id", localID), zap.Error(err))
		app.respondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess.Uploaded {
		app.respondError(w, http.StatusConflict, "session already uploaded")
		return
	}

	if err := app.Promoter.Promote(r.Context(), sess); err != nil {
		if errors.Is(err, errs.ErrPromotionFailed) {
			app.respondError(w, http.StatusBadGateway, "remote service rejected the session")
			return
		}
		app.Logger.Error("promotion failed", zap.String("local_id", localID), zap.Error(err))
		app.respondError(w, http.StatusInternalServerError, "failed to record upload")
		return
	}
	app.respondJSON(w, http.StatusOK, sess)
}

// DeleteSessionHandler removes a local session and its media files. The UI
// confirms before calling; the handler itself does not ask twice.
func (app *App) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	localID := chi.URLParam(r, "id")

	sess, err := app.Repo.Remove(localID)
	if err != nil {
		app.Logger.Error("failed to delete session", zap.String("local_id", localID), zap.Error(err))
		app.respondError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	if sess == nil {
		app.respondError(w, http.StatusNotFound, "session not found")
		return
	}

	for _, name := range []string{sess.VideoPath, sess.AudioPath} {
		if name == "" {
			continue
		}
		if err := app.Media.DeleteFile(name); err != nil {
			app.Logger.Warn("failed to delete media file", zap.String("file", name), zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// MediaHandler streams a local session's media for on-device playback.
// ServeContent handles Range requests, so the player can seek.
func (app *App) MediaHandler(w http.ResponseWriter, r *http.Request) {
	localID := chi.URLParam(r, "id")
	kind := chi.URLParam(r, "kind")

	sess, err := app.Repo.Get(localID)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	var name, contentType string
	switch kind {
	case "video":
		name, contentType = sess.VideoPath, "video/mp4"
	case "audio":
		name, contentType = sess.AudioPath, "audio/mp4"
	default:
		app.respondError(w, http.StatusBadRequest, "media kind must be video or audio")
		return
	}
	if name == "" {
		http.NotFound(w, r)
		return
	}

	file, err := app.Media.OpenFile(name)
	if err != nil {
		http.Error(w, "Media file not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	stat, err := file.(interface{ Stat() (os.FileInfo, error) }).Stat()
	if err != nil {
		http.Error(w, "Error accessing media file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, name, stat.ModTime(), file)
}

type statusResponse struct {
	State          string  `json:"state"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Frame          int     `json:"frame"`
	Online         bool    `json:"online"`
	ActiveID       string  `json:"active_id,omitempty"`
	PendingCount   int     `json:"pending_count"`
}

func (app *App) StatusHandler(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		State:          string(app.Recorder.State()),
		ElapsedSeconds: app.Clock.ElapsedSeconds(),
		Frame:          app.Clock.Frame(),
		PendingCount:   len(app.Repo.Pending()),
	}
	if app.Health != nil {
		resp.Online = app.Health.Online()
	}
	if active := app.Recorder.Active(); active != nil {
		resp.ActiveID = active.LocalID
	}
	app.respondJSON(w, http.StatusOK, resp)
}

func (app *App) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		app.Logger.Error("failed to encode response", zap.Error(err))
	}
}

func (app *App) respondError(w http.ResponseWriter, status int, message string) {
	app.respondJSON(w, status, map[string]string{"error": message})
}
