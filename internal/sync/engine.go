// Package sync promotes local-only sessions into cloud-backed ones. The
// pipeline is an ordered sequence of independently retriable steps with an
// explicit failure policy per step, not a nest of try/catch.
package sync

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/xowhq/boothcore/internal/errs"
	"github.com/xowhq/boothcore/internal/models"
	"github.com/xowhq/boothcore/internal/storage"
)

// RemoteAPI is the slice of the cloud client the engine drives.
type RemoteAPI interface {
	CreateRecording(ctx context.Context, deviceID, expoName, boothName string) (*models.CloudSession, error)
	UploadVideo(ctx context.Context, remoteID, filename string, media io.Reader) error
	UploadAudio(ctx context.Context, remoteID, filename string, media io.Reader) error
	SubmitScan(ctx context.Context, remoteID string, event models.ScanEvent) error
	CompleteRecording(ctx context.Context, remoteID string) error
}

// UploadStore is the slice of the local store the engine updates.
type UploadStore interface {
	MarkUploaded(localID, remoteID string) error
}

// Archiver mirrors media off-device; optional.
type Archiver interface {
	ArchiveFile(ctx context.Context, localID, filename, contentType string, body io.Reader) (string, error)
}

// Engine drives one promotion at a time. Failure policy per step:
//   - create remote session: aborts the promotion, local state untouched
//   - video/audio upload, scan submission, completion: logged and swallowed
//   - final store update: returned so the caller can surface it
//
// The engine never checks the uploaded flag itself; callers gate on it.
type Engine struct {
	api     RemoteAPI
	store   UploadStore
	media   storage.MediaStore
	archive Archiver
	logger  *zap.Logger
}

func NewEngine(api RemoteAPI, store UploadStore, media storage.MediaStore, archive Archiver, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{api: api, store: store, media: media, archive: archive, logger: logger}
}

// Promote uploads one local session. On success the session's RemoteID and
// Uploaded flag are set both in the store and on the passed record.
func (e *Engine) Promote(ctx context.Context, session *models.LocalSession) error {
	remote, err := e.api.CreateRecording(ctx, session.DeviceID, session.ExpoName, session.BoothName)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrPromotionFailed, err)
	}
	remoteID := remote.RemoteID
	e.logger.Info("promotion started",
		zap.String("local_id", session.LocalID),
		zap.String("remote_id", remoteID))

	if session.HasVideo() {
		if err := e.uploadMedia(ctx, remoteID, session.VideoPath, e.api.UploadVideo); err != nil {
			e.logger.Warn("sync: video upload failed", zap.String("local_id", session.LocalID), zap.Error(err))
		}
	}
	if session.HasAudio() {
		if err := e.uploadMedia(ctx, remoteID, session.AudioPath, e.api.UploadAudio); err != nil {
			e.logger.Warn("sync: audio upload failed", zap.String("local_id", session.LocalID), zap.Error(err))
		}
	}

	for _, event := range session.Scans {
		if err := e.api.SubmitScan(ctx, remoteID, event); err != nil {
			e.logger.Warn("sync: scan submission failed",
				zap.String("local_id", session.LocalID),
				zap.String("barcode", event.BarcodeData),
				zap.Error(err))
		}
	}

	if err := e.api.CompleteRecording(ctx, remoteID); err != nil {
		e.logger.Warn("sync: completion failed", zap.String("local_id", session.LocalID), zap.Error(err))
	}

	e.archiveMedia(ctx, session)

	if err := e.store.MarkUploaded(session.LocalID, remoteID); err != nil {
		return err
	}
	session.RemoteID = remoteID
	session.Uploaded = true
	e.logger.Info("promotion finished", zap.String("local_id", session.LocalID), zap.String("remote_id", remoteID))
	return nil
}

func (e *Engine) uploadMedia(ctx context.Context, remoteID, filename string, upload func(context.Context, string, string, io.Reader) error) error {
	file, err := e.media.OpenFile(filename)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	defer file.Close()
	return upload(ctx, remoteID, filename, file)
}

// archiveMedia mirrors media to the configured off-device archive;
// best-effort, never blocks promotion.
func (e *Engine) archiveMedia(ctx context.Context, session *models.LocalSession) {
	if e.archive == nil {
		return
	}
	if session.HasVideo() {
		if err := e.archiveOne(ctx, session.LocalID, session.VideoPath, "video/mp4"); err != nil {
			e.logger.Warn("sync: video archive failed", zap.String("local_id", session.LocalID), zap.Error(err))
		}
	}
	if session.HasAudio() {
		if err := e.archiveOne(ctx, session.LocalID, session.AudioPath, "audio/mp4"); err != nil {
			e.logger.Warn("sync: audio archive failed", zap.String("local_id", session.LocalID), zap.Error(err))
		}
	}
}

func (e *Engine) archiveOne(ctx context.Context, localID, filename, contentType string) error {
	file, err := e.media.OpenFile(filename)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	defer file.Close()
	_, err = e.archive.ArchiveFile(ctx, localID, filename, contentType, file)
	return err
}
