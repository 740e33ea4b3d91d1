package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xowhq/boothcore/internal/errs"
	"github.com/xowhq/boothcore/internal/models"
)

// SessionRepository is the durable store of not-yet-uploaded local sessions.
// Scan events travel inside the session row as a JSON column: one
// serialized record per session.
type SessionRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewSessionRepository(db *DB, logger *zap.Logger) *SessionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRepository{db: db, logger: logger}
}

// Append persists a finalized session. On write failure the caller keeps
// the in-memory record, which is not guaranteed to survive a restart.
func (r *SessionRepository) Append(session *models.LocalSession) error {
	scans, err := json.Marshal(session.Scans)
	if err != nil {
		return fmt.Errorf("%w: encode scans: %v", errs.ErrPersistence, err)
	}

	query := `INSERT INTO sessions
		(local_id, remote_id, device_id, expo_name, booth_name, video_path, audio_path, scans, duration, frame_count, created_at, uploaded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.conn.Exec(rebind(r.db.dbType, query),
		session.LocalID, session.RemoteID, session.DeviceID, session.ExpoName,
		session.BoothName, session.VideoPath, session.AudioPath, string(scans),
		session.Duration, session.FrameCount, session.CreatedAt, session.Uploaded)
	if err != nil {
		return fmt.Errorf("%w: insert session: %v", errs.ErrPersistence, err)
	}
	return nil
}

// List returns all persisted sessions, most-recent-first. A corrupt or
// unreadable store degrades to an empty list rather than an error.
func (r *SessionRepository) List() []models.LocalSession {
	rows, err := r.db.conn.Query(
		`SELECT local_id, remote_id, device_id, expo_name, booth_name, video_path, audio_path, scans, duration, frame_count, created_at, uploaded
		 FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		r.logger.Warn("store: list query failed, treating as empty", zap.Error(err))
		return []models.LocalSession{}
	}
	defer rows.Close()

	sessions := []models.LocalSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			r.logger.Warn("store: skipping unreadable session row", zap.Error(err))
			continue
		}
		sessions = append(sessions, *s)
	}
	return sessions
}

// Pending returns the not-yet-uploaded sessions, most-recent-first.
func (r *SessionRepository) Pending() []models.LocalSession {
	pending := []models.LocalSession{}
	for _, s := range r.List() {
		if !s.Uploaded {
			pending = append(pending, s)
		}
	}
	return pending
}

// Get returns one session by local id, or ErrNotFound.
func (r *SessionRepository) Get(localID string) (*models.LocalSession, error) {
	row := r.db.conn.QueryRow(rebind(r.db.dbType,
		`SELECT local_id, remote_id, device_id, expo_name, booth_name, video_path, audio_path, scans, duration, frame_count, created_at, uploaded
		 FROM sessions WHERE local_id = ?`), localID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// MarkUploaded sets the remote id and the uploaded flag. A one-way,
// idempotent operation; no-op when the session is absent.
func (r *SessionRepository) MarkUploaded(localID, remoteID string) error {
	_, err := r.db.conn.Exec(rebind(r.db.dbType,
		`UPDATE sessions SET remote_id = ?, uploaded = ? WHERE local_id = ?`),
		remoteID, true, localID)
	if err != nil {
		return fmt.Errorf("%w: mark uploaded: %v", errs.ErrPersistence, err)
	}
	return nil
}

// Remove deletes a session and returns the removed record so the caller
// can release its media files. Returns (nil, nil) when the id is unknown.
func (r *SessionRepository) Remove(localID string) (*models.LocalSession, error) {
	session, err := r.Get(localID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	_, err = r.db.conn.Exec(rebind(r.db.dbType, `DELETE FROM sessions WHERE local_id = ?`), localID)
	if err != nil {
		return nil, fmt.Errorf("%w: delete session: %v", errs.ErrPersistence, err)
	}
	return session, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.LocalSession, error) {
	var s models.LocalSession
	var scans string
	var createdAt time.Time
	err := row.Scan(&s.LocalID, &s.RemoteID, &s.DeviceID, &s.ExpoName, &s.BoothName,
		&s.VideoPath, &s.AudioPath, &scans, &s.Duration, &s.FrameCount, &createdAt, &s.Uploaded)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = createdAt.UTC()
	if err := json.Unmarshal([]byte(scans), &s.Scans); err != nil {
		return nil, fmt.Errorf("decode scans: %w", err)
	}
	if s.Scans == nil {
		s.Scans = []models.ScanEvent{}
	}
	return &s, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func rebind(dbType, query string) string {
	if dbType != "postgres" {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}
