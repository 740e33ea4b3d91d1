package models

import "time"

// EntryKind tags the variant held by a reconciliation Entry.
type EntryKind string

const (
	EntryLocal EntryKind = "local"
	EntryCloud EntryKind = "cloud"
)

// Entry is one row of the reconciled session list: either a local-only
// session or a cloud session, never both. The accessor set is uniform so
// the gallery renders entries without caring about the variant.
type Entry struct {
	Kind  EntryKind     `json:"kind"`
	Local *LocalSession `json:"local,omitempty"`
	Cloud *CloudSession `json:"cloud,omitempty"`
}

// ID returns the entry's identifier: local id for local entries, remote id
// for cloud entries.
func (e Entry) ID() string {
	if e.Kind == EntryLocal {
		return e.Local.LocalID
	}
	return e.Cloud.RemoteID
}

// StartTime is the ordering key: local creation time or remote start time.
func (e Entry) StartTime() time.Time {
	if e.Kind == EntryLocal {
		return e.Local.CreatedAt
	}
	return e.Cloud.StartTime
}

func (e Entry) HasVideo() bool {
	if e.Kind == EntryLocal {
		return e.Local.HasVideo()
	}
	return e.Cloud.HasVideo
}

func (e Entry) HasAudio() bool {
	if e.Kind == EntryLocal {
		return e.Local.HasAudio()
	}
	return e.Cloud.HasAudio
}

// ScanCount reports the number of badge scans attached to the session.
func (e Entry) ScanCount() int {
	if e.Kind == EntryLocal {
		return len(e.Local.Scans)
	}
	return e.Cloud.ScanCount
}

// Status reports the pipeline status. Local-only sessions are pending
// upload by definition.
func (e Entry) Status() string {
	if e.Kind == EntryLocal {
		return "pending_upload"
	}
	return string(e.Cloud.Status)
}

// BoothName returns the booth the session was recorded at.
func (e Entry) BoothName() string {
	if e.Kind == EntryLocal {
		return e.Local.BoothName
	}
	return e.Cloud.BoothName
}
