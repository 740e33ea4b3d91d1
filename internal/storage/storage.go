package storage

import "io"

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// MediaStore persists captured media files. Captures write into the media
// directory directly; IngestFile adopts such a file under a managed name,
// SaveFile streams new content in.
type MediaStore interface {
	SaveFile(src io.Reader, info FileInfo) (string, error)
	IngestFile(srcPath string, info FileInfo) (string, error)
	OpenFile(path string) (io.ReadSeekCloser, error)
	DeleteFile(path string) error
}
