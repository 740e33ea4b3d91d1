package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// BasePath returns the media directory, used by captures as their output
// location before the file is ingested.
func (ls *LocalStorage) BasePath() string {
	return ls.basePath
}

func (ls *LocalStorage) SaveFile(src io.Reader, info FileInfo) (string, error) {
	filename := ls.managedName(info.Filename)
	fullPath := filepath.Join(ls.basePath, filename)

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return filename, nil
}

// IngestFile adopts an already-written file (a capture output) under a
// managed name without copying. Falls back to copy+remove across
// filesystems.
func (ls *LocalStorage) IngestFile(srcPath string, info FileInfo) (string, error) {
	filename := ls.managedName(info.Filename)
	fullPath := filepath.Join(ls.basePath, filename)

	if err := os.Rename(srcPath, fullPath); err != nil {
		src, openErr := os.Open(srcPath)
		if openErr != nil {
			return "", fmt.Errorf("failed to ingest file: %w", err)
		}
		defer src.Close()
		name, saveErr := ls.SaveFile(src, info)
		if saveErr != nil {
			return "", saveErr
		}
		os.Remove(srcPath)
		return name, nil
	}

	return filename, nil
}

func (ls *LocalStorage) OpenFile(path string) (io.ReadSeekCloser, error) {
	fullPath, err := ls.resolve(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

func (ls *LocalStorage) DeleteFile(path string) error {
	fullPath, err := ls.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

func (ls *LocalStorage) managedName(original string) string {
	ext := filepath.Ext(original)
	if ext == "" {
		ext = ".mp4"
	}
	return fmt.Sprintf("%s%s", uuid.New().String(), ext)
}

func (ls *LocalStorage) resolve(path string) (string, error) {
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return "", fmt.Errorf("invalid path")
	}
	return filepath.Join(ls.basePath, cleanPath), nil
}
