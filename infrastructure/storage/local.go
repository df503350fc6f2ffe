package storage

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	pkgerrors "github.com/Skryldev/ivr-studio/pkg/errors"
)

// LocalStorage implements ports.StorageProvider for local filesystem
type LocalStorage struct{}

// NewLocalStorage creates a new local storage provider
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{}
}

// Exists checks if a file exists
func (s *LocalStorage) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.NewIOError("stat", path, err)
	}
	return true, nil
}

// Remove deletes a file
func (s *LocalStorage) Remove(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		return pkgerrors.NewIOError("remove", path, err)
	}
	return nil
}

// RemoveAll removes a directory tree; missing paths are ignored
func (s *LocalStorage) RemoveAll(_ context.Context, path string) error {
	if err := os.RemoveAll(path); err != nil {
		return pkgerrors.NewIOError("remove_all", path, err)
	}
	return nil
}

// MkdirAll creates a directory and any missing parents
func (s *LocalStorage) MkdirAll(_ context.Context, path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return pkgerrors.NewIOError("mkdir", path, err)
	}
	return nil
}

// Rename moves src over dst; atomic when both live on the same volume
func (s *LocalStorage) Rename(_ context.Context, src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return pkgerrors.NewIOError("rename", dst, err)
	}
	return nil
}

// Copy duplicates src into dst through a sibling temp file and a rename
func (s *LocalStorage) Copy(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return pkgerrors.NewIOError("open", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return pkgerrors.NewIOError("create", dst, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return pkgerrors.NewIOError("copy", dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return pkgerrors.NewIOError("close", dst, err)
	}
	if err := s.Rename(ctx, tmpName, dst); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ReadDir lists a directory sorted by filename
func (s *LocalStorage) ReadDir(_ context.Context, path string) ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, pkgerrors.NewIOError("read_dir", path, err)
	}
	return entries, nil
}

// WriteFile writes data to path, creating or truncating it
func (s *LocalStorage) WriteFile(_ context.Context, path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return pkgerrors.NewIOError("write", path, err)
	}
	return nil
}
