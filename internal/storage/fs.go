package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// FSStore implements the Backend interface using the local filesystem.
type FSStore struct {
	root     string
	provider string
}

// NewFSStore creates a new filesystem-based storage backend.
func NewFSStore(root string) (*FSStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: invalid root path: %w", err)
	}

	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root dir: %w", err)
	}

	return &FSStore{
		root:     absRoot,
		provider: "filesystem",
	}, nil
}

func (s *FSStore) Provider() string {
	return s.provider
}

func (s *FSStore) PutExport(_ context.Context, runID uuid.UUID, from, to time.Time, raw []byte) (key, sha256hex string, compressedBytes int64, err error) {
	blob, meta, err := PrepareBlob(raw, runID, from, to)
	if err != nil {
		return "", "", 0, err
	}

	fullPath := filepath.Join(s.root, meta.Key)
	dir := filepath.Dir(fullPath)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", 0, fmt.Errorf("storage: mkdir: %w", err)
	}

	// Atomic write: temp file in the target dir, then rename.
	tmpFile, err := os.CreateTemp(dir, "export-*.tmp")
	if err != nil {
		return "", "", 0, fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmpFile.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if err := tmpFile.Chmod(0o644); err != nil {
		tmpFile.Close()
		return "", "", 0, fmt.Errorf("storage: chmod: %w", err)
	}
	if _, err := tmpFile.Write(blob); err != nil {
		tmpFile.Close()
		return "", "", 0, fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", "", 0, fmt.Errorf("storage: close temp: %w", err)
	}

	if err := os.Rename(tmpName, fullPath); err != nil {
		return "", "", 0, fmt.Errorf("storage: rename: %w", err)
	}

	return meta.Key, meta.SHA256, meta.Size, nil
}

func (s *FSStore) GetExport(_ context.Context, key string) ([]byte, error) {
	f, err := os.Open(filepath.Join(s.root, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: key not found: %s", key)
		}
		return nil, fmt.Errorf("storage: open file: %w", err)
	}
	defer f.Close()

	return DecompressBlob(f)
}
