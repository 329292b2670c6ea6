package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Backend defines the interface for export archive systems.
type Backend interface {
	// PutExport compresses and stores a finished export array.
	PutExport(ctx context.Context, runID uuid.UUID, from, to time.Time, raw []byte) (key, sha256hex string, compressedBytes int64, err error)

	// GetExport retrieves and decompresses an archived export.
	GetExport(ctx context.Context, key string) ([]byte, error)

	// Provider returns the name of the storage provider (e.g., "s3", "fs").
	Provider() string
}
