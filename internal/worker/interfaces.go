package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fabriziosalmi/activitylogs/internal/models"
)

// Interfaces for dependency injection to allow testing.

// RunLedger records export runs.
type RunLedger interface {
	GetLast(ctx context.Context) (*models.ExportRun, error)
	Create(ctx context.Context, run *models.ExportRun) error
}

// ArchiveStore keeps a copy of each finished export.
type ArchiveStore interface {
	PutExport(ctx context.Context, runID uuid.UUID, from, to time.Time, raw []byte) (key, sha256hex, provider string, compressedBytes int64, err error)
}
