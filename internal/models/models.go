package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusDone   RunStatus = "done"
	RunStatusFailed RunStatus = "failed"
)

// ExportRun is the ledger entry for one export.
type ExportRun struct {
	ID              uuid.UUID `db:"id"               json:"id"`
	WindowStart     time.Time `db:"window_start"     json:"window_start"`
	WindowEnd       time.Time `db:"window_end"       json:"window_end"`
	Status          RunStatus `db:"status"           json:"status"`
	Pages           int       `db:"pages"            json:"pages"`
	RecordCount     int64     `db:"record_count"     json:"record_count"`
	ByteCount       int64     `db:"byte_count"       json:"byte_count"`
	SHA256          string    `db:"sha256"           json:"sha256,omitempty"`
	ChainHash       string    `db:"chain_hash"       json:"chain_hash,omitempty"`
	StorageKey      string    `db:"storage_key"      json:"storage_key,omitempty"`
	StorageProvider string    `db:"storage_provider" json:"storage_provider,omitempty"`
	ErrMsg          string    `db:"err_msg"          json:"err_msg,omitempty"`
	StartedAt       time.Time `db:"started_at"       json:"started_at"`
	FinishedAt      time.Time `db:"finished_at"      json:"finished_at"`
	CreatedAt       time.Time `db:"created_at"       json:"created_at"`
}
