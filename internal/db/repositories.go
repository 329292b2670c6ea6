package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabriziosalmi/activitylogs/internal/models"
)

// ── ExportRunRepository ───────────────────────────────────────────────────────

type ExportRunRepository struct{ db *pgxpool.Pool }

func NewExportRunRepository(db *pgxpool.Pool) *ExportRunRepository {
	return &ExportRunRepository{db: db}
}

const runColumns = `id,window_start,window_end,status,pages,record_count,byte_count,
	sha256,chain_hash,storage_key,storage_provider,err_msg,started_at,finished_at,created_at`

func (r *ExportRunRepository) Create(ctx context.Context, run *models.ExportRun) error {
	const q = `INSERT INTO export_runs
		(id,window_start,window_end,status,pages,record_count,byte_count,
		 sha256,chain_hash,storage_key,storage_provider,err_msg,started_at,finished_at,created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now())
		RETURNING created_at`
	return r.db.QueryRow(ctx, q,
		run.ID, run.WindowStart, run.WindowEnd, run.Status, run.Pages, run.RecordCount, run.ByteCount,
		run.SHA256, run.ChainHash, run.StorageKey, run.StorageProvider, run.ErrMsg, run.StartedAt, run.FinishedAt,
	).Scan(&run.CreatedAt)
}

func (r *ExportRunRepository) Get(ctx context.Context, id uuid.UUID) (*models.ExportRun, error) {
	q := `SELECT ` + runColumns + ` FROM export_runs WHERE id=$1`
	run, err := scanRun(r.db.QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("export_run get %s: %w", id, err)
	}
	return run, nil
}

// GetLast returns the most recent chained run, or nil
// when the ledger is empty.
func (r *ExportRunRepository) GetLast(ctx context.Context) (*models.ExportRun, error) {
	q := `SELECT ` + runColumns + ` FROM export_runs
		WHERE chain_hash <> '' ORDER BY created_at DESC, id DESC LIMIT 1`
	run, err := scanRun(r.db.QueryRow(ctx, q))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("export_run last: %w", err)
	}
	return run, nil
}

// ListChained returns every run that carries a chain hash, oldest first.
func (r *ExportRunRepository) ListChained(ctx context.Context) ([]*models.ExportRun, error) {
	q := `SELECT ` + runColumns + ` FROM export_runs
		WHERE chain_hash <> '' ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("export_run list: %w", err)
	}
	defer rows.Close()

	var out []*models.ExportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (*models.ExportRun, error) {
	run := &models.ExportRun{}
	err := row.Scan(
		&run.ID, &run.WindowStart, &run.WindowEnd, &run.Status, &run.Pages, &run.RecordCount, &run.ByteCount,
		&run.SHA256, &run.ChainHash, &run.StorageKey, &run.StorageProvider, &run.ErrMsg,
		&run.StartedAt, &run.FinishedAt, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}
