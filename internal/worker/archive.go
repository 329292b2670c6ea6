package worker

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fabriziosalmi/activitylogs/internal/exporter"
	"github.com/fabriziosalmi/activitylogs/internal/models"
	"github.com/fabriziosalmi/activitylogs/pkg/worm"
)

// ArchiveProcessor seals a finished export: it hashes the array, links it to
// the previous run, uploads a copy and records the run. Ledger and store are
// both optional.
type ArchiveProcessor struct {
	ledger RunLedger
	store  ArchiveStore
	log    *zap.Logger
}

func NewArchiveProcessor(ledger RunLedger, store ArchiveStore, log *zap.Logger) *ArchiveProcessor {
	return &ArchiveProcessor{
		ledger: ledger,
		store:  store,
		log:    log,
	}
}

// Process handles one pipeline result. Every failure is logged and returned
// as a list; none of them undo the export itself.
func (p *ArchiveProcessor) Process(ctx context.Context, res *exporter.Result) (*models.ExportRun, []error) {
	log := p.log.With(zap.String("run_id", res.RunID.String()))

	run := &models.ExportRun{
		ID:          res.RunID,
		WindowStart: res.Window.Start,
		WindowEnd:   res.Window.End,
		Status:      models.RunStatusDone,
		Pages:       res.Pages,
		RecordCount: res.Records,
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
	}
	if res.Err != nil {
		run.Status = models.RunStatusFailed
		run.ErrMsg = res.Err.Error()
	}

	// Nothing on disk means nothing to seal; the run is still recorded.
	if !res.Begun {
		return run, p.record(ctx, log, run, nil)
	}

	var errs []error

	// 1. Hash the artifact
	sha, size, err := worm.HashFile(res.OutputPath)
	if err != nil {
		log.Error("hash output file", zap.String("path", res.OutputPath), zap.Error(err))
		return run, p.record(ctx, log, run, []error{fmt.Errorf("hash output: %w", err)})
	}
	run.SHA256 = sha
	run.ByteCount = size

	// 2. Chain to the previous run
	prevChainHash := worm.GenesisHash
	if p.ledger != nil {
		prev, err := p.ledger.GetLast(ctx)
		if err != nil {
			// No chain hash without a known predecessor.
			log.Error("ledger: get last run", zap.Error(err))
			errs = append(errs, fmt.Errorf("ledger last run: %w", err))
			prevChainHash = ""
		} else if prev != nil {
			prevChainHash = prev.ChainHash
		}
	}
	if prevChainHash != "" {
		run.ChainHash = worm.ChainHash(prevChainHash, sha, run.ID.String())
	}

	// 3. Upload
	if p.store != nil {
		if err := p.upload(ctx, log, run, res.OutputPath); err != nil {
			errs = append(errs, err)
		}
	}

	// 4. Record
	return run, p.record(ctx, log, run, errs)
}

func (p *ArchiveProcessor) upload(ctx context.Context, log *zap.Logger, run *models.ExportRun, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Error("read output file for archive", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("archive read: %w", err)
	}

	key, _, provider, compressed, err := p.store.PutExport(ctx, run.ID, run.WindowStart, run.WindowEnd, raw)
	if err != nil {
		log.Error("archive upload failed", zap.Error(err))
		return fmt.Errorf("archive upload: %w", err)
	}
	run.StorageKey = key
	run.StorageProvider = provider
	log.Info("export archived",
		zap.String("key", key),
		zap.String("provider", provider),
		zap.Int64("compressed_bytes", compressed),
	)
	return nil
}

func (p *ArchiveProcessor) record(ctx context.Context, log *zap.Logger, run *models.ExportRun, errs []error) []error {
	if p.ledger == nil {
		return errs
	}
	if err := p.ledger.Create(ctx, run); err != nil {
		log.Error("ledger: record run", zap.Error(err))
		return append(errs, fmt.Errorf("ledger record: %w", err))
	}
	log.Info("run recorded", zap.String("status", string(run.Status)), zap.String("chain_hash", run.ChainHash))
	return errs
}
