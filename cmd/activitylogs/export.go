package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fabriziosalmi/activitylogs/internal/azure"
	"github.com/fabriziosalmi/activitylogs/internal/config"
	"github.com/fabriziosalmi/activitylogs/internal/db"
	"github.com/fabriziosalmi/activitylogs/internal/exporter"
	"github.com/fabriziosalmi/activitylogs/internal/storage"
	"github.com/fabriziosalmi/activitylogs/internal/worker"
	"github.com/fabriziosalmi/activitylogs/pkg/logger"
)

const (
	exitAuth    = 1
	exitPartial = 2
)

func newExportCmd() *cobra.Command {
	var (
		days   int
		output string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Fetch the activity log for the trailing window and write it as a JSON array",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("days") {
				cfg.Export.Days = days
			}
			if cmd.Flags().Changed("output") {
				cfg.Export.OutputPath = output
			}
			if cmd.Flags().Changed("strict") {
				cfg.Export.Strict = strict
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runExport(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&days, "days", 1, "Days of history to export (overrides export.days)")
	cmd.Flags().StringVarP(&output, "output", "o", "logs.json", "Output file (overrides export.output_path)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any page, storage or archive step fails")

	return cmd
}

func runExport(ctx context.Context, cfg *config.Config) error {
	log := logger.Must(cfg.App.Env, cfg.App.LogFile)
	defer func() { _ = log.Sync() }()
	log.Info("starting export",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("env", cfg.App.Env),
		zap.Int("days", cfg.Export.Days),
	)

	// 1. Export
	client := azure.NewClient(cfg.Azure, log)
	pipeline := exporter.New(azure.NewTokenProvider(cfg.Azure, log), client, exporter.Options{
		Resource:         cfg.Azure.Resource,
		Endpoint:         client.ActivityLogsURL(),
		APIVersion:       client.APIVersion(),
		EventChannels:    cfg.Azure.EventChannels,
		ResourceProvider: cfg.Azure.ResourceProvider,
		Days:             cfg.Export.Days,
		OutputPath:       cfg.Export.OutputPath,
		RateLimit:        cfg.Azure.RateLimit,
	}, log)
	res, runErr := pipeline.Run(ctx)

	// 2. Archive & record
	ledger, store, closeFn, setupErrs := openArchive(ctx, cfg, log)
	defer closeFn()
	_, archiveErrs := worker.NewArchiveProcessor(ledger, store, log).Process(ctx, res)

	var authErr *azure.AuthError
	if errors.As(runErr, &authErr) {
		return exitWith(exitAuth, runErr)
	}

	problems := len(setupErrs) + len(archiveErrs) + len(res.StorageErrors)
	if runErr != nil {
		problems++
	}
	if problems > 0 && cfg.Export.Strict {
		if runErr == nil {
			runErr = errors.New("export completed with storage or archive errors")
		}
		return exitWith(exitPartial, fmt.Errorf("strict mode: %w", runErr))
	}
	if problems > 0 {
		log.Warn("export finished with errors", zap.Int("errors", problems), zap.String("state", string(res.State)))
	}
	return nil
}

// openArchive builds the optional ledger and archive store. Failures are
// logged and returned; the export proceeds without the missing piece.
func openArchive(ctx context.Context, cfg *config.Config, log *zap.Logger) (worker.RunLedger, worker.ArchiveStore, func(), []error) {
	var (
		ledger worker.RunLedger
		store  worker.ArchiveStore
		errs   []error
	)
	closeFn := func() {}

	if cfg.Database.DSN != "" {
		database, err := db.Connect(ctx, cfg.Database)
		if err != nil {
			log.Error("run ledger unavailable", zap.Error(err))
			errs = append(errs, err)
		} else {
			ledger = database.ExportRuns
			closeFn = database.Close
		}
	}

	backends, err := storageBackends(ctx, cfg, log)
	if err != nil {
		log.Error("archive storage unavailable", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
		errs = append(errs, err)
	} else if len(backends) > 0 {
		store = storage.NewMultiStore(backends...)
	}

	return ledger, store, closeFn, errs
}

func storageBackends(ctx context.Context, cfg *config.Config, log *zap.Logger) ([]storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "", "none":
		return nil, nil
	case "fs":
		fs, err := storage.NewFSStore(cfg.Storage.FSRoot)
		if err != nil {
			return nil, err
		}
		return []storage.Backend{fs}, nil
	case "s3":
		s3, err := storage.New(ctx, cfg.S3, "s3-default")
		if err != nil {
			return nil, err
		}
		return []storage.Backend{s3}, nil
	case "multi":
		// S3 first, local directory as the fallback.
		var backends []storage.Backend
		s3, s3Err := storage.New(ctx, cfg.S3, "s3-default")
		if s3Err == nil {
			backends = append(backends, s3)
		} else {
			log.Warn("s3 archive unavailable, using filesystem only", zap.Error(s3Err))
		}
		fs, err := storage.NewFSStore(cfg.Storage.FSRoot)
		if err != nil {
			return nil, errors.Join(s3Err, err)
		}
		return append(backends, fs), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}
