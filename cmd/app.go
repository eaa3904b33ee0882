package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"klinevault/config"
	"klinevault/internal/fetcher"
	"klinevault/internal/metrics"
	"klinevault/internal/model"
	"klinevault/internal/orchestrator"
	"klinevault/internal/store"
	"klinevault/internal/symbols"
	"klinevault/internal/writer"
	"klinevault/logger"
)

// app wires the components of one asset category.
type app struct {
	cfg      *config.Config
	category model.AssetCategory
	fetcher  *fetcher.Fetcher
	store    *store.Store
	orch     *orchestrator.Orchestrator
	log      *logger.Log
}

func newApp(ctx context.Context, cfg *config.Config, force bool) (*app, error) {
	category, err := model.ParseAssetCategory(cfg.Data.AssetCategory)
	if err != nil {
		return nil, err
	}

	f := fetcher.New(cfg, category)
	opts := []store.Option{store.WithForce(force)}
	if cfg.Storage.S3.Enabled {
		mirror, err := writer.NewS3Mirror(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("init s3 mirror: %w", err)
		}
		opts = append(opts, store.WithSink(mirror))
	}
	st := store.New(cfg, category, f, opts...)

	reportDir := filepath.Join(cfg.Data.StoreDir, category.String())
	return &app{
		cfg:      cfg,
		category: category,
		fetcher:  f,
		store:    st,
		orch:     orchestrator.New(st, cfg.Sync.MaxWorkers, reportDir),
		log:      logger.GetLogger(),
	}, nil
}

// universe resolves the configured symbol set, narrowed to names when given.
func (a *app) universe(ctx context.Context, names []string) ([]model.Symbol, error) {
	provider, err := symbols.FromConfig(a.cfg, a.category)
	if err != nil {
		return nil, err
	}
	all, err := provider.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	return symbols.Select(all, names)
}

// syncOnce runs one full sync and reports its metrics.
func (a *app) syncOnce(ctx context.Context, names []string) (orchestrator.Report, error) {
	list, err := a.universe(ctx, names)
	if err != nil {
		return orchestrator.Report{}, fmt.Errorf("resolve symbols: %w", err)
	}

	before := a.fetcher.Stats()
	report, err := a.orch.SyncAll(ctx, list)
	after := a.fetcher.Stats()

	metrics.ReportSync(a.log, "sync", metrics.SyncStats{
		Category:          a.category.String(),
		SymbolsTotal:      int64(report.Total()),
		SymbolsSynced:     int64(len(report.Succeeded)),
		SymbolsFailed:     int64(len(report.Failed)),
		PartitionsPresent: after.Present - before.Present,
		PartitionsFetched: after.Fetched - before.Fetched,
		PartitionsSkipped: after.Skipped - before.Skipped,
		PartitionsFailed:  after.Failed - before.Failed,
		BytesDownloaded:   after.Bytes - before.Bytes,
		Duration:          report.Duration(),
	})
	return report, err
}
