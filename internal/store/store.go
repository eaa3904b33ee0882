// Package store owns the canonical and resampled kline tables of every
// symbol in one asset category.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	appconfig "klinevault/config"
	"klinevault/internal/calendar"
	"klinevault/internal/fetcher"
	"klinevault/internal/metadata"
	"klinevault/internal/model"
	"klinevault/logger"
)

// PartitionFetcher makes raw partitions available on local disk.
type PartitionFetcher interface {
	Prepare(symbol string) error
	EnsureFetched(ctx context.Context, symbol string, g model.Granularity, period time.Time) fetcher.Outcome
}

// ArtifactSink receives every artifact written by a build.
type ArtifactSink interface {
	Upload(ctx context.Context, category model.AssetCategory, symbol, path string) error
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for sync planning.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSink mirrors every written artifact to sink.
func WithSink(sink ArtifactSink) Option {
	return func(s *Store) { s.sink = sink }
}

// WithForce rebuilds artifacts even when they are current.
func WithForce(force bool) Option {
	return func(s *Store) { s.force = force }
}

// Store builds, persists and loads kline tables.
type Store struct {
	data      appconfig.DataConfig
	freshness string
	retryWait time.Duration
	category  model.AssetCategory
	fetcher   PartitionFetcher
	sink      ArtifactSink
	force     bool
	now       func() time.Time
	log       *logger.Log
}

// New returns a Store for category that pulls partitions through f.
func New(cfg *appconfig.Config, category model.AssetCategory, f PartitionFetcher, opts ...Option) *Store {
	s := &Store{
		data:      cfg.Data,
		freshness: cfg.Sync.Freshness,
		retryWait: cfg.Sync.RetryMissingAfter,
		category:  category,
		fetcher:   f,
		now:       time.Now,
		log:       logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Category returns the asset category of the store.
func (s *Store) Category() model.AssetCategory { return s.category }

// SymbolDir is the directory holding every artifact of symbol.
func (s *Store) SymbolDir(symbol string) string {
	return filepath.Join(s.data.StoreDir, s.category.String(), strings.ToUpper(symbol))
}

// ArtifactPath is the parquet file of symbol at timeframe; an empty
// timeframe addresses the canonical table.
func (s *Store) ArtifactPath(symbol, timeframe string) string {
	name := strings.ToUpper(symbol)
	if timeframe != "" {
		name += "-" + timeframe
	}
	return filepath.Join(s.SymbolDir(symbol), name+".parquet")
}

// Load reads a stored table. It returns nil without error when the
// artifact does not exist.
func (s *Store) Load(symbol, timeframe string) (*model.Table, error) {
	path := s.ArtifactPath(symbol, timeframe)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	bars, err := readParquet(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return &model.Table{Symbol: strings.ToUpper(symbol), Timeframe: timeframe, Bars: bars}, nil
}

// Sync brings the artifacts of symbol up to date.
func (s *Store) Sync(ctx context.Context, symbol model.Symbol) error {
	start := time.Now()
	name := strings.ToUpper(symbol.Name)
	log := s.log.WithComponent("store").WithSymbol(name)

	if !s.force {
		current, err := s.isCurrent(name)
		if err != nil {
			log.WithError(err).Warn("could not check existing artifact; rebuilding")
		} else if current {
			log.Debug("artifacts up to date")
			return nil
		}
	}

	plan, err := calendar.Plan(symbol.OnboardDate, s.now())
	if err != nil {
		return fmt.Errorf("plan %s: %w", name, err)
	}
	if err := s.fetcher.Prepare(name); err != nil {
		return err
	}

	files := make([]string, 0, plan.Len())
	var missing []string
	for _, g := range []model.Granularity{model.Monthly, model.Daily} {
		for _, period := range plan.Partitions(g) {
			if err := ctx.Err(); err != nil {
				return err
			}
			out := s.fetcher.EnsureFetched(ctx, name, g, period)
			if out.Usable() {
				files = append(files, out.Path)
			} else {
				missing = append(missing, partitionName(g, period))
			}
		}
	}

	table, stats, err := Build(name, files)
	if err != nil {
		return fmt.Errorf("build %s: %w", name, err)
	}
	logger.LogDataFlowEntry(log, "raw_csv", "canonical_table", table.Len(), "kline")
	if stats.Incomplete > 0 || stats.Duplicates > 0 {
		log.WithFields(logger.Fields{
			"incomplete_rows": stats.Incomplete,
			"duplicate_rows":  stats.Duplicates,
		}).Info("dropped rows while building table")
	}
	if len(missing) > 0 {
		log.WithFields(logger.Fields{"missing_partitions": len(missing)}).Info("built without unavailable partitions")
	}

	if err := s.persist(ctx, table, calendar.Yesterday(s.now()), missing); err != nil {
		return err
	}

	logger.LogPerformanceEntry(log, "store", "sync", time.Since(start), logger.Fields{
		"partitions": plan.Len(),
		"files":      len(files),
		"rows":       table.Len(),
	})
	return nil
}

// persist writes the canonical table and every resampled view, then
// records them in the manifest and hands them to the sink.
func (s *Store) persist(ctx context.Context, table *model.Table, plannedThrough time.Time, missing []string) error {
	log := s.log.WithComponent("store").WithSymbol(table.Symbol)
	gen := metadata.NewGenerator(s.SymbolDir(table.Symbol), s.category.String(), table.Symbol)
	gen.SetCoverage(plannedThrough, missing)

	tables := []*model.Table{table}
	for _, tf := range s.data.Timeframes {
		resampled, err := Resample(table, tf)
		if err != nil {
			return fmt.Errorf("resample %s to %s: %w", table.Symbol, tf, err)
		}
		tables = append(tables, resampled)
	}

	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		path := s.ArtifactPath(t.Symbol, t.Timeframe)
		if err := writeParquet(path, t, s.data.Compression); err != nil {
			return fmt.Errorf("persist %s: %w", filepath.Base(path), err)
		}
		first, _ := t.First()
		last, _ := t.Last()
		if err := gen.AddFile(metadata.DataFile{
			Timeframe:     t.Timeframe,
			Path:          path,
			RecordCount:   int64(t.Len()),
			FirstOpenTime: first.OpenTime,
			LastOpenTime:  last.OpenTime,
		}); err != nil {
			return err
		}
		paths = append(paths, path)
	}

	manifest, err := gen.Commit(s.now())
	if err != nil {
		return fmt.Errorf("write manifest for %s: %w", table.Symbol, err)
	}
	log.WithFields(logger.Fields{
		"build_id":  manifest.BuildID,
		"artifacts": len(paths),
	}).Info("artifacts written")

	if s.sink == nil {
		return nil
	}
	for _, path := range append(paths, filepath.Join(s.SymbolDir(table.Symbol), metadata.FileName)) {
		if err := s.sink.Upload(ctx, s.category, table.Symbol, path); err != nil {
			// the local artifacts are authoritative; a failed mirror is retried on the next build
			log.WithError(err).WithFields(logger.Fields{"path": path}).Warn("artifact mirror failed")
		}
	}
	return nil
}

// isCurrent applies the freshness policy to an existing canonical artifact.
// Under the stale policy an artifact is current when its last bar reaches
// yesterday, or when the previous build already planned through yesterday
// and is younger than the retry wait.
func (s *Store) isCurrent(symbol string) (bool, error) {
	if _, err := os.Stat(s.ArtifactPath(symbol, "")); errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if s.freshness == appconfig.FreshnessNever {
		return true, nil
	}

	m, err := metadata.Read(s.SymbolDir(symbol))
	if err != nil {
		return false, err
	}
	last, err := s.lastOpenTime(symbol, m)
	if err != nil {
		return false, err
	}

	now := s.now()
	yesterday := calendar.Yesterday(now)
	if !calendar.DayStart(last).Before(yesterday) {
		return true, nil
	}
	if m != nil && !m.PlannedThrough.IsZero() && !m.PlannedThrough.Before(yesterday) {
		return now.Sub(m.BuiltAt) < s.retryWait, nil
	}
	return false, nil
}

func (s *Store) lastOpenTime(symbol string, m *metadata.Manifest) (time.Time, error) {
	if df, ok := m.Canonical(); ok {
		return df.LastOpenTime, nil
	}

	table, err := s.Load(symbol, "")
	if err != nil {
		return time.Time{}, err
	}
	last, ok := table.Last()
	if !ok {
		return time.Time{}, nil
	}
	return last.OpenTime, nil
}

func partitionName(g model.Granularity, period time.Time) string {
	if g == model.Monthly {
		return string(g) + "/" + period.Format("2006-01")
	}
	return string(g) + "/" + period.Format("2006-01-02")
}
