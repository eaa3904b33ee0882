// Package fetcher downloads kline archives and keeps the raw per-partition
// CSV files on local disk.
package fetcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	appconfig "klinevault/config"
	"klinevault/internal/model"
	"klinevault/internal/sanitizer"
	"klinevault/logger"
)

// Status is the result of ensuring one partition is available locally.
type Status int

const (
	AlreadyPresent Status = iota
	Fetched
	Skipped
	Failed
)

func (s Status) String() string {
	switch s {
	case AlreadyPresent:
		return "already_present"
	case Fetched:
		return "fetched"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome describes what EnsureFetched did for one partition.
type Outcome struct {
	Granularity model.Granularity
	Period      time.Time
	Path        string
	URL         string
	Status      Status
	Bytes       int64
	Err         error
}

// Usable reports whether the partition's CSV exists after the call.
func (o Outcome) Usable() bool {
	return o.Status == AlreadyPresent || o.Status == Fetched
}

// Stats are cumulative counters across all partitions handled.
type Stats struct {
	Present int64
	Fetched int64
	Skipped int64
	Failed  int64
	Bytes   int64
}

// Fetcher materialises archive partitions for one asset category.
type Fetcher struct {
	data     appconfig.DataConfig
	category model.AssetCategory
	client   *resty.Client
	limiter  *rate.Limiter
	log      *logger.Log

	present atomic.Int64
	fetched atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
	bytes   atomic.Int64
}

// New builds a Fetcher using the data layout and transport settings in cfg.
func New(cfg *appconfig.Config, category model.AssetCategory) *Fetcher {
	rps := cfg.Fetcher.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Fetcher.RateLimit.BurstSize
	if burst <= 0 {
		burst = rps
	}

	return &Fetcher{
		data:     cfg.Data,
		category: category,
		client:   newClient(cfg.Fetcher),
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		log:      logger.GetLogger(),
	}
}

func newClient(cfg appconfig.FetcherConfig) *resty.Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent)

	if cfg.Retry.MaxAttempts > 1 {
		client.
			SetRetryCount(cfg.Retry.MaxAttempts - 1).
			SetRetryWaitTime(cfg.Retry.BaseDelay).
			SetRetryMaxWaitTime(cfg.Retry.MaxDelay).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return r != nil && (r.StatusCode() == 429 || r.StatusCode() >= 500)
			})
	}
	return client
}

// Category returns the asset category served by f.
func (f *Fetcher) Category() model.AssetCategory { return f.category }

// Stats returns a snapshot of the cumulative counters.
func (f *Fetcher) Stats() Stats {
	return Stats{
		Present: f.present.Load(),
		Fetched: f.fetched.Load(),
		Skipped: f.skipped.Load(),
		Failed:  f.failed.Load(),
		Bytes:   f.bytes.Load(),
	}
}

// SymbolDir is the directory holding the extracted CSVs of one symbol and
// granularity.
func (f *Fetcher) SymbolDir(symbol string, g model.Granularity) string {
	return filepath.Join(f.data.RawDir, f.category.String(), g.String(), strings.ToUpper(symbol))
}

// FileName renders the archive base name for a partition, without extension.
func (f *Fetcher) FileName(symbol string, g model.Granularity, period time.Time) string {
	layout := f.data.DateFormatMonthly
	if g == model.Daily {
		layout = f.data.DateFormatDaily
	}
	r := strings.NewReplacer(
		"[[Symbol]]", strings.ToUpper(symbol),
		"[[Timeframe]]", f.data.BaseTimeframe,
		"[[Date]]", period.UTC().Format(layout),
	)
	return r.Replace(f.data.FileTemplate)
}

// LocalPath is where the sanitized CSV of a partition lives.
func (f *Fetcher) LocalPath(symbol string, g model.Granularity, period time.Time) string {
	return filepath.Join(f.SymbolDir(symbol, g), f.FileName(symbol, g, period)+".csv")
}

// RemoteURL is the archive location of a partition.
func (f *Fetcher) RemoteURL(symbol string, g model.Granularity, period time.Time) string {
	base := strings.TrimRight(f.data.ArchiveURI(f.category.String(), g.String()), "/")
	return fmt.Sprintf("%s/%s/%s/%s.zip", base, strings.ToUpper(symbol), f.data.BaseTimeframe, f.FileName(symbol, g, period))
}

// Prepare creates the local directories for every granularity of symbol.
func (f *Fetcher) Prepare(symbol string) error {
	for _, g := range []model.Granularity{model.Monthly, model.Daily} {
		if err := os.MkdirAll(f.SymbolDir(symbol, g), 0o755); err != nil {
			return fmt.Errorf("create raw dir for %s: %w", symbol, err)
		}
	}
	return nil
}

// EnsureFetched makes sure the sanitized CSV for one partition exists
// locally. An existing CSV short-circuits without any network access.
func (f *Fetcher) EnsureFetched(ctx context.Context, symbol string, g model.Granularity, period time.Time) Outcome {
	out := Outcome{
		Granularity: g,
		Period:      period,
		Path:        f.LocalPath(symbol, g, period),
	}
	log := f.log.WithComponent("fetcher").WithSymbol(symbol).WithFields(logger.Fields{
		"granularity": g.String(),
		"period":      period.Format("2006-01-02"),
	})

	if _, err := os.Stat(out.Path); err == nil {
		out.Status = AlreadyPresent
		f.present.Add(1)
		return out
	}

	out.URL = f.RemoteURL(symbol, g, period)
	body, err := f.download(ctx, out.URL)
	if err != nil {
		out.Status = Skipped
		out.Err = err
		f.skipped.Add(1)
		log.WithError(err).WithFields(logger.Fields{"url": out.URL}).Warn("archive not downloaded")
		return out
	}
	out.Bytes = int64(len(body))
	f.bytes.Add(out.Bytes)

	if err := f.store(body, out.Path); err != nil {
		os.Remove(out.Path)
		out.Status = Failed
		out.Err = err
		f.failed.Add(1)
		log.WithError(err).Warn("archive could not be extracted")
		return out
	}

	res, err := sanitizer.RepairWithResult(out.Path)
	if err != nil {
		os.Remove(out.Path)
		out.Status = Failed
		out.Err = err
		f.failed.Add(1)
		log.WithError(err).Warn("archive csv could not be sanitized")
		return out
	}

	out.Status = Fetched
	f.fetched.Add(1)
	log.WithFields(logger.Fields{
		"bytes":           out.Bytes,
		"rows":            res.Kept,
		"rows_dropped":    res.Dropped,
		"header_inserted": res.HeaderInserted,
	}).Debug("archive fetched")
	return out
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode())
	}
	return resp.Body(), nil
}
