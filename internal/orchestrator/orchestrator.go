// Package orchestrator runs per-symbol syncs across a bounded worker pool.
package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"klinevault/internal/model"
	"klinevault/internal/symbols"
	"klinevault/logger"
)

// Syncer brings one symbol up to date.
type Syncer interface {
	Sync(ctx context.Context, symbol model.Symbol) error
}

// FailedEntry records why a symbol could not be synced.
type FailedEntry struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Report summarises one SyncAll run.
type Report struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Succeeded  []string      `json:"succeeded"`
	Failed     []FailedEntry `json:"failed"`
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Total is the number of symbols the run handled.
func (r Report) Total() int { return len(r.Succeeded) + len(r.Failed) }

// Orchestrator fans symbols out to a Syncer.
type Orchestrator struct {
	syncer    Syncer
	workers   int
	reportDir string
	log       *logger.Log
}

// New returns an orchestrator running at most workers syncs at once. When
// reportDir is not empty each run leaves .lastrun.*.json files there.
func New(syncer Syncer, workers int, reportDir string) *Orchestrator {
	if workers <= 0 {
		workers = 1
	}
	return &Orchestrator{
		syncer:    syncer,
		workers:   workers,
		reportDir: reportDir,
		log:       logger.GetLogger(),
	}
}

// SyncAll syncs every symbol. A failing symbol never stops the others; it is
// recorded in the report. Symbols not started before ctx is cancelled are
// reported as failed and ctx's error is returned.
func (o *Orchestrator) SyncAll(ctx context.Context, list []model.Symbol) (Report, error) {
	report := Report{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	list = dedupe(list)
	log := o.log.WithComponent("orchestrator").WithFields(logger.Fields{
		"run_id":  report.RunID,
		"symbols": len(list),
		"workers": o.workers,
	})
	log.Info("sync run started")

	var (
		mu   sync.Mutex
		done int
		g    errgroup.Group
	)
	g.SetLimit(o.workers)

	for _, sym := range list {
		sym := sym
		g.Go(func() error {
			var err error
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			} else {
				err = o.syncer.Sync(ctx, sym)
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			entry := log.WithSymbol(sym.Name).WithFields(logger.Fields{"progress": done})
			if err != nil {
				report.Failed = append(report.Failed, FailedEntry{Symbol: sym.Name, Reason: reason(err)})
				entry.WithError(err).Warn("symbol sync failed")
				return nil
			}
			report.Succeeded = append(report.Succeeded, sym.Name)
			entry.Debug("symbol synced")
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Succeeded)
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Symbol < report.Failed[j].Symbol })
	report.FinishedAt = time.Now().UTC()

	if o.reportDir != "" {
		if err := writeRunReport(o.reportDir, report); err != nil {
			log.WithError(err).Warn("could not write run report")
		}
	}

	log.WithFields(logger.Fields{
		"succeeded":   len(report.Succeeded),
		"failed":      len(report.Failed),
		"duration_ms": report.Duration().Milliseconds(),
	}).Info("sync run finished")
	return report, ctx.Err()
}

func dedupe(list []model.Symbol) []model.Symbol {
	seen := make(map[string]struct{}, len(list))
	out := make([]model.Symbol, 0, len(list))
	for _, s := range list {
		s.Name = symbols.Normalize(s.Name)
		if _, ok := seen[s.Name]; ok || s.Name == "" {
			continue
		}
		seen[s.Name] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func reason(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled: " + err.Error()
	}
	return err.Error()
}
