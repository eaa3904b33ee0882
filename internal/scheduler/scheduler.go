// Package scheduler re-runs the sync job on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"klinevault/logger"
)

// ErrBusy is returned by RunNow while another run is in progress.
var ErrBusy = errors.New("scheduler: sync already running")

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler manages the recurring sync.
type Scheduler struct {
	Cron *cron.Cron
	Ctx  context.Context
	job  Job
	spec string
	log  *logger.Log

	running atomic.Bool
}

// New returns a scheduler running job on spec. The spec has a leading
// seconds field and is evaluated in UTC. A run that is still going when the
// next tick fires causes that tick to be skipped.
func New(ctx context.Context, spec string, job Job) (*Scheduler, error) {
	s := &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		Ctx:  ctx,
		job:  job,
		spec: spec,
		log:  logger.GetLogger(),
	}
	if _, err := s.Cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("register sync task %q: %w", spec, err)
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	entries := s.Cron.Entries()
	fields := logger.Fields{"spec": s.spec}
	if len(entries) > 0 {
		fields["next_run"] = entries[0].Next
	}
	s.log.WithComponent("scheduler").WithFields(fields).Info("scheduler started")
}

// Stop stops the scheduler and waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.WithComponent("scheduler").Info("scheduler stopped")
}

// RunNow executes the job immediately (RUN_ON_START or manual trigger).
func (s *Scheduler) RunNow() error {
	return s.execute()
}

func (s *Scheduler) run() {
	_ = s.execute()
}

func (s *Scheduler) execute() error {
	if err := s.Ctx.Err(); err != nil {
		return err
	}
	log := s.log.WithComponent("scheduler")
	if !s.running.CompareAndSwap(false, true) {
		log.Warn("previous sync still running; skipping")
		return ErrBusy
	}
	defer s.running.Store(false)

	start := time.Now()
	log.Info("running scheduled sync")

	if err := s.job(s.Ctx); err != nil {
		log.WithError(err).WithFields(logger.Fields{"duration_ms": time.Since(start).Milliseconds()}).Error("scheduled sync failed")
		return err
	}
	log.WithFields(logger.Fields{"duration_ms": time.Since(start).Milliseconds()}).Info("scheduled sync finished")
	return nil
}
