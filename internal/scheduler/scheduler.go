// Package scheduler owns the cadence of the recurring sweeps. Jobs are
// plain functions of (ctx, now); the scheduler only decides when to call
// them and never lets one job overlap itself.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a named sweep run on a cron schedule.
type Job struct {
	Name string
	// Spec is a standard 5-field cron expression or descriptor such as
	// "@every 1m", evaluated in the scheduler's location.
	Spec string
	Run  func(ctx context.Context, now time.Time) error
}

// SchedulerOpts holds parameters for creating a Scheduler.
type SchedulerOpts struct {
	Location *time.Location
	Now      func() time.Time
	Log      *zap.Logger
}

// Scheduler runs Jobs on robfig/cron.
type Scheduler struct {
	cron *cron.Cron
	now  func() time.Time
	log  *zap.Logger

	mu   sync.Mutex
	ctx  context.Context
	jobs []string
}

// New creates a Scheduler.
func New(opts SchedulerOpts) *Scheduler {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("scheduler")

	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		now: now,
		log: log,
		ctx: context.Background(),
	}
}

// Add registers job. It fails on an empty name, a missing function or an
// invalid spec.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("scheduler: job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("scheduler: job %s: run function is required", job.Name)
	}
	if _, err := s.cron.AddFunc(job.Spec, s.wrap(job)); err != nil {
		return fmt.Errorf("scheduler: job %s: invalid spec %q: %w", job.Name, job.Spec, err)
	}
	s.mu.Lock()
	s.jobs = append(s.jobs, job.Name)
	s.mu.Unlock()
	return nil
}

// Jobs returns the registered job names in order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.jobs...)
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("scheduler started", zap.Strings("jobs", s.Jobs()))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) wrap(job Job) func() {
	return func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		if err := job.Run(ctx, s.now()); err != nil {
			s.log.Error("job failed", zap.String("job", job.Name), zap.Error(err))
			return
		}
		s.log.Debug("job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
