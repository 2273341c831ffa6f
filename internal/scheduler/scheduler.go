// Package scheduler runs the combined health check periodically and records
// each run.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/monero-ecosystem/monerohealth/internal/health"
	"github.com/monero-ecosystem/monerohealth/internal/storage"
)

// Store defines the storage operations required by the scheduler.
type Store interface {
	InsertRun(ctx context.Context, res health.CombinedResult, checkedAt time.Time) (*storage.Run, error)
	Latest(ctx context.Context) (*storage.Run, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Runner produces a combined health verdict. *health.Checker satisfies it.
type Runner interface {
	Combined(ctx context.Context, req health.Request) health.CombinedResult
}

// Recorder receives every result, e.g. to export metrics.
type Recorder interface {
	Observe(res health.CombinedResult, elapsed time.Duration)
}

// Options configure a Scheduler.
type Options struct {
	Request  health.Request
	Interval time.Duration
	// Retention, if positive, prunes runs older than it after each check.
	Retention time.Duration
}

// Scheduler checks one daemon on a fixed interval.
type Scheduler struct {
	opts     Options
	runner   Runner
	store    Store
	recorder Recorder
	onResult func(health.CombinedResult, *health.Status)
	logger   *zap.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// New creates a new Scheduler. Pass nil logger to discard logs.
func New(opts Options, runner Runner, store Store, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		opts:   opts,
		runner: runner,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// SetRecorder sets the recorder fed after each check.
func (s *Scheduler) SetRecorder(r Recorder) {
	s.recorder = r
}

// SetOnResult sets the callback invoked after each check.
// res is the current result; prev is the previous status (nil on first check).
func (s *Scheduler) SetOnResult(fn func(res health.CombinedResult, prev *health.Status)) {
	s.onResult = fn
}

// Start spawns the check loop. It is non-blocking.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Wait blocks until the check loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	// Run immediately.
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single check, stores it and notifies the recorder and
// the result callback.
func (s *Scheduler) RunOnce(ctx context.Context) health.CombinedResult {
	host := zap.String("host", s.opts.Request.Host)

	// Fetch previous status before running the check.
	prev, err := s.store.Latest(ctx)
	if err != nil {
		s.logger.Warn("fetching previous run", host, zap.Error(err))
	}

	start := s.now()
	res := s.runner.Combined(ctx, s.opts.Request)
	elapsed := s.now().Sub(start)

	s.logger.Info("check result",
		host,
		zap.String("status", string(res.Status)),
		zap.Duration("elapsed", elapsed),
		zap.Strings("errors", res.Errors()),
	)

	if s.recorder != nil {
		s.recorder.Observe(res, elapsed)
	}

	if run, err := s.store.InsertRun(ctx, res, start); err != nil {
		s.logger.Error("storing check result", host, zap.Error(err))
	} else {
		s.logger.Debug("stored run", zap.String("run_id", run.RunID), zap.Int64("id", run.ID))
	}

	if s.opts.Retention > 0 {
		if n, err := s.store.Prune(ctx, start.Add(-s.opts.Retention)); err != nil {
			s.logger.Warn("pruning runs", zap.Error(err))
		} else if n > 0 {
			s.logger.Debug("pruned runs", zap.Int64("count", n))
		}
	}

	if s.onResult != nil {
		var prevStatus *health.Status
		if prev != nil {
			st := prev.Status
			prevStatus = &st
		}
		s.onResult(res, prevStatus)
	}
	return res
}
