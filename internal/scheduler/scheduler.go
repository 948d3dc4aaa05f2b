// Package scheduler triggers sync passes on a cron schedule while the sync
// session is active.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "synccal/internal/log"
)

// Runner performs one sync pass.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Scheduler wraps a cron instance with a single sync job.
type Scheduler struct {
	cron   *cron.Cron
	active func() bool
	runner Runner
	ctx    context.Context
	cancel context.CancelFunc
}

// New parses spec (standard five-field cron) and prepares a scheduler that
// calls runner whenever active reports true.
func New(spec string, loc *time.Location, active func() bool, runner Runner) (*Scheduler, error) {
	if spec == "" {
		return nil, errors.New("scheduler: empty cron spec")
	}
	if loc == nil {
		loc = time.Local
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		active: active,
		runner: runner,
		ctx:    ctx,
		cancel: cancel,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("scheduler: invalid cron spec %q: %w", spec, err)
	}
	return s, nil
}

// tick runs one pass if the session is active.
func (s *Scheduler) tick() {
	if !s.active() {
		appLog.Debug("scheduler: session inactive; skipping pass")
		return
	}
	if err := s.runner.Run(s.ctx); err != nil {
		appLog.Error("scheduler: sync pass failed", err)
	}
}

// Next returns the next time the job fires.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	appLog.Info("scheduler started", "next", s.Next().Format(time.RFC3339))
}

// Stop halts scheduling, cancels a running pass and waits for it to return
// or for ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	appLog.Info("scheduler stopped")
}
