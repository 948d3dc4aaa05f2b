// Package syncer drives synchronization between the local event collection
// and the external calendar: sync passes, recurring scheduling with export
// and the application of conflict resolutions.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"synccal/internal/calendar"
	"synccal/internal/conflict"
	appLog "synccal/internal/log"
	"synccal/internal/metrics"
	"synccal/internal/model"
	"synccal/internal/recurrence"
	"synccal/internal/syncsession"
)

// ErrPassInProgress is returned by Run while another pass is running.
var ErrPassInProgress = errors.New("sync pass already in progress")

// Provider is the external calendar.
type Provider interface {
	Name() string
	Import(ctx context.Context, since time.Time) ([]model.Event, error)
	Export(ctx context.Context, ev model.Event) error
}

// Syncer ties the session, the local collection and the provider together.
type Syncer struct {
	session  *syncsession.Session
	local    *calendar.Calendar
	provider Provider

	retry    RetryPolicy
	horizon  time.Duration
	now      func() time.Time
	detector conflict.Detector
	metrics  *metrics.Collector

	pass sync.Mutex
}

// Option configures a Syncer.
type Option func(*Syncer)

func WithRetry(p RetryPolicy) Option {
	return func(s *Syncer) { s.retry = p }
}

// WithHorizon sets how far before and after now a pass looks.
func WithHorizon(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.horizon = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// WithIDs sets the id generator for conflicts found by Reconcile.
func WithIDs(newID func() string) Option {
	return func(s *Syncer) { s.detector.NewID = newID }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Syncer) { s.metrics = c }
}

// New creates a Syncer and installs it as the session's Applier.
func New(session *syncsession.Session, local *calendar.Calendar, provider Provider, opts ...Option) *Syncer {
	s := &Syncer{
		session:  session,
		local:    local,
		provider: provider,
		retry:    RetryPolicy{MaxAttempts: 3, InitialInterval: 500 * time.Millisecond, MaxInterval: 5 * time.Second},
		horizon:  30 * 24 * time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.detector.Now = s.now
	session.SetApplier(s)
	return s
}

// PassReport summarizes one sync pass.
type PassReport struct {
	Imported int           `json:"imported"`
	Detected int           `json:"detected"`
	Added    int           `json:"added"`
	Duration time.Duration `json:"duration"`
}

// Run performs one sync pass: import, reconcile against the local
// collection, merge new conflicts and mark the session synced.
func (s *Syncer) Run(ctx context.Context) (PassReport, error) {
	if !s.pass.TryLock() {
		return PassReport{}, ErrPassInProgress
	}
	defer s.pass.Unlock()

	started := time.Now()
	defer func() { s.metrics.ObservePass(time.Since(started).Seconds()) }()

	var report PassReport
	now := s.now()
	window := Window{Start: now.Add(-s.horizon), End: now.Add(s.horizon)}
	name := s.provider.Name()

	var external []model.Event
	err := s.retry.Do(ctx, "import", func() error {
		evs, err := s.provider.Import(ctx, window.Start)
		if err != nil {
			return err
		}
		external = evs
		return nil
	})
	if err != nil {
		s.session.RecordImportFailure(ctx, name, err)
		appLog.Error("sync pass: import failed", err, "provider", name)
		return report, fmt.Errorf("import from %s: %w", name, err)
	}
	external = s.session.RecordImport(ctx, external, name)
	report.Imported = len(external)

	detected := Reconcile(s.detector, s.local.Events(), external, window, now)
	fresh := conflict.Fresh(s.session.Conflicts(model.ConflictPending), detected)
	s.session.MergeConflicts(ctx, fresh)
	s.session.MarkSynced(ctx)

	report.Detected = len(detected)
	report.Added = len(fresh)
	report.Duration = time.Since(started)
	appLog.Info("sync pass completed",
		"provider", name,
		"imported", report.Imported,
		"detected", report.Detected,
		"new_conflicts", report.Added,
		"duration", report.Duration.String(),
	)
	return report, nil
}

// ExportReport is the per-event outcome of scheduling. Events that were
// exported stay exported when others fail.
type ExportReport struct {
	BaseID    string          `json:"baseId"`
	Instances []model.Event   `json:"instances"`
	Exported  []string        `json:"exported"`
	Failures  []ExportFailure `json:"failures"`
}

type ExportFailure struct {
	EventID string `json:"eventId"`
	Error   string `json:"error"`
}

// OK reports whether every export succeeded.
func (r ExportReport) OK() bool {
	return len(r.Failures) == 0
}

// ScheduleEvent adds a single event to the local collection and exports it.
func (s *Syncer) ScheduleEvent(ctx context.Context, ev model.Event) (ExportReport, error) {
	if err := s.local.Add(ctx, ev); err != nil {
		return ExportReport{}, err
	}
	report := ExportReport{BaseID: ev.ID, Instances: []model.Event{}}
	s.exportAll(ctx, &report, ev)
	return report, nil
}

// ScheduleRecurring validates pattern, stores base and its expanded
// instances locally and exports each of them. Base is exported as a plain
// event since its instances are exported individually.
func (s *Syncer) ScheduleRecurring(ctx context.Context, base model.Event, pattern model.RecurrencePattern) (ExportReport, error) {
	if err := recurrence.Validate(pattern); err != nil {
		return ExportReport{}, err
	}
	p := pattern
	base.Link = model.RecurrenceLink{Pattern: &p}
	if err := base.Validate(); err != nil {
		return ExportReport{}, err
	}

	instances := recurrence.Expand(base, pattern)
	s.metrics.RecordInstances(len(instances))

	all := append([]model.Event{base}, instances...)
	if err := s.local.Add(ctx, all...); err != nil {
		return ExportReport{}, err
	}

	plain := base
	plain.Link = nil
	report := ExportReport{BaseID: base.ID, Instances: instances}
	s.exportAll(ctx, &report, append([]model.Event{plain}, instances...)...)

	appLog.Info("recurring event scheduled",
		"event_id", base.ID,
		"instances", len(instances),
		"failed_exports", len(report.Failures),
	)
	return report, nil
}

func (s *Syncer) exportAll(ctx context.Context, report *ExportReport, events ...model.Event) {
	report.Exported = []string{}
	report.Failures = []ExportFailure{}
	for _, ev := range events {
		if err := s.export(ctx, ev); err != nil {
			report.Failures = append(report.Failures, ExportFailure{EventID: ev.ID, Error: err.Error()})
			continue
		}
		report.Exported = append(report.Exported, ev.ID)
	}
}

// export pushes ev to the provider with retries and records the outcome.
func (s *Syncer) export(ctx context.Context, ev model.Event) error {
	name := s.provider.Name()
	err := s.retry.Do(ctx, "export", func() error {
		return s.provider.Export(ctx, ev)
	})
	if err != nil {
		s.session.RecordExportFailure(ctx, ev, name, err)
		appLog.Error("export failed", err, "event_id", ev.ID, "provider", name)
		return err
	}
	s.session.RecordExport(ctx, ev, name)
	return nil
}
