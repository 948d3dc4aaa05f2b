// Package syncsession owns the bookkeeping of calendar synchronization:
// whether sync is active, when it last ran, the conflicts it has found and a
// bounded audit history. Every mutation is persisted immediately; a failed
// write is logged and never rolls back the in-memory change.
package syncsession

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"synccal/internal/conflict"
	appLog "synccal/internal/log"
	"synccal/internal/metrics"
	"synccal/internal/model"
	"synccal/internal/store"
)

const (
	// StateKey is the store key the session is persisted under.
	StateKey = "calendar-sync-state"

	// HistoryLimit is the number of history entries retained.
	HistoryLimit = 50

	defaultInterval = 15 * time.Minute
)

var (
	// ErrNotFound is returned when a conflict id is not in the session.
	ErrNotFound = errors.New("conflict not found")
	// ErrInvalidRequest wraps malformed resolution requests.
	ErrInvalidRequest = errors.New("invalid resolution request")
)

// State is the persisted form of a session.
type State struct {
	IsActive  bool                     `json:"isActive"`
	LastSync  *time.Time               `json:"lastSync,omitempty"`
	NextSync  *time.Time               `json:"nextSync,omitempty"`
	Conflicts []model.EventConflict    `json:"conflicts"`
	History   []model.SyncHistoryEntry `json:"history"`
}

func (s State) clone() State {
	c := s
	c.Conflicts = slices.Clone(s.Conflicts)
	c.History = slices.Clone(s.History)
	if s.LastSync != nil {
		t := *s.LastSync
		c.LastSync = &t
	}
	if s.NextSync != nil {
		t := *s.NextSync
		c.NextSync = &t
	}
	return c
}

// Applier carries a resolution out against the local collection or the
// external calendar before the session commits it.
type Applier interface {
	Apply(ctx context.Context, res conflict.Resolution) error
}

// Session is the single sync session of a running instance.
type Session struct {
	mu    sync.Mutex
	state State

	store    store.Store
	interval time.Duration
	now      func() time.Time
	newID    func() string
	applier  Applier
	metrics  *metrics.Collector
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDs replaces the history/conflict id generator.
func WithIDs(newID func() string) Option {
	return func(s *Session) { s.newID = newID }
}

// WithInterval sets the sync interval used for nextSync.
func WithInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithApplier(a Applier) Option {
	return func(s *Session) { s.applier = a }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Session) { s.metrics = c }
}

// Open rehydrates the session from st, or starts empty if nothing was
// persisted yet.
func Open(ctx context.Context, st store.Store, opts ...Option) (*Session, error) {
	s := &Session{
		store:    st,
		interval: defaultInterval,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	var state State
	ok, err := st.Load(ctx, StateKey, &state)
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	if !ok {
		state = State{}
	}
	if state.Conflicts == nil {
		state.Conflicts = []model.EventConflict{}
	}
	if state.History == nil {
		state.History = []model.SyncHistoryEntry{}
	}
	if len(state.History) > HistoryLimit {
		state.History = state.History[:HistoryLimit]
	}
	s.state = state
	s.metrics.SetPendingConflicts(s.pendingLocked())

	appLog.Info("sync session opened",
		"restored", ok,
		"active", state.IsActive,
		"conflicts", len(state.Conflicts),
		"history", len(state.History),
	)
	return s, nil
}

// SetApplier installs the Applier after construction.
func (s *Session) SetApplier(a Applier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applier = a
}

// Interval returns the configured sync interval.
func (s *Session) Interval() time.Duration {
	return s.interval
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// IsActive reports whether sync is currently active.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsActive
}

// Start activates sync and schedules nextSync. Starting an active session
// does nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsActive {
		return nil
	}
	now := s.now()
	next := now.Add(s.interval)
	s.state.IsActive = true
	s.state.NextSync = &next
	s.appendLocked(model.SyncHistoryEntry{
		Action:  model.ActionSyncStarted,
		Details: fmt.Sprintf("Calendar sync started; next sync at %s", next.Format(time.RFC3339)),
		Success: true,
	}, now)

	appLog.Info("sync started", "next_sync", next.Format(time.RFC3339))
	s.persistLocked(ctx)
	return nil
}

// Stop deactivates sync. Stopping an inactive session does nothing.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.IsActive {
		return nil
	}
	now := s.now()
	s.state.IsActive = false
	s.state.LastSync = &now
	s.state.NextSync = nil
	s.appendLocked(model.SyncHistoryEntry{
		Action:  model.ActionSyncCompleted,
		Details: "Calendar sync stopped",
		Success: true,
	}, now)

	appLog.Info("sync stopped")
	s.persistLocked(ctx)
	return nil
}

// MarkSynced records the completion time of a sync pass.
func (s *Session) MarkSynced(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.state.LastSync = &now
	if s.state.IsActive {
		next := now.Add(s.interval)
		s.state.NextSync = &next
	}
	s.persistLocked(ctx)
}

// RecordExport appends a successful export entry. ev is not modified.
func (s *Session) RecordExport(ctx context.Context, ev model.Event, target string) model.SyncHistoryEntry {
	return s.record(ctx, model.SyncHistoryEntry{
		Action:  model.ActionExport,
		EventID: ev.ID,
		Details: fmt.Sprintf("Exported %q to %s", ev.Title, target),
		Success: true,
	})
}

// RecordExportFailure appends a failed export entry.
func (s *Session) RecordExportFailure(ctx context.Context, ev model.Event, target string, cause error) model.SyncHistoryEntry {
	return s.record(ctx, model.SyncHistoryEntry{
		Action:  model.ActionExport,
		EventID: ev.ID,
		Details: fmt.Sprintf("Failed to export %q to %s", ev.Title, target),
		Success: false,
		Error:   errString(cause),
	})
}

// RecordImport appends one entry for the whole batch and returns the batch
// unchanged; merging it into a local collection is the caller's job.
func (s *Session) RecordImport(ctx context.Context, events []model.Event, source string) []model.Event {
	s.record(ctx, model.SyncHistoryEntry{
		Action:  model.ActionImport,
		Details: fmt.Sprintf("Imported %d events from %s", len(events), source),
		Success: true,
	})
	return events
}

// RecordImportFailure appends a failed import entry.
func (s *Session) RecordImportFailure(ctx context.Context, source string, cause error) model.SyncHistoryEntry {
	return s.record(ctx, model.SyncHistoryEntry{
		Action:  model.ActionImport,
		Details: fmt.Sprintf("Failed to import events from %s", source),
		Success: false,
		Error:   errString(cause),
	})
}

func (s *Session) record(ctx context.Context, e model.SyncHistoryEntry) model.SyncHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e = s.appendLocked(e, s.now())
	s.persistLocked(ctx)
	return e
}

// MergeConflicts appends newConflicts to the session's conflicts.
func (s *Session) MergeConflicts(ctx context.Context, newConflicts []model.EventConflict) {
	if len(newConflicts) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Conflicts = append(s.state.Conflicts, newConflicts...)
	s.metrics.RecordDetected(newConflicts)
	s.metrics.SetPendingConflicts(s.pendingLocked())
	appLog.Info("conflicts merged", "new", len(newConflicts), "total", len(s.state.Conflicts))
	s.persistLocked(ctx)
}

// Conflicts returns the conflicts with the given status, or all of them
// when status is empty.
func (s *Session) Conflicts(status model.ConflictStatus) []model.EventConflict {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.EventConflict, 0, len(s.state.Conflicts))
	for _, c := range s.state.Conflicts {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}
	return out
}

// Conflict looks up a conflict by id.
func (s *Session) Conflict(id string) (model.EventConflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return model.EventConflict{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.state.Conflicts[i], nil
}

// History returns the retained entries, newest first.
func (s *Session) History() []model.SyncHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.History)
}

// Shutdown persists the final state.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(ctx, StateKey, s.state); err != nil {
		appLog.Error("sync session: final persist failed", err)
		return err
	}
	appLog.Info("sync session closed")
	return nil
}

// appendLocked stamps e, inserts it at the head of history and trims the
// window to HistoryLimit.
func (s *Session) appendLocked(e model.SyncHistoryEntry, at time.Time) model.SyncHistoryEntry {
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = at
	}
	h := make([]model.SyncHistoryEntry, 0, min(len(s.state.History)+1, HistoryLimit))
	h = append(h, e)
	h = append(h, s.state.History...)
	if len(h) > HistoryLimit {
		h = h[:HistoryLimit]
	}
	s.state.History = h
	s.metrics.RecordHistory(e)
	return e
}

func (s *Session) persistLocked(ctx context.Context) {
	err := s.store.Save(ctx, StateKey, s.state)
	if err == nil {
		return
	}
	appLog.Error("sync session: persist failed; keeping in-memory state", err)
	s.metrics.RecordPersistFailure()
	if len(s.state.History) > 0 && s.state.History[0].Error == "" {
		s.state.History[0].Error = "persist: " + err.Error()
	}
}

func (s *Session) indexLocked(id string) int {
	for i, c := range s.state.Conflicts {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) pendingLocked() int {
	n := 0
	for _, c := range s.state.Conflicts {
		if c.Status == model.ConflictPending {
			n++
		}
	}
	return n
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
