package syncsession

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synccal/internal/conflict"
	"synccal/internal/metrics"
	"synccal/internal/model"
	"synccal/internal/store"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func counter() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("h%d", n)
	}
}

func newSession(t *testing.T, st store.Store, opts ...Option) (*Session, *clock) {
	t.Helper()
	clk := &clock{now: t0}
	base := []Option{WithClock(clk.Now), WithIDs(counter()), WithInterval(15 * time.Minute)}
	s, err := Open(context.Background(), st, append(base, opts...)...)
	require.NoError(t, err)
	return s, clk
}

func event(id, title string) model.Event {
	return model.Event{
		ID: id, Title: title,
		Start: t0, End: t0.Add(time.Hour),
		SourceModule: model.ModuleService, Status: model.ServiceOpen,
		Description: "local desc", Location: "Bay 1",
	}
}

func pending(id, eventID string) model.EventConflict {
	local := event(eventID, "Inspection")
	ext := local
	ext.ID = "x-" + eventID
	ext.Description = "external desc"
	ext.Link = model.ExternalLink{Source: "google", ExternalID: ext.ID}
	return model.EventConflict{
		ID:             id,
		EventID:        eventID,
		ConflictType:   model.ConflictDataMismatch,
		LocalEvent:     local,
		ExternalEvent:  &ext,
		ConflictFields: []string{model.FieldDescription},
		DetectedAt:     t0,
		Status:         model.ConflictPending,
	}
}

type applierFunc func(ctx context.Context, res conflict.Resolution) error

func (f applierFunc) Apply(ctx context.Context, res conflict.Resolution) error { return f(ctx, res) }

func TestStartStopLifecycle(t *testing.T) {
	ctx := context.Background()
	s, clk := newSession(t, store.NewMemoryStore())

	require.NoError(t, s.Start(ctx))
	st := s.Snapshot()
	assert.True(t, st.IsActive)
	require.NotNil(t, st.NextSync)
	assert.Equal(t, t0.Add(15*time.Minute), *st.NextSync)
	require.Len(t, st.History, 1)
	assert.Equal(t, model.ActionSyncStarted, st.History[0].Action)

	// Starting again is a no-op.
	require.NoError(t, s.Start(ctx))
	assert.Len(t, s.History(), 1)

	clk.advance(time.Hour)
	require.NoError(t, s.Stop(ctx))
	st = s.Snapshot()
	assert.False(t, st.IsActive)
	assert.Nil(t, st.NextSync)
	require.NotNil(t, st.LastSync)
	assert.Equal(t, t0.Add(time.Hour), *st.LastSync)
	assert.Equal(t, model.ActionSyncCompleted, st.History[0].Action)

	require.NoError(t, s.Stop(ctx))
	assert.Len(t, s.History(), 2)
}

func TestHistoryBoundedNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, clk := newSession(t, store.NewMemoryStore())

	for i := 1; i <= 60; i++ {
		clk.advance(time.Minute)
		s.RecordExport(ctx, event(fmt.Sprintf("e%d", i), "Task"), "google")
	}

	h := s.History()
	require.Len(t, h, HistoryLimit)
	assert.Equal(t, "e60", h[0].EventID)
	assert.Equal(t, "e11", h[len(h)-1].EventID)
	for i := 1; i < len(h); i++ {
		assert.True(t, h[i-1].Timestamp.After(h[i].Timestamp))
	}
}

func TestRecordExportDoesNotMutateEvent(t *testing.T) {
	s, _ := newSession(t, store.NewMemoryStore())
	ev := event("e1", "Oil change")
	before := ev

	entry := s.RecordExport(context.Background(), ev, "google")
	assert.Equal(t, before, ev)
	assert.True(t, entry.Success)
	assert.Equal(t, "e1", entry.EventID)
	assert.Equal(t, t0, entry.Timestamp)
}

func TestRecordImportReturnsBatch(t *testing.T) {
	s, _ := newSession(t, store.NewMemoryStore())
	batch := []model.Event{event("a", "A"), event("b", "B")}

	got := s.RecordImport(context.Background(), batch, "google")
	assert.Equal(t, batch, got)

	h := s.History()
	require.Len(t, h, 1)
	assert.Equal(t, model.ActionImport, h[0].Action)
	assert.Contains(t, h[0].Details, "2 events")
}

func TestRecordFailures(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, store.NewMemoryStore())

	s.RecordImportFailure(ctx, "google", errors.New("feed unavailable"))
	s.RecordExportFailure(ctx, event("e1", "A"), "google", errors.New("quota"))

	h := s.History()
	require.Len(t, h, 2)
	assert.False(t, h[0].Success)
	assert.Equal(t, "quota", h[0].Error)
	assert.Equal(t, "feed unavailable", h[1].Error)
}

func TestResolveConflictNotFound(t *testing.T) {
	s, _ := newSession(t, store.NewMemoryStore())

	_, err := s.ResolveConflict(context.Background(), "missing", model.KeepLocal)
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsClientError(err))
	assert.Empty(t, s.History())
}

func TestResolveConflictRejectsUnknownStrategy(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, store.NewMemoryStore())
	s.MergeConflicts(ctx, []model.EventConflict{pending("c1", "e1")})

	_, err := s.ResolveConflict(ctx, "c1", model.Strategy("coin_flip"))
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, conflict.ErrUnknownStrategy)
	assert.Empty(t, s.History())
}

func TestResolveConflictMerge(t *testing.T) {
	ctx := context.Background()
	var applied conflict.Resolution
	s, _ := newSession(t, store.NewMemoryStore(), WithApplier(applierFunc(func(_ context.Context, res conflict.Resolution) error {
		applied = res
		return nil
	})))
	s.MergeConflicts(ctx, []model.EventConflict{pending("c1", "e1")})

	res, err := s.ResolveConflict(ctx, "c1", model.Merge)
	require.NoError(t, err)
	require.NotNil(t, res.Accepted)
	assert.Equal(t, "external desc", res.Accepted.Description)
	assert.Equal(t, "Bay 1", res.Accepted.Location)
	assert.Equal(t, model.Merge, applied.Strategy)

	c, err := s.Conflict("c1")
	require.NoError(t, err)
	assert.Equal(t, model.ConflictResolved, c.Status)

	h := s.History()
	require.Len(t, h, 1)
	assert.Equal(t, model.ActionConflictResolved, h[0].Action)
	assert.True(t, h[0].Success)

	_, err = s.ResolveConflict(ctx, "c1", model.Merge)
	assert.ErrorIs(t, err, conflict.ErrNotPending)
}

func TestResolveIgnoreLeavesBothSides(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, store.NewMemoryStore())
	orig := pending("c1", "e1")
	s.MergeConflicts(ctx, []model.EventConflict{orig})

	res, err := s.ResolveConflict(ctx, "c1", model.Ignore)
	require.NoError(t, err)
	assert.Nil(t, res.Accepted)

	c, err := s.Conflict("c1")
	require.NoError(t, err)
	assert.Equal(t, model.ConflictResolved, c.Status)
	assert.Equal(t, orig.LocalEvent, c.LocalEvent)
	require.NotNil(t, c.ExternalEvent)
	assert.Equal(t, *orig.ExternalEvent, *c.ExternalEvent)
}

func TestApplyFailureKeepsConflictPending(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("provider down")
	s, _ := newSession(t, store.NewMemoryStore(), WithApplier(applierFunc(func(context.Context, conflict.Resolution) error {
		return boom
	})))
	s.MergeConflicts(ctx, []model.EventConflict{pending("c1", "e1")})

	_, err := s.ResolveConflict(ctx, "c1", model.KeepLocal)
	require.ErrorIs(t, err, boom)
	assert.False(t, IsClientError(err))

	c, err := s.Conflict("c1")
	require.NoError(t, err)
	assert.Equal(t, model.ConflictPending, c.Status)

	h := s.History()
	require.Len(t, h, 1)
	assert.False(t, h[0].Success)
	assert.Equal(t, "provider down", h[0].Error)
}

func TestResolveAllPartialFailure(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t, store.NewMemoryStore(), WithApplier(applierFunc(func(_ context.Context, res conflict.Resolution) error {
		if res.Conflict.ID == "c2" {
			return errors.New("rejected")
		}
		return nil
	})))
	s.MergeConflicts(ctx, []model.EventConflict{pending("c1", "e1"), pending("c2", "e2"), pending("c3", "e3")})

	res, err := s.ResolveAll(ctx, model.KeepExternal)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, []string{"c1", "c3"}, res.Resolved)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "c2", res.Failures[0].ConflictID)
	assert.False(t, res.OK())

	assert.Len(t, s.Conflicts(model.ConflictPending), 1)
	assert.Len(t, s.Conflicts(model.ConflictResolved), 2)

	var ok, failed int
	for _, e := range s.History() {
		if e.Success {
			ok++
		} else {
			failed++
		}
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)
}

func TestResolveAllRejectsUnknownStrategy(t *testing.T) {
	s, _ := newSession(t, store.NewMemoryStore())
	_, err := s.ResolveAll(context.Background(), "bogus")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestPersistFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	mc := metrics.NewCollector()
	s, _ := newSession(t, st, WithMetrics(mc))

	st.FailSaves = errors.New("disk full")
	require.NoError(t, s.Start(ctx))

	snap := s.Snapshot()
	assert.True(t, snap.IsActive)
	require.Len(t, snap.History, 1)
	assert.True(t, snap.History[0].Success)
	assert.Contains(t, snap.History[0].Error, "disk full")
}

func TestRehydrateFromStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	s1, _ := newSession(t, st)
	require.NoError(t, s1.Start(ctx))
	s1.MergeConflicts(ctx, []model.EventConflict{pending("c1", "e1")})
	s1.RecordExport(ctx, event("e1", "A"), "google")
	require.NoError(t, s1.Shutdown(ctx))

	s2, _ := newSession(t, st)
	snap := s2.Snapshot()
	assert.True(t, snap.IsActive)
	require.Len(t, snap.Conflicts, 1)
	assert.Equal(t, "Inspection", snap.Conflicts[0].LocalEvent.Title)
	ext := snap.Conflicts[0].ExternalEvent
	require.NotNil(t, ext)
	assert.Equal(t, "x-e1", ext.ExternalID())
	assert.Len(t, snap.History, 2)
}

func TestOpenSurfacesCorruptState(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Save(context.Background(), StateKey, map[string]any{"conflicts": "nope"}))

	_, err := Open(context.Background(), st)
	assert.ErrorIs(t, err, store.ErrCorrupted)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	s, clk := newSession(t, store.NewMemoryStore())

	s.RecordExport(ctx, event("old", "A"), "google")
	clk.advance(48 * time.Hour)
	require.NoError(t, s.Start(ctx))
	s.RecordImportFailure(ctx, "google", errors.New("timeout"))
	s.MergeConflicts(ctx, []model.EventConflict{pending("c1", "e1"), pending("c2", "e2")})
	_, err := s.ResolveConflict(ctx, "c1", model.Ignore)
	require.NoError(t, err)

	stats := s.Statistics()
	assert.Equal(t, 4, stats.TotalSyncs)
	assert.Equal(t, 3, stats.SyncsLast24Hours)
	assert.Equal(t, 3, stats.SuccessfulSyncs)
	assert.Equal(t, 1, stats.FailedSyncs)
	assert.Equal(t, 1, stats.PendingConflicts)
	assert.Equal(t, 1, stats.ResolvedConflicts)
	assert.True(t, stats.IsActive)
	assert.Nil(t, stats.LastSyncTime)
	require.NotNil(t, stats.NextSyncTime)
	assert.Equal(t, clk.now.Add(15*time.Minute), *stats.NextSyncTime)
}

func TestMarkSyncedAdvancesNextSync(t *testing.T) {
	ctx := context.Background()
	s, clk := newSession(t, store.NewMemoryStore())
	require.NoError(t, s.Start(ctx))

	clk.advance(20 * time.Minute)
	s.MarkSynced(ctx)

	snap := s.Snapshot()
	require.NotNil(t, snap.LastSync)
	assert.Equal(t, clk.now, *snap.LastSync)
	require.NotNil(t, snap.NextSync)
	assert.Equal(t, clk.now.Add(15*time.Minute), *snap.NextSync)
}
