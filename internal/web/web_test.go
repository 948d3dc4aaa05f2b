package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synccal/internal/calendar"
	"synccal/internal/config"
	"synccal/internal/metrics"
	"synccal/internal/model"
	"synccal/internal/store"
	"synccal/internal/syncer"
	"synccal/internal/syncsession"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type stubProvider struct {
	events []model.Event
}

func (p *stubProvider) Name() string { return "google" }

func (p *stubProvider) Import(context.Context, time.Time) ([]model.Event, error) {
	return p.events, nil
}

func (p *stubProvider) Export(context.Context, model.Event) error { return nil }

type env struct {
	handler http.Handler
	session *syncsession.Session
	local   *calendar.Calendar
}

func newEnv(t *testing.T, cfg *config.Config, external ...model.Event) env {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	clk := func() time.Time { return t0 }
	mc := metrics.NewCollector()

	sess, err := syncsession.Open(ctx, st, syncsession.WithClock(clk), syncsession.WithMetrics(mc))
	require.NoError(t, err)
	local, err := calendar.Open(ctx, st)
	require.NoError(t, err)
	sy := syncer.New(sess, local, &stubProvider{events: external},
		syncer.WithClock(clk),
		syncer.WithMetrics(mc),
		syncer.WithRetry(syncer.RetryPolicy{MaxAttempts: 1}),
	)

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	srv := NewServer(cfg, Deps{Session: sess, Syncer: sy, Local: local, Metrics: mc})
	return env{handler: srv.Handler(), session: sess, local: local}
}

func (e env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, r)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

// seedMismatch stores a local event whose external copy has another title
// and runs a pass so one conflict is pending.
func seedMismatch(t *testing.T) (env, string) {
	t.Helper()
	ext := model.Event{
		ID: "x1", Title: "Brake check", Start: t0, End: t0.Add(time.Hour),
		SourceModule: model.ModuleExternalImport, Status: model.BookingConfirmed,
		Link: model.ExternalLink{Source: "google", ExternalID: "x1"},
	}
	e := newEnv(t, nil, ext)

	local := ext
	local.ID = "l1"
	local.Title = "Brake service"
	local.SourceModule = model.ModuleService
	local.Status = model.ServiceOpen
	require.NoError(t, e.local.Add(context.Background(), local))

	rr := e.do(t, http.MethodPost, "/api/sync/run", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	pending := e.session.Conflicts(model.ConflictPending)
	require.Len(t, pending, 1)
	return e, pending[0].ID
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)
	rr := e.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestStartStopAndStatistics(t *testing.T) {
	e := newEnv(t, nil)

	rr := e.do(t, http.MethodPost, "/api/sync/start", "")
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[syncsession.Statistics](t, rr)
	assert.True(t, stats.IsActive)
	require.NotNil(t, stats.NextSyncTime)

	rr = e.do(t, http.MethodPost, "/api/sync/stop", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/sync/statistics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	stats = decode[syncsession.Statistics](t, rr)
	assert.False(t, stats.IsActive)
	assert.Equal(t, 2, stats.TotalSyncs)
	assert.Nil(t, stats.NextSyncTime)
}

func TestStatisticsWireNames(t *testing.T) {
	e := newEnv(t, nil)
	rr := e.do(t, http.MethodGet, "/api/sync/statistics", "")
	for _, key := range []string{"totalSyncs", "syncsLast24Hours", "successfulSyncs", "failedSyncs",
		"pendingConflicts", "resolvedConflicts", "lastSyncTime", "nextSyncTime", "isActive"} {
		assert.Contains(t, rr.Body.String(), `"`+key+`"`)
	}
}

func TestResolveConflictFlow(t *testing.T) {
	e, id := seedMismatch(t)

	rr := e.do(t, http.MethodGet, "/api/conflicts?status=pending", "")
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]model.EventConflict](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, []string{model.FieldTitle}, list[0].ConflictFields)

	rr = e.do(t, http.MethodPost, "/api/conflicts/"+id+"/resolve", `{"strategy":"keep_external"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[resolveResponse](t, rr)
	assert.Equal(t, model.ConflictResolved, res.Conflict.Status)
	require.NotNil(t, res.AcceptedEvent)
	assert.Equal(t, "Brake check", res.AcceptedEvent.Title)
	assert.Equal(t, model.ActionConflictResolved, res.HistoryEntry.Action)

	got, ok := e.local.Get("l1")
	require.True(t, ok)
	assert.Equal(t, "Brake check", got.Title)

	rr = e.do(t, http.MethodPost, "/api/conflicts/"+id+"/resolve", `{"strategy":"keep_external"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestResolveErrors(t *testing.T) {
	e, id := seedMismatch(t)

	rr := e.do(t, http.MethodPost, "/api/conflicts/nope/resolve", `{"strategy":"merge"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(t, http.MethodPost, "/api/conflicts/"+id+"/resolve", `{"strategy":"flip"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodPost, "/api/conflicts/"+id+"/resolve", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/conflicts?status=weird", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestResolveAll(t *testing.T) {
	e, _ := seedMismatch(t)

	rr := e.do(t, http.MethodPost, "/api/conflicts/resolve-all", `{"strategy":"ignore"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	res := decode[syncsession.BulkResult](t, rr)
	assert.Equal(t, 1, res.Attempted)
	assert.Len(t, res.Resolved, 1)
	assert.Empty(t, res.Failures)

	rr = e.do(t, http.MethodPost, "/api/conflicts/resolve-all", `{"strategy":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHistoryNewestFirst(t *testing.T) {
	e := newEnv(t, nil)
	e.do(t, http.MethodPost, "/api/sync/start", "")
	e.do(t, http.MethodPost, "/api/sync/run", "")

	rr := e.do(t, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, rr.Code)
	h := decode[[]model.SyncHistoryEntry](t, rr)
	require.Len(t, h, 2)
	assert.Equal(t, model.ActionImport, h[0].Action)
	assert.Equal(t, model.ActionSyncStarted, h[1].Action)
}

const inspection = `{
  "event": {"id":"pdi","title":"Inspection","start":"2024-03-04T09:00:00Z","end":"2024-03-04T10:00:00Z","sourceModule":"pdi","status":"pending"},
  "pattern": {"type":"weekly","interval":1,"daysOfWeek":[1],"endType":"after","endAfter":3}
}`

func TestExpandPreview(t *testing.T) {
	e := newEnv(t, nil)

	rr := e.do(t, http.MethodPost, "/api/recurrence/expand", inspection)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[expandResponse](t, rr)
	require.Len(t, res.Instances, 3)
	assert.Equal(t, "pdi-1", res.Instances[0].ID)
	assert.Equal(t, 11, res.Instances[0].Start.Day())
	assert.Empty(t, e.local.Events(), "preview stores nothing")

	bad := strings.Replace(inspection, `"interval":1`, `"interval":0`, 1)
	rr = e.do(t, http.MethodPost, "/api/recurrence/expand", bad)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateRecurringEvent(t *testing.T) {
	e := newEnv(t, nil)

	rr := e.do(t, http.MethodPost, "/api/events", inspection)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	report := decode[syncer.ExportReport](t, rr)
	assert.Equal(t, []string{"pdi", "pdi-1", "pdi-2", "pdi-3"}, report.Exported)

	rr = e.do(t, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rr.Code)
	events := decode[[]model.Event](t, rr)
	assert.Len(t, events, 4)

	rr = e.do(t, http.MethodPost, "/api/events", inspection)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "ops", Password: "secret"}
	e := newEnv(t, cfg)

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/history", "").Code)

	r := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	r.SetBasicAuth("ops", "secret")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, r)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, nil)
	e.do(t, http.MethodPost, "/api/sync/start", "")

	rr := e.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `synccal_history_entries_total{action="sync_started",success="true"} 1`)
}
