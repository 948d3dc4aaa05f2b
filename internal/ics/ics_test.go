package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synccal/internal/config"
	"synccal/internal/model"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:single-1
DTSTAMP:20240301T000000Z
DTSTART:20240305T100000Z
DTEND:20240305T113000Z
SUMMARY:Fleet review
DESCRIPTION:Quarterly
LOCATION:HQ
STATUS:TENTATIVE
END:VEVENT
BEGIN:VEVENT
UID:series-1
DTSTAMP:20240301T000000Z
DTSTART:20240304T080000Z
DTEND:20240304T083000Z
SUMMARY:Standup
RRULE:FREQ=DAILY;COUNT=5
EXDATE:20240306T080000Z
END:VEVENT
BEGIN:VEVENT
UID:series-1
DTSTAMP:20240301T000000Z
RECURRENCE-ID:20240307T080000Z
DTSTART:20240307T090000Z
DTEND:20240307T093000Z
SUMMARY:Standup (moved)
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20240301T000000Z
DTSTART:20240305T100000Z
SUMMARY:No uid
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseICS(t *testing.T) {
	events, err := ParseICS(Source{ID: "google"}, crlf(feed))
	require.NoError(t, err)
	require.Len(t, events, 3, "event without UID is skipped")

	single := events[0]
	assert.Equal(t, "single-1", single.UID)
	assert.Equal(t, "Fleet review", single.Summary)
	assert.Equal(t, "HQ", single.Location)
	assert.Equal(t, model.BookingTentative, single.Status)
	assert.True(t, single.Start.Equal(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, 90*time.Minute, single.End.Sub(single.Start))

	series := events[1]
	assert.Equal(t, "FREQ=DAILY;COUNT=5", series.RawRRule)
	require.Len(t, series.ExDates, 1)
	assert.True(t, series.ExDates[0].Equal(time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC)))

	assert.True(t, events[2].IsOverride)
}

func TestParseICSRejectsEmptyBody(t *testing.T) {
	_, err := ParseICS(Source{}, nil)
	assert.Error(t, err)
}

func TestExpandFeed(t *testing.T) {
	parsed, err := ParseICS(Source{ID: "google"}, crlf(feed))
	require.NoError(t, err)

	res, err := ExpandFeed(parsed, ExpandConfig{
		Location:   time.UTC,
		RangeStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   t0.AddDate(0, 0, 30),
	})
	require.NoError(t, err)
	assert.Empty(t, res.TruncatedEvents)

	var titles []string
	for _, ev := range res.Events {
		titles = append(titles, ev.Title)
		assert.Equal(t, model.ModuleExternalImport, ev.SourceModule)
		assert.Equal(t, ev.ID, ev.ExternalID())
	}
	// 5 daily standups minus one EXDATE, one moved by override, plus the single event.
	assert.Equal(t, []string{"Standup", "Standup", "Fleet review", "Standup (moved)", "Standup"}, titles)

	moved := res.Events[3]
	assert.Equal(t, "series-1/20240307T080000Z", moved.ID)
	assert.Equal(t, 9, moved.Start.Hour())

	link, ok := res.Events[2].Link.(model.ExternalLink)
	require.True(t, ok)
	assert.Equal(t, "google", link.Source)
	assert.Equal(t, "single-1", link.ExternalID)
}

func TestExpandFeedRejectsInvertedRange(t *testing.T) {
	_, err := ExpandFeed(nil, ExpandConfig{RangeStart: t0, RangeEnd: t0.Add(-time.Hour)})
	assert.Error(t, err)
}

func TestExpandFeedCapsOccurrences(t *testing.T) {
	parsed := []ParsedEvent{{
		UID: "forever", Summary: "Tick",
		Start: t0, End: t0.Add(time.Minute),
		RawRRule: "FREQ=DAILY",
	}}
	res, err := ExpandFeed(parsed, ExpandConfig{
		Location: time.UTC, RangeStart: t0, RangeEnd: t0.AddDate(1, 0, 0),
		MaxOccurrencesPerEvent: 10,
	})
	require.NoError(t, err)
	assert.Len(t, res.Events, 10)
	assert.Equal(t, []string{"forever"}, res.TruncatedEvents)
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "export.ics")
	p := NewProvider(config.ProviderConfig{
		Name:        "google",
		FeedURL:     path,
		ExportPath:  path,
		CacheDir:    filepath.Join(dir, "cache"),
		HorizonDays: 60,
	}, time.UTC, nil)
	p.now = func() time.Time { return t0 }
	return p
}

func TestProviderExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	ev := model.Event{
		ID: "svc-1", Title: "Brake service", Description: "front pads", Location: "Bay 2",
		Start: t0.Add(24 * time.Hour), End: t0.Add(25 * time.Hour),
		SourceModule: model.ModuleService, Status: model.ServiceOpen,
	}
	require.NoError(t, p.Export(ctx, ev))

	// Exporting again replaces rather than duplicates.
	ev.Title = "Brake service (rescheduled)"
	require.NoError(t, p.Export(ctx, ev))

	got, err := p.Import(ctx, t0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Brake service (rescheduled)", got[0].Title)
	assert.Equal(t, "front pads", got[0].Description)
	assert.Equal(t, "svc-1", got[0].ExternalID())
	assert.True(t, got[0].Start.Equal(ev.Start))

	require.NoError(t, p.Remove(ctx, ev))
	got, err = p.Import(ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProviderExportsRecurrenceAsRRule(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	exception := model.Date{Year: 2024, Month: time.March, Day: 18}
	base := model.Event{
		ID: "pdi", Title: "Inspection",
		Start: t0, End: t0.Add(time.Hour),
		SourceModule: model.ModulePDI, Status: model.PDIPending,
		Link: model.RecurrenceLink{Pattern: &model.RecurrencePattern{
			Type: model.Weekly, Interval: 1, DaysOfWeek: []int{1},
			EndType: model.EndAfter, EndAfter: 3,
			Exceptions: []model.Date{exception},
		}},
	}
	require.NoError(t, p.Export(ctx, base))

	raw, err := os.ReadFile(p.exportPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "RRULE:")
	assert.Contains(t, string(raw), "EXDATE:20240318T090000Z")

	got, err := p.Import(ctx, t0)
	require.NoError(t, err)
	var days []int
	for _, ev := range got {
		days = append(days, ev.Start.Day())
	}
	// DTSTART plus three following Mondays, minus the exception.
	assert.Equal(t, []int{4, 11, 25}, days)
}

func TestProviderImportWithoutFeed(t *testing.T) {
	p := NewProvider(config.ProviderConfig{Name: "none"}, nil, nil)
	got, err := p.Import(context.Background(), t0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetcherUsesCacheOnNotModified(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(crlf(feed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "google", URL: srv.URL + "/private.ics"}

	first, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, 2, hits)
}

func TestFetcherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewFetcher(t.TempDir(), srv.Client()).FetchOne(context.Background(), Source{URL: srv.URL})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Temporary())
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/path/private.ics?token=abcd"))
	assert.Equal(t, "ics://...(redacted)", redactURL("/var/feed.ics"))
}
