package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"

	"synccal/internal/config"
	appLog "synccal/internal/log"
	"synccal/internal/model"
)

// Provider is the external calendar, exchanged as ICS. Imports read a feed
// (HTTP with caching, or a local file); exports upsert VEVENTs into a local
// ICS file that the external calendar subscribes to.
type Provider struct {
	src        Source
	exportPath string
	horizon    time.Duration
	loc        *time.Location
	now        func() time.Time
	fetcher    *Fetcher

	// mu serializes read-modify-write cycles on the export file.
	mu sync.Mutex
}

// NewProvider builds a Provider from configuration. client may be nil.
func NewProvider(cfg config.ProviderConfig, loc *time.Location, client *http.Client) *Provider {
	if loc == nil {
		loc = time.UTC
	}
	return &Provider{
		src:        Source{ID: cfg.Name, URL: cfg.FeedURL},
		exportPath: cfg.ExportPath,
		horizon:    time.Duration(cfg.HorizonDays) * 24 * time.Hour,
		loc:        loc,
		now:        time.Now,
		fetcher:    NewFetcher(cfg.CacheDir, client),
	}
}

// Name is the label recorded as importedFrom and in history entries.
func (p *Provider) Name() string {
	return p.src.ID
}

// Import reads the feed and returns its events that overlap
// [since, now+horizon]. An unset feed yields no events.
func (p *Provider) Import(ctx context.Context, since time.Time) ([]model.Event, error) {
	if p.src.URL == "" {
		return []model.Event{}, nil
	}

	body, err := p.read(ctx)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseICS(p.src, body)
	if err != nil {
		return nil, err
	}

	res, err := ExpandFeed(parsed, ExpandConfig{
		Location:   p.loc,
		RangeStart: since,
		RangeEnd:   p.now().Add(p.horizon),
	})
	if err != nil {
		return nil, err
	}
	appLog.Info("ics import completed",
		"provider", p.src.ID,
		"vevents", len(parsed),
		"events", len(res.Events),
		"truncated", len(res.TruncatedEvents),
	)
	return res.Events, nil
}

func (p *Provider) read(ctx context.Context) ([]byte, error) {
	if isRemote(p.src.URL) {
		res, err := p.fetcher.FetchOne(ctx, p.src)
		if err != nil {
			return nil, err
		}
		return res.Body, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(strings.TrimPrefix(p.src.URL, "file://"))
}

func isRemote(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// Export writes ev into the export file, replacing any VEVENT with the same
// UID.
func (p *Provider) Export(ctx context.Context, ev model.Event) error {
	return p.update(ctx, func(cal *ical.Calendar) error {
		removeEvent(cal, UID(ev))
		return AddEvent(cal, ev, p.now())
	})
}

// Remove deletes ev's VEVENT from the export file. Removing an event that
// was never exported is not an error.
func (p *Provider) Remove(ctx context.Context, ev model.Event) error {
	return p.update(ctx, func(cal *ical.Calendar) error {
		removeEvent(cal, UID(ev))
		return nil
	})
}

func (p *Provider) update(ctx context.Context, fn func(*ical.Calendar) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.exportPath == "" {
		return errors.New("ics export path is empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cal, err := p.loadExport()
	if err != nil {
		return err
	}
	if err := fn(cal); err != nil {
		return err
	}
	return writeAtomic(p.exportPath, []byte(cal.Serialize()))
}

func (p *Provider) loadExport() (*ical.Calendar, error) {
	data, err := os.ReadFile(p.exportPath)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(bytes.TrimSpace(data)) == 0) {
		return NewCalendar(), nil
	}
	if err != nil {
		return nil, err
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse export file %s: %w", p.exportPath, err)
	}
	return cal, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".synccal-export-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
