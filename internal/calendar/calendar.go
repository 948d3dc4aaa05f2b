// Package calendar holds the local event collection that the sync engine
// reconciles against the external calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	appLog "synccal/internal/log"
	"synccal/internal/model"
	"synccal/internal/store"
)

// StoreKey is the store key the collection is persisted under.
const StoreKey = "local-events"

var ErrDuplicate = errors.New("event already exists")

// Calendar is a persisted, id-keyed collection of local events ordered by
// start.
type Calendar struct {
	mu     sync.RWMutex
	store  store.Store
	events []model.Event
}

// Open loads the collection from st.
func Open(ctx context.Context, st store.Store) (*Calendar, error) {
	var events []model.Event
	if _, err := st.Load(ctx, StoreKey, &events); err != nil {
		return nil, fmt.Errorf("load local events: %w", err)
	}
	if events == nil {
		events = []model.Event{}
	}
	sortByStart(events)
	return &Calendar{store: st, events: events}, nil
}

// Events returns a copy of every event.
func (c *Calendar) Events() []model.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.events)
}

// Get returns the event with the given id.
func (c *Calendar) Get(id string) (model.Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.index(id); i >= 0 {
		return c.events[i], true
	}
	return model.Event{}, false
}

// Add inserts new events. Nothing is added if any event is invalid or its id
// is taken.
func (c *Calendar) Add(ctx context.Context, events ...model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			return err
		}
		if _, dup := seen[ev.ID]; dup || c.index(ev.ID) >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicate, ev.ID)
		}
		seen[ev.ID] = struct{}{}
	}

	c.events = append(c.events, events...)
	sortByStart(c.events)
	appLog.Debug("local events added", "count", len(events))
	return c.save(ctx)
}

// Put inserts ev or replaces the event with the same id.
func (c *Calendar) Put(ctx context.Context, ev model.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.index(ev.ID); i >= 0 {
		c.events[i] = ev
	} else {
		c.events = append(c.events, ev)
	}
	sortByStart(c.events)
	return c.save(ctx)
}

// Delete removes the event with the given id and reports whether it existed.
func (c *Calendar) Delete(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(id)
	if i < 0 {
		return false, nil
	}
	c.events = slices.Delete(c.events, i, i+1)
	return true, c.save(ctx)
}

func (c *Calendar) index(id string) int {
	return slices.IndexFunc(c.events, func(e model.Event) bool { return e.ID == id })
}

func (c *Calendar) save(ctx context.Context) error {
	if err := c.store.Save(ctx, StoreKey, c.events); err != nil {
		appLog.Error("local events: persist failed", err, "count", len(c.events))
		return err
	}
	return nil
}

func sortByStart(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
}
