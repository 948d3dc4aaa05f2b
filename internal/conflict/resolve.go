package conflict

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"synccal/internal/model"
)

var (
	ErrUnknownStrategy = errors.New("unknown resolution strategy")
	ErrNotPending      = errors.New("conflict is not pending")
)

// Resolution is the outcome of applying a strategy to one conflict.
type Resolution struct {
	// Conflict is the input conflict with Status set to resolved.
	Conflict model.EventConflict
	Strategy model.Strategy
	// Accepted is nil for ignore, and for keep_external on a deletion
	// conflict (the local event should be removed).
	Accepted *model.Event
	Entry    model.SyncHistoryEntry
}

// Resolve applies strategy to c at instant now. c itself is not modified.
//
// merge keeps the local title and times and takes description and location
// from the external side when they are among the conflicting fields.
func Resolve(c model.EventConflict, strategy model.Strategy, now time.Time) (Resolution, error) {
	if !strategy.Valid() {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	if c.Status != model.ConflictPending {
		return Resolution{}, fmt.Errorf("%w: %s is %s", ErrNotPending, c.ID, c.Status)
	}

	var accepted *model.Event
	switch strategy {
	case model.KeepLocal:
		ev := c.LocalEvent
		accepted = &ev
	case model.KeepExternal:
		if c.ExternalEvent != nil {
			ev := *c.ExternalEvent
			accepted = &ev
		}
	case model.Merge:
		ev := merge(c)
		accepted = &ev
	case model.Ignore:
	}

	resolved := c
	resolved.Status = model.ConflictResolved

	return Resolution{
		Conflict: resolved,
		Strategy: strategy,
		Accepted: accepted,
		Entry: model.SyncHistoryEntry{
			ID:        uuid.NewString(),
			Timestamp: now,
			Action:    model.ActionConflictResolved,
			EventID:   c.EventID,
			Details:   fmt.Sprintf("Resolved %s conflict on %q with %s", c.ConflictType, c.LocalEvent.Title, strategy),
			Success:   true,
		},
	}, nil
}

func merge(c model.EventConflict) model.Event {
	ev := c.LocalEvent
	if c.ExternalEvent == nil {
		return ev
	}
	if c.HasField(model.FieldDescription) {
		ev.Description = c.ExternalEvent.Description
	}
	if c.HasField(model.FieldLocation) {
		ev.Location = c.ExternalEvent.Location
	}
	return ev
}
