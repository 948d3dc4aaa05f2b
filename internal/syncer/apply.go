package syncer

import (
	"context"
	"fmt"

	"synccal/internal/conflict"
	"synccal/internal/model"
)

// Apply carries a resolution out before the session commits it.
//
//   - keep_local pushes the local event to the provider.
//   - merge stores the merged event locally and pushes it.
//   - keep_external adopts the external version locally, or deletes the
//     local event when the external one is gone.
//   - ignore changes nothing.
func (s *Syncer) Apply(ctx context.Context, res conflict.Resolution) error {
	switch res.Strategy {
	case model.Ignore:
		return nil

	case model.KeepLocal:
		return s.export(ctx, *res.Accepted)

	case model.Merge:
		if err := s.local.Put(ctx, *res.Accepted); err != nil {
			return fmt.Errorf("store merged event: %w", err)
		}
		return s.export(ctx, *res.Accepted)

	case model.KeepExternal:
		if res.Accepted == nil {
			if _, err := s.local.Delete(ctx, res.Conflict.EventID); err != nil {
				return fmt.Errorf("delete local event: %w", err)
			}
			return nil
		}
		if err := s.local.Put(ctx, adopt(res.Conflict, *res.Accepted)); err != nil {
			return fmt.Errorf("store external version: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", conflict.ErrUnknownStrategy, res.Strategy)
}

// adopt turns the accepted external event into the local event to store.
// For a mismatch the local event keeps its identity and owning module and
// takes the external fields; an overlapping external event is imported as a
// new local event.
func adopt(c model.EventConflict, ext model.Event) model.Event {
	if c.ConflictType == model.ConflictTimeOverlap {
		return ext
	}
	ev := c.LocalEvent
	ev.Title = ext.Title
	ev.Description = ext.Description
	ev.Location = ext.Location
	ev.Start = ext.Start
	ev.End = ext.End
	if ev.Link == nil {
		ev.Link = ext.Link
	}
	return ev
}
