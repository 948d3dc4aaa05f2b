package syncer

import (
	"time"

	"github.com/google/uuid"

	"synccal/internal/conflict"
	"synccal/internal/model"
)

// Window is the span of time a sync pass covers.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) overlaps(ev model.Event) bool {
	return ev.Start.Before(w.End) && ev.End.After(w.Start)
}

// Reconcile compares the local collection with the external events seen in
// window. Besides the field mismatches found by the detector it reports:
//
//   - time_overlap for an external event with no local counterpart whose
//     time range overlaps a local event that has no counterpart either;
//   - deletion_conflict for a local event linked to an external id that is
//     no longer present, as long as the event lies inside window.
//
// Local events in a terminal status never produce overlap or deletion
// conflicts.
func Reconcile(d conflict.Detector, local, external []model.Event, window Window, now time.Time) []model.EventConflict {
	out := d.Detect(local, external)

	matchedLocal := make(map[string]bool, len(local))
	matchedExternal := make(map[int]bool, len(external))
	for _, l := range local {
		for i, e := range external {
			if conflict.Same(l, e) {
				matchedLocal[l.ID] = true
				matchedExternal[i] = true
				break
			}
		}
	}

	present := make(map[string]bool, len(external))
	for _, e := range external {
		if id := e.ExternalID(); id != "" {
			present[id] = true
		}
	}

	newID := idFunc(d)
	for _, l := range local {
		if matchedLocal[l.ID] || l.IsTerminal() {
			continue
		}

		if id := l.ExternalID(); id != "" && !present[id] && window.overlaps(l) {
			out = append(out, model.EventConflict{
				ID:             newID(),
				EventID:        l.ID,
				ConflictType:   model.ConflictDeletion,
				LocalEvent:     l,
				ConflictFields: []string{},
				DetectedAt:     now,
				Status:         model.ConflictPending,
			})
			continue
		}

		for i, e := range external {
			if matchedExternal[i] || !overlap(l, e) {
				continue
			}
			ext := e
			out = append(out, model.EventConflict{
				ID:             newID(),
				EventID:        l.ID,
				ConflictType:   model.ConflictTimeOverlap,
				LocalEvent:     l,
				ExternalEvent:  &ext,
				ConflictFields: []string{model.FieldStart, model.FieldEnd},
				DetectedAt:     now,
				Status:         model.ConflictPending,
			})
		}
	}
	return out
}

func overlap(a, b model.Event) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func idFunc(d conflict.Detector) func() string {
	if d.NewID != nil {
		return d.NewID
	}
	return uuid.NewString
}
