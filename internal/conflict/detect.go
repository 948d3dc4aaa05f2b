// Package conflict finds and resolves disagreements between locally owned
// events and their counterparts in an external calendar.
package conflict

import (
	"time"

	"github.com/google/uuid"

	"synccal/internal/model"
)

// Tolerance is how far apart two instants may be and still count as equal.
const Tolerance = 60 * time.Second

// Detector compares local and external event sets. The zero value uses
// time.Now and random UUIDs.
type Detector struct {
	Now   func() time.Time
	NewID func() string
}

// Detect runs the default Detector.
func Detect(local, external []model.Event) []model.EventConflict {
	return Detector{}.Detect(local, external)
}

// Detect pairs each local event with at most one external event (the first
// match) and reports a data_mismatch conflict for every pair whose fields
// differ. Pairs match when their external ids agree, or when titles are equal
// and starts are within Tolerance.
func (d Detector) Detect(local, external []model.Event) []model.EventConflict {
	now := d.now()
	out := make([]model.EventConflict, 0)

	for _, l := range local {
		ext, ok := Match(l, external)
		if !ok {
			continue
		}
		fields := Diff(l, ext)
		if len(fields) == 0 {
			continue
		}
		out = append(out, model.EventConflict{
			ID:             d.newID(),
			EventID:        l.ID,
			ConflictType:   model.ConflictDataMismatch,
			LocalEvent:     l,
			ExternalEvent:  &ext,
			ConflictFields: fields,
			DetectedAt:     now,
			Status:         model.ConflictPending,
		})
	}
	return out
}

// Match returns the first external event considered the same logical event
// as l.
func Match(l model.Event, external []model.Event) (model.Event, bool) {
	for _, e := range external {
		if Same(l, e) {
			return e, true
		}
	}
	return model.Event{}, false
}

// Same reports whether a and b refer to the same logical event.
func Same(a, b model.Event) bool {
	if id := a.ExternalID(); id != "" && id == b.ExternalID() {
		return true
	}
	return a.Title == b.Title && within(a.Start, b.Start)
}

// Diff lists differing fields in fixed check order.
func Diff(l, e model.Event) []string {
	var fields []string
	if l.Title != e.Title {
		fields = append(fields, model.FieldTitle)
	}
	if !within(l.Start, e.Start) {
		fields = append(fields, model.FieldStart)
	}
	if !within(l.End, e.End) {
		fields = append(fields, model.FieldEnd)
	}
	if l.Description != e.Description {
		fields = append(fields, model.FieldDescription)
	}
	if l.Location != e.Location {
		fields = append(fields, model.FieldLocation)
	}
	return fields
}

func within(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= Tolerance
}

func (d Detector) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Detector) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.NewString()
}
