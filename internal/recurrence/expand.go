// Package recurrence turns a base event and a RecurrencePattern into the
// concrete occurrences that follow it.
package recurrence

import (
	"errors"
	"fmt"
	"slices"

	appLog "synccal/internal/log"
	"synccal/internal/model"
)

const (
	// NeverCap bounds patterns that never end.
	NeverCap = 52

	// maxSteps is a safety cap on cursor steps so a far-off EndOn cannot
	// materialize an unbounded sequence.
	maxSteps = 5000
)

// Expand generates the occurrences of base that follow base.Start, ordered
// ascending. The base event itself is not included. The pattern is assumed
// to have passed Validate.
//
// Every instance keeps base's duration, gets id "{base.id}-{n}" and a
// RecurrenceLink back to base. Exception dates are skipped without counting
// toward EndAfter.
func Expand(base model.Event, p model.RecurrencePattern) []model.Event {
	duration := base.Duration()

	limit := -1
	switch p.EndType {
	case model.EndAfter:
		limit = p.EndAfter
	case model.EndNever:
		limit = NeverCap
	}

	skip := make(map[model.Date]struct{}, len(p.Exceptions))
	for _, d := range p.Exceptions {
		skip[d] = struct{}{}
	}

	shared := clonePattern(p)
	out := make([]model.Event, 0)
	cursor := base.Start
	n := 0

	for steps := 0; limit < 0 || n < limit; steps++ {
		if steps >= maxSteps {
			appLog.Error("recurrence: expansion truncated",
				errors.New("max steps reached"),
				"event_id", base.ID,
				"cap", maxSteps,
			)
			break
		}

		next, ok := step(cursor, p)
		if !ok {
			appLog.Warn("recurrence: no matching weekday within window; stopping",
				"event_id", base.ID,
				"days_of_week", fmt.Sprint(p.DaysOfWeek),
				"interval", p.Interval,
			)
			break
		}
		cursor = next

		if p.EndType == model.EndOn && p.EndOn != nil && model.DateOf(cursor).After(*p.EndOn) {
			break
		}
		if _, ok := skip[model.DateOf(cursor)]; ok {
			continue
		}

		n++
		inst := base
		inst.ID = fmt.Sprintf("%s-%d", base.ID, n)
		inst.Start = cursor
		inst.End = cursor.Add(duration)
		inst.Link = model.RecurrenceLink{
			ParentID:       base.ID,
			InstanceNumber: n,
			Pattern:        shared,
		}
		out = append(out, inst)
	}

	appLog.Debug("recurrence: expanded", "event_id", base.ID, "type", p.Type, "instances", len(out))
	return out
}

func clonePattern(p model.RecurrencePattern) *model.RecurrencePattern {
	c := p
	c.DaysOfWeek = slices.Clone(p.DaysOfWeek)
	c.Exceptions = slices.Clone(p.Exceptions)
	if p.EndOn != nil {
		d := *p.EndOn
		c.EndOn = &d
	}
	return &c
}
