package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"synccal/internal/model"
	"synccal/internal/recurrence"
)

const productID = "-//synccal//calendar sync//EN"

// Properties carrying the owning module through an export round trip.
const (
	propSourceModule ical.ComponentProperty = "X-SYNCCAL-SOURCE-MODULE"
	propSourceID     ical.ComponentProperty = "X-SYNCCAL-SOURCE-ID"
)

// NewCalendar returns an empty PUBLISH calendar.
func NewCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	return cal
}

// UID is the VEVENT UID an event is exported under: its external id when it
// has one, otherwise its own id.
func UID(ev model.Event) string {
	if id := ev.ExternalID(); id != "" {
		return id
	}
	return ev.ID
}

// AddEvent appends ev to cal as a VEVENT stamped at now. A base event that
// carries a recurrence pattern is written with RRULE and EXDATE.
func AddEvent(cal *ical.Calendar, ev model.Event, now time.Time) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	ve := cal.AddEvent(UID(ev))
	ve.SetDtStampTime(now)
	ve.SetStartAt(ev.Start)
	ve.SetEndAt(ev.End)
	ve.SetSummary(ev.Title)
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	if ev.Location != "" {
		ve.SetLocation(ev.Location)
	}
	ve.SetProperty(ical.ComponentPropertyStatus, statusToICS(ev.Status))
	if ev.SourceModule != "" {
		ve.SetProperty(propSourceModule, string(ev.SourceModule))
	}
	if ev.SourceID != "" {
		ve.SetProperty(propSourceID, ev.SourceID)
	}

	link, ok := ev.Recurrence()
	if !ok || link.IsInstance() || link.Pattern == nil {
		return nil
	}
	rule, err := recurrence.ToRRule(*link.Pattern, ev.Start)
	if err != nil {
		return fmt.Errorf("event %s: %w", ev.ID, err)
	}
	ve.AddProperty(ical.ComponentPropertyRrule, rule)
	if len(link.Pattern.Exceptions) > 0 {
		ve.AddProperty(ical.ComponentPropertyExdate, exdates(ev.Start, link.Pattern.Exceptions))
	}
	return nil
}

// exdates renders exception dates as UTC instants at the series' time of
// day, matching the DTSTART form written by SetStartAt.
func exdates(start time.Time, dates []model.Date) string {
	parts := make([]string, 0, len(dates))
	for _, d := range dates {
		at := time.Date(d.Year, d.Month, d.Day, start.Hour(), start.Minute(), start.Second(), 0, start.Location())
		parts = append(parts, at.UTC().Format("20060102T150405Z"))
	}
	return strings.Join(parts, ",")
}

// Encode renders events as a complete ICS document.
func Encode(events []model.Event, now time.Time) (string, error) {
	cal := NewCalendar()
	for _, ev := range events {
		if err := AddEvent(cal, ev, now); err != nil {
			return "", err
		}
	}
	return cal.Serialize(), nil
}

// removeEvent drops every VEVENT with the given UID from cal and reports
// whether any was present.
func removeEvent(cal *ical.Calendar, uid string) bool {
	kept := cal.Components[:0]
	removed := false
	for _, c := range cal.Components {
		if ve, ok := c.(*ical.VEvent); ok && ve.Id() == uid {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	cal.Components = kept
	return removed
}
