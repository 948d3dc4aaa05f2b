package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SourceModule names the business module that owns an Event.
type SourceModule string

const (
	ModuleService         SourceModule = "service"
	ModuleDelivery        SourceModule = "delivery"
	ModuleTask            SourceModule = "task"
	ModulePDI             SourceModule = "pdi"
	ModuleExternalImport  SourceModule = "external-import"
	ModuleResourceBooking SourceModule = "resource-booking"
)

// Valid reports whether m is one of the known modules.
func (m SourceModule) Valid() bool {
	switch m {
	case ModuleService, ModuleDelivery, ModuleTask, ModulePDI, ModuleExternalImport, ModuleResourceBooking:
		return true
	}
	return false
}

// Priority is shared by all modules.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Event is the unit being scheduled. Values are treated as immutable by the
// sync engine: updates produce a new Event.
type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	SourceModule SourceModule `json:"sourceModule"`
	SourceID     string       `json:"sourceId,omitempty"`

	Status   Status   `json:"status,omitempty"`
	Priority Priority `json:"priority,omitempty"`

	// Link is nil for plain events.
	Link Link `json:"-"`
}

// Duration returns End - Start.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// ExternalID returns the id of the event in the external calendar, if the
// event carries an external link.
func (e Event) ExternalID() string {
	if l, ok := e.Link.(ExternalLink); ok {
		return l.ExternalID
	}
	return ""
}

// Recurrence returns the recurrence linkage, if any.
func (e Event) Recurrence() (RecurrenceLink, bool) {
	l, ok := e.Link.(RecurrenceLink)
	return l, ok
}

// IsTerminal reports whether the event's owning module considers its status final.
func (e Event) IsTerminal() bool {
	return e.SourceModule.IsTerminal(e.Status)
}

// Validate checks the structural invariants of an Event.
func (e Event) Validate() error {
	if e.ID == "" {
		return errors.New("event id is empty")
	}
	if !e.Start.Before(e.End) {
		return fmt.Errorf("event %s: start %s is not before end %s", e.ID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	if e.SourceModule != "" && !e.SourceModule.Valid() {
		return fmt.Errorf("event %s: unknown source module %q", e.ID, e.SourceModule)
	}
	if e.Status != "" && e.SourceModule != "" && !e.SourceModule.Knows(e.Status) {
		return fmt.Errorf("event %s: status %q is not valid for module %s", e.ID, e.Status, e.SourceModule)
	}
	return nil
}

type eventJSON Event

type eventEnvelope struct {
	eventJSON
	Link *linkEnvelope `json:"link,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	env := eventEnvelope{eventJSON: eventJSON(e)}
	if e.Link != nil {
		le, err := wrapLink(e.Link)
		if err != nil {
			return nil, err
		}
		env.Link = &le
	}
	return json.Marshal(env)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*e = Event(env.eventJSON)
	e.Link = nil
	if env.Link != nil {
		l, err := env.Link.unwrap()
		if err != nil {
			return err
		}
		e.Link = l
	}
	return nil
}
