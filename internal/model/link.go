package model

import "fmt"

// LinkKind tags the variant carried in Event.Link.
type LinkKind string

const (
	LinkRecurrence LinkKind = "recurrence"
	LinkExternal   LinkKind = "external"
	LinkBooking    LinkKind = "booking"
)

// Link is the closed set of linkages an Event may carry. Only the types in
// this package implement it.
type Link interface {
	Kind() LinkKind
	sealed()
}

// RecurrenceLink ties an event to a recurrence series. A base event has an
// empty ParentID and InstanceNumber 0.
type RecurrenceLink struct {
	ParentID       string             `json:"parentEventId,omitempty"`
	InstanceNumber int                `json:"instanceNumber,omitempty"`
	Pattern        *RecurrencePattern `json:"recurrencePattern,omitempty"`
}

// ExternalLink ties an event to its counterpart in an external calendar.
type ExternalLink struct {
	Source     string `json:"importedFrom,omitempty"`
	ExternalID string `json:"externalEventId"`
}

// BookingLink carries resource-booking details.
type BookingLink struct {
	ResourceIDs []string `json:"resourceIds,omitempty"`
	Attendees   []string `json:"attendees,omitempty"`
}

func (RecurrenceLink) Kind() LinkKind { return LinkRecurrence }
func (ExternalLink) Kind() LinkKind   { return LinkExternal }
func (BookingLink) Kind() LinkKind    { return LinkBooking }

func (RecurrenceLink) sealed() {}
func (ExternalLink) sealed()   {}
func (BookingLink) sealed()    {}

// IsInstance reports whether the link marks a generated occurrence.
func (l RecurrenceLink) IsInstance() bool {
	return l.ParentID != ""
}

type linkEnvelope struct {
	Kind       LinkKind        `json:"kind"`
	Recurrence *RecurrenceLink `json:"recurrence,omitempty"`
	External   *ExternalLink   `json:"external,omitempty"`
	Booking    *BookingLink    `json:"booking,omitempty"`
}

func wrapLink(l Link) (linkEnvelope, error) {
	switch v := l.(type) {
	case RecurrenceLink:
		return linkEnvelope{Kind: LinkRecurrence, Recurrence: &v}, nil
	case ExternalLink:
		return linkEnvelope{Kind: LinkExternal, External: &v}, nil
	case BookingLink:
		return linkEnvelope{Kind: LinkBooking, Booking: &v}, nil
	default:
		return linkEnvelope{}, fmt.Errorf("unsupported link type %T", l)
	}
}

func (le linkEnvelope) unwrap() (Link, error) {
	switch le.Kind {
	case LinkRecurrence:
		if le.Recurrence == nil {
			return nil, fmt.Errorf("link kind %q without payload", le.Kind)
		}
		return *le.Recurrence, nil
	case LinkExternal:
		if le.External == nil {
			return nil, fmt.Errorf("link kind %q without payload", le.Kind)
		}
		return *le.External, nil
	case LinkBooking:
		if le.Booking == nil {
			return nil, fmt.Errorf("link kind %q without payload", le.Kind)
		}
		return *le.Booking, nil
	default:
		return nil, fmt.Errorf("unknown link kind %q", le.Kind)
	}
}
