package model

import (
	"fmt"
	"time"
)

// Frequency is the step unit of a RecurrencePattern.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// EndType selects which end condition of a RecurrencePattern applies.
type EndType string

const (
	EndNever EndType = "never"
	EndAfter EndType = "after"
	EndOn    EndType = "on"
)

// RecurrencePattern describes how one base Event repeats.
type RecurrencePattern struct {
	Type     Frequency `json:"type"`
	Interval int       `json:"interval"`

	// DaysOfWeek holds weekday indices (0=Sunday..6=Saturday). Only used
	// when Type is Weekly.
	DaysOfWeek []int `json:"daysOfWeek,omitempty"`

	EndType  EndType `json:"endType"`
	EndAfter int     `json:"endAfter,omitempty"`
	EndOn    *Date   `json:"endOn,omitempty"`

	Exceptions []Date `json:"exceptions,omitempty"`
}

// Date is a calendar date without time of day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// After reports whether d is strictly later than o.
func (d Date) After(o Date) bool {
	return o.Before(d)
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
