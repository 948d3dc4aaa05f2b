package recurrence

import (
	"errors"
	"fmt"

	"synccal/internal/model"
)

// ErrInvalidPattern matches every ValidationError via errors.Is.
var ErrInvalidPattern = errors.New("invalid recurrence pattern")

// ValidationError describes a malformed recurrence pattern.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidPattern, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidPattern
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks p before it is handed to Expand.
func Validate(p model.RecurrencePattern) error {
	switch p.Type {
	case model.Daily, model.Weekly, model.Monthly, model.Yearly:
	default:
		return invalid("type", "unknown frequency %q", p.Type)
	}
	if p.Interval < 1 {
		return invalid("interval", "must be >= 1, got %d", p.Interval)
	}
	for _, d := range p.DaysOfWeek {
		if d < 0 || d > 6 {
			return invalid("daysOfWeek", "weekday index %d out of range 0..6", d)
		}
	}
	if len(p.DaysOfWeek) > 0 && p.Type != model.Weekly {
		return invalid("daysOfWeek", "only meaningful for weekly patterns")
	}

	switch p.EndType {
	case model.EndNever:
	case model.EndAfter:
		if p.EndAfter < 1 {
			return invalid("endAfter", "must be >= 1 when endType is after, got %d", p.EndAfter)
		}
	case model.EndOn:
		if p.EndOn == nil || p.EndOn.IsZero() {
			return invalid("endOn", "required when endType is on")
		}
	default:
		return invalid("endType", "unknown end type %q", p.EndType)
	}
	return nil
}
