package recurrence

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"synccal/internal/model"
)

// rrule weekdays indexed by our 0=Sunday convention.
var weekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Option builds the RFC 5545 rule equivalent to p, anchored at dtstart.
// Exceptions are not part of an RRULE; callers emit them as EXDATE.
func Option(p model.RecurrencePattern, dtstart time.Time) (rrule.ROption, error) {
	if err := Validate(p); err != nil {
		return rrule.ROption{}, err
	}

	opt := rrule.ROption{
		Interval: p.Interval,
		Dtstart:  dtstart,
	}
	switch p.Type {
	case model.Daily:
		opt.Freq = rrule.DAILY
	case model.Weekly:
		opt.Freq = rrule.WEEKLY
		for _, d := range p.DaysOfWeek {
			opt.Byweekday = append(opt.Byweekday, weekdays[d])
		}
	case model.Monthly:
		opt.Freq = rrule.MONTHLY
	case model.Yearly:
		opt.Freq = rrule.YEARLY
	}

	switch p.EndType {
	case model.EndAfter:
		// RRULE COUNT includes DTSTART itself.
		opt.Count = p.EndAfter + 1
	case model.EndOn:
		opt.Until = p.EndOn.In(dtstart.Location()).AddDate(0, 0, 1).Add(-time.Second)
	}
	return opt, nil
}

// ToRRule renders p as the value of an RRULE property.
func ToRRule(p model.RecurrencePattern, dtstart time.Time) (string, error) {
	opt, err := Option(p, dtstart)
	if err != nil {
		return "", err
	}
	if _, err := rrule.NewRRule(opt); err != nil {
		return "", invalid("rrule", "%v", err)
	}
	return opt.RRuleString(), nil
}

// FromRRule converts an RRULE value back into a pattern. Frequencies finer
// than a day are rejected.
func FromRRule(value string) (model.RecurrencePattern, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "RRULE:")
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return model.RecurrencePattern{}, invalid("rrule", "%v", err)
	}

	p := model.RecurrencePattern{Interval: opt.Interval}
	if p.Interval < 1 {
		p.Interval = 1
	}
	switch opt.Freq {
	case rrule.DAILY:
		p.Type = model.Daily
	case rrule.WEEKLY:
		p.Type = model.Weekly
		for _, wd := range opt.Byweekday {
			// rrule counts from Monday=0.
			p.DaysOfWeek = append(p.DaysOfWeek, (wd.Day()+1)%7)
		}
	case rrule.MONTHLY:
		p.Type = model.Monthly
	case rrule.YEARLY:
		p.Type = model.Yearly
	default:
		return model.RecurrencePattern{}, invalid("rrule", "unsupported frequency %v", opt.Freq)
	}

	switch {
	case opt.Count > 1:
		p.EndType = model.EndAfter
		p.EndAfter = opt.Count - 1
	case opt.Count == 1:
		// Only DTSTART itself; nothing follows it.
		p.EndType = model.EndOn
		d := model.DateOf(opt.Dtstart)
		p.EndOn = &d
	case !opt.Until.IsZero():
		p.EndType = model.EndOn
		d := model.DateOf(opt.Until)
		p.EndOn = &d
	default:
		p.EndType = model.EndNever
	}
	return p, Validate(p)
}
