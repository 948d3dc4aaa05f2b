package recurrence

import (
	"time"

	"synccal/internal/model"
)

// step advances cursor by one unit of the pattern. It returns false when a
// weekly pattern with DaysOfWeek has no matching day inside its window.
func step(cursor time.Time, p model.RecurrencePattern) (time.Time, bool) {
	switch p.Type {
	case model.Daily:
		return cursor.AddDate(0, 0, p.Interval), true
	case model.Weekly:
		if len(p.DaysOfWeek) == 0 {
			return cursor.AddDate(0, 0, 7*p.Interval), true
		}
		return nextWeekday(cursor, p.DaysOfWeek, 7*p.Interval)
	case model.Monthly:
		// Month-end overflow follows time.AddDate normalization.
		return cursor.AddDate(0, p.Interval, 0), true
	case model.Yearly:
		return cursor.AddDate(p.Interval, 0, 0), true
	default:
		return cursor, false
	}
}

func nextWeekday(cursor time.Time, days []int, window int) (time.Time, bool) {
	want := [7]bool{}
	for _, d := range days {
		if d >= 0 && d < 7 {
			want[d] = true
		}
	}
	for i := 1; i <= window; i++ {
		candidate := cursor.AddDate(0, 0, i)
		if want[int(candidate.Weekday())] {
			return candidate, true
		}
	}
	return cursor, false
}
