package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synccal/internal/model"
)

func TestValidate(t *testing.T) {
	endOn := model.Date{Year: 2024, Month: time.May, Day: 1}

	cases := []struct {
		name  string
		p     model.RecurrencePattern
		field string
	}{
		{"valid after", model.RecurrencePattern{Type: model.Daily, Interval: 1, EndType: model.EndAfter, EndAfter: 3}, ""},
		{"valid on", model.RecurrencePattern{Type: model.Monthly, Interval: 1, EndType: model.EndOn, EndOn: &endOn}, ""},
		{"valid never weekly days", model.RecurrencePattern{Type: model.Weekly, Interval: 1, DaysOfWeek: []int{0, 6}, EndType: model.EndNever}, ""},
		{"unknown type", model.RecurrencePattern{Type: "hourly", Interval: 1, EndType: model.EndNever}, "type"},
		{"zero interval", model.RecurrencePattern{Type: model.Daily, Interval: 0, EndType: model.EndNever}, "interval"},
		{"weekday out of range", model.RecurrencePattern{Type: model.Weekly, Interval: 1, DaysOfWeek: []int{7}, EndType: model.EndNever}, "daysOfWeek"},
		{"days on daily", model.RecurrencePattern{Type: model.Daily, Interval: 1, DaysOfWeek: []int{1}, EndType: model.EndNever}, "daysOfWeek"},
		{"after without count", model.RecurrencePattern{Type: model.Daily, Interval: 1, EndType: model.EndAfter}, "endAfter"},
		{"on without date", model.RecurrencePattern{Type: model.Daily, Interval: 1, EndType: model.EndOn}, "endOn"},
		{"unknown end", model.RecurrencePattern{Type: model.Daily, Interval: 1, EndType: "sometime"}, "endType"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.p)
			if tc.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPattern))

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}
