package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"synccal/internal/ics"
	"synccal/internal/model"
	"synccal/internal/recurrence"
)

type expandOptions struct {
	start      string
	end        string
	title      string
	freq       string
	interval   int
	days       []int
	after      int
	until      string
	exceptions []string
	format     string
}

var expandOpts expandOptions

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Print the instances a recurrence pattern generates",
	Example: "  synccal expand --start 2024-03-04T09:00:00Z --end 2024-03-04T10:00:00Z \\\n" +
		"    --title Inspection --type weekly --days 1,3 --after 4",
	RunE: func(cmd *cobra.Command, _ []string) error {
		base, pattern, err := expandOpts.build()
		if err != nil {
			return err
		}
		switch expandOpts.format {
		case "json":
			return printJSON(cmd.OutOrStdout(), recurrence.Expand(base, pattern))
		case "ics":
			base.Link = model.RecurrenceLink{Pattern: &pattern}
			out, err := ics.Encode([]model.Event{base}, time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		default:
			return fmt.Errorf("unknown format %q (want json or ics)", expandOpts.format)
		}
	},
}

func init() {
	f := expandCmd.Flags()
	f.StringVar(&expandOpts.start, "start", "", "start of the base event (RFC 3339)")
	f.StringVar(&expandOpts.end, "end", "", "end of the base event (RFC 3339)")
	f.StringVar(&expandOpts.title, "title", "Recurring event", "event title")
	f.StringVar(&expandOpts.freq, "type", string(model.Weekly), "daily, weekly, monthly or yearly")
	f.IntVar(&expandOpts.interval, "interval", 1, "step between occurrences")
	f.IntSliceVar(&expandOpts.days, "days", nil, "weekday indices for weekly patterns (0=Sunday)")
	f.IntVar(&expandOpts.after, "after", 0, "stop after this many instances")
	f.StringVar(&expandOpts.until, "until", "", "stop on this date (YYYY-MM-DD)")
	f.StringSliceVar(&expandOpts.exceptions, "except", nil, "dates to skip (YYYY-MM-DD)")
	f.StringVar(&expandOpts.format, "format", "json", "output format: json or ics")
	_ = expandCmd.MarkFlagRequired("start")
	_ = expandCmd.MarkFlagRequired("end")
}

// build turns the flag values into a base event and a validated pattern.
func (o expandOptions) build() (model.Event, model.RecurrencePattern, error) {
	start, err := time.Parse(time.RFC3339, o.start)
	if err != nil {
		return model.Event{}, model.RecurrencePattern{}, fmt.Errorf("--start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, o.end)
	if err != nil {
		return model.Event{}, model.RecurrencePattern{}, fmt.Errorf("--end: %w", err)
	}

	p := model.RecurrencePattern{
		Type:       model.Frequency(o.freq),
		Interval:   o.interval,
		DaysOfWeek: o.days,
		EndType:    model.EndNever,
	}
	switch {
	case o.after > 0 && o.until != "":
		return model.Event{}, model.RecurrencePattern{}, errors.New("--after and --until are mutually exclusive")
	case o.after > 0:
		p.EndType = model.EndAfter
		p.EndAfter = o.after
	case o.until != "":
		d, err := model.ParseDate(o.until)
		if err != nil {
			return model.Event{}, model.RecurrencePattern{}, fmt.Errorf("--until: %w", err)
		}
		p.EndType = model.EndOn
		p.EndOn = &d
	}
	for _, s := range o.exceptions {
		d, err := model.ParseDate(s)
		if err != nil {
			return model.Event{}, model.RecurrencePattern{}, fmt.Errorf("--except: %w", err)
		}
		p.Exceptions = append(p.Exceptions, d)
	}
	if err := recurrence.Validate(p); err != nil {
		return model.Event{}, model.RecurrencePattern{}, err
	}

	base := model.Event{
		ID:           "cli",
		Title:        o.title,
		Start:        start,
		End:          end,
		SourceModule: model.ModuleTask,
	}
	if err := base.Validate(); err != nil {
		return model.Event{}, model.RecurrencePattern{}, err
	}
	return base, p, nil
}
