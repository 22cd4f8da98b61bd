// Package schedule holds the pure slot arithmetic for the booking engine:
// weekly template generation from availability windows and the clock/date
// parsing shared by the resolver and the booking guard.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/medikita/clinic-booking-api/internal/models"
	appErrors "github.com/medikita/clinic-booking-api/pkg/errors"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ClockLayout is the wire format for times of day.
const ClockLayout = "15:04"

// Generate partitions each availability window into duration-minute slots and
// returns the per-weekday ordered start times. All seven weekday keys are
// present in the result; days absent from the availability get an empty list.
// A trailing remainder shorter than duration is dropped. The function is pure:
// identical inputs always yield identical output.
func Generate(availability models.WeeklyAvailability, duration int) (models.WeeklySlotTemplate, error) {
	if duration <= 0 {
		return nil, appErrors.Clone(appErrors.ErrMalformedAvailability, "slot duration must be a positive number of minutes")
	}

	template := make(models.WeeklySlotTemplate, len(models.WeekdayKeys))
	for _, day := range models.WeekdayKeys {
		template[day] = []string{}
	}

	for day, windows := range availability {
		if !models.IsWeekdayKey(day) {
			return nil, appErrors.Clone(appErrors.ErrMalformedAvailability, fmt.Sprintf("unknown weekday key %q", day))
		}

		parsed := make([][2]int, 0, len(windows))
		for _, window := range windows {
			start, err := ParseClock(window.Start)
			if err != nil {
				return nil, appErrors.Clone(appErrors.ErrMalformedAvailability, fmt.Sprintf("bad window start %q on %s", window.Start, day))
			}
			end, err := ParseClock(window.End)
			if err != nil {
				return nil, appErrors.Clone(appErrors.ErrMalformedAvailability, fmt.Sprintf("bad window end %q on %s", window.End, day))
			}
			if start >= end {
				return nil, appErrors.Clone(appErrors.ErrMalformedAvailability, fmt.Sprintf("window %s-%s on %s must start before it ends", window.Start, window.End, day))
			}
			parsed = append(parsed, [2]int{start, end})
		}

		sort.Slice(parsed, func(i, j int) bool { return parsed[i][0] < parsed[j][0] })

		for i := 1; i < len(parsed); i++ {
			if parsed[i][0] < parsed[i-1][1] {
				return nil, appErrors.Clone(appErrors.ErrMalformedAvailability, fmt.Sprintf("overlapping windows on %s", day))
			}
		}

		for _, window := range parsed {
			for t := window[0]; t+duration <= window[1]; t += duration {
				template[day] = append(template[day], FormatClock(t))
			}
		}
	}

	return template, nil
}

// ParseClock converts "HH:MM" into minutes from midnight.
func ParseClock(value string) (int, error) {
	t, err := time.Parse(ClockLayout, value)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock converts minutes from midnight into "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate validates a YYYY-MM-DD calendar date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrInvalidDate, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", value))
	}
	return t, nil
}

// WeekdayKey maps a calendar date onto its three-letter weekday code.
func WeekdayKey(date time.Time) string {
	switch date.Weekday() {
	case time.Monday:
		return "mon"
	case time.Tuesday:
		return "tue"
	case time.Wednesday:
		return "wed"
	case time.Thursday:
		return "thu"
	case time.Friday:
		return "fri"
	case time.Saturday:
		return "sat"
	default:
		return "sun"
	}
}

// EndTime derives the slot end for a start time and duration in minutes.
func EndTime(start string, duration int) (string, error) {
	minutes, err := ParseClock(start)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrInvalidTime, fmt.Sprintf("invalid time %q, expected HH:MM", start))
	}
	return FormatClock(minutes + duration), nil
}
