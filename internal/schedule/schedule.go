// Package schedule turns recurrence rules into concrete occurrence dates.
// Everything here is pure: the only clock is the one the caller passes in.
package schedule

import (
	"fmt"
	"regexp"
	"time"

	"agendaviva/internal/domain"
)

// DateLayout is the wire format for occurrence dates.
const DateLayout = "2006-01-02"

// HorizonDays bounds how far ahead availability is materialized.
const HorizonDays = 30

var timeOfDayRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Entry is one generated occurrence.
type Entry struct {
	Date string
	Time string
}

// ParseDate parses a YYYY-MM-DD date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// ValidateRule rejects malformed rules at activity-save time.
func ValidateRule(rule domain.RecurrenceRule) error {
	switch rule.Frequency {
	case domain.FreqDaily:
	case domain.FreqWeekly:
		if len(rule.DaysOfWeek) == 0 {
			return fmt.Errorf("weekly recurrence requires days_of_week")
		}
		for _, d := range rule.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("days_of_week value %d out of range 0-6", d)
			}
		}
	case domain.FreqMonthly:
		if len(rule.DaysOfMonth) == 0 {
			return fmt.Errorf("monthly recurrence requires days_of_month")
		}
		for _, d := range rule.DaysOfMonth {
			if d < 1 || d > 31 {
				return fmt.Errorf("days_of_month value %d out of range 1-31", d)
			}
		}
	default:
		return fmt.Errorf("invalid frequency %q", rule.Frequency)
	}
	start, err := ParseDate(rule.StartDate)
	if err != nil {
		return fmt.Errorf("invalid start_date: %w", err)
	}
	if rule.EndDate != nil {
		end, err := ParseDate(*rule.EndDate)
		if err != nil {
			return fmt.Errorf("invalid end_date: %w", err)
		}
		if end.Before(start) {
			return fmt.Errorf("end_date before start_date")
		}
	}
	if rule.OccurrenceLimit != nil && *rule.OccurrenceLimit <= 0 {
		return fmt.Errorf("occurrence_limit must be positive")
	}
	if rule.TimeOfDay != "" && !timeOfDayRe.MatchString(rule.TimeOfDay) {
		return fmt.Errorf("invalid time_of_day %q, want HH:MM", rule.TimeOfDay)
	}
	return nil
}

// Expand generates the rule's occurrences inside [winStart, winEnd], both
// inclusive, ordered ascending. The occurrence limit counts matches from the
// rule's start date regardless of where the window begins, so the walk always
// starts at the rule's start. Monthly days that a month lacks are skipped,
// never clamped.
func Expand(rule domain.RecurrenceRule, winStart, winEnd time.Time) ([]Entry, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}
	start, _ := ParseDate(rule.StartDate)
	var end *time.Time
	if rule.EndDate != nil {
		e, _ := ParseDate(*rule.EndDate)
		end = &e
	}
	winStart = truncateDay(winStart)
	winEnd = truncateDay(winEnd)

	weekdays := daySet(rule.DaysOfWeek)
	monthDays := daySet(rule.DaysOfMonth)

	var out []Entry
	matched := 0
	for d := start; !d.After(winEnd); d = d.AddDate(0, 0, 1) {
		if end != nil && d.After(*end) {
			break
		}
		if rule.OccurrenceLimit != nil && matched >= *rule.OccurrenceLimit {
			break
		}
		var hit bool
		switch rule.Frequency {
		case domain.FreqDaily:
			hit = true
		case domain.FreqWeekly:
			hit = weekdays[int(d.Weekday())]
		case domain.FreqMonthly:
			hit = monthDays[d.Day()]
		}
		if !hit {
			continue
		}
		matched++
		if d.Before(winStart) {
			continue
		}
		out = append(out, Entry{Date: d.Format(DateLayout), Time: rule.TimeOfDay})
	}
	return out, nil
}

// Matches reports whether the rule generates the given date. It honors the
// occurrence limit, so a date past the Nth match does not count.
func Matches(rule domain.RecurrenceRule, date string) (bool, error) {
	d, err := ParseDate(date)
	if err != nil {
		return false, err
	}
	entries, err := Expand(rule, d, d)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// DisplayWindow returns the availability window: from yesterday at local
// midnight (events in progress stay visible) through now plus the horizon.
func DisplayWindow(now time.Time) (time.Time, time.Time) {
	return Window(now, 1, HorizonDays)
}

// Window is DisplayWindow with configurable lookback and horizon.
func Window(now time.Time, lookbackDays, horizonDays int) (time.Time, time.Time) {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return midnight.AddDate(0, 0, -lookbackDays), midnight.AddDate(0, 0, horizonDays)
}

// WithinDisplayHorizon reports whether a date falls inside the default
// display window.
func WithinDisplayHorizon(now time.Time, date string) bool {
	return WithinWindow(now, date, 1, HorizonDays)
}

// WithinWindow is WithinDisplayHorizon with configurable lookback and horizon.
func WithinWindow(now time.Time, date string, lookbackDays, horizonDays int) bool {
	d, err := ParseDate(date)
	if err != nil {
		return false
	}
	lo, hi := Window(now, lookbackDays, horizonDays)
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, now.Location())
	return !d.Before(lo) && !d.After(hi)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daySet(days []int) map[int]bool {
	if len(days) == 0 {
		return nil
	}
	set := make(map[int]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	return set
}
