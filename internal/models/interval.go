package models

import (
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

// TimeInterval is a calendar date plus a half-open [Start, End) range of
// minutes from midnight, facility-local time.
type TimeInterval struct {
	Date        time.Time `json:"date"`
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
}

func NewTimeInterval(date time.Time, startMinute, endMinute int) TimeInterval {
	return TimeInterval{
		Date:        TruncateToDay(date),
		StartMinute: startMinute,
		EndMinute:   endMinute,
	}
}

// Overlaps reports whether two intervals on the same date intersect.
// Half-open semantics: touching endpoints do not overlap. Room equality
// is the caller's concern.
func (i TimeInterval) Overlaps(other TimeInterval) bool {
	if !SameDay(i.Date, other.Date) {
		return false
	}
	return i.StartMinute < other.EndMinute && other.StartMinute < i.EndMinute
}

// Validate checks the interval shape only; date policy (not in the past,
// advance window) is enforced by the scheduler.
func (i TimeInterval) Validate() error {
	if i.StartMinute < 0 || i.EndMinute > minutesPerDay {
		return fmt.Errorf("interval out of day bounds: %s-%s", i.StartLabel(), i.EndLabel())
	}
	if i.EndMinute <= i.StartMinute {
		return fmt.Errorf("interval end %s is not after start %s", i.EndLabel(), i.StartLabel())
	}
	return nil
}

func (i TimeInterval) Duration() time.Duration {
	return time.Duration(i.EndMinute-i.StartMinute) * time.Minute
}

func (i TimeInterval) StartLabel() string { return FormatTimeOfDay(i.StartMinute) }
func (i TimeInterval) EndLabel() string   { return FormatTimeOfDay(i.EndMinute) }

func (i TimeInterval) DateKey() string { return i.Date.Format(DateLayout) }

// ParseTimeOfDay converts "HH:MM" to minutes from midnight.
func ParseTimeOfDay(s string) (int, error) {
	t, err := time.Parse(TimeOfDayLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatTimeOfDay converts minutes from midnight to "HH:MM".
func FormatTimeOfDay(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// TruncateToDay strips the time-of-day component.
func TruncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
