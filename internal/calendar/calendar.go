// Package calendar maps instants onto the service's reference calendar.
// Every date comparison in the engine goes through it, so one time zone
// decides where a day or a competition week begins.
package calendar

import (
	"fmt"
	"time"
)

// DayLayout is the wire format for calendar dates.
const DayLayout = "2006-01-02"

// Calendar resolves days and ISO weeks in a fixed location.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// New returns a calendar for loc using the wall clock.
func New(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{loc: loc, now: time.Now}
}

// Load builds a calendar from an IANA zone name. Empty means UTC.
func Load(tz string) (*Calendar, error) {
	if tz == "" {
		return New(time.UTC), nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", tz, err)
	}
	return New(loc), nil
}

// WithClock returns a copy of c that reads time from now.
func (c *Calendar) WithClock(now func() time.Time) *Calendar {
	return &Calendar{loc: c.loc, now: now}
}

// Location returns the reference zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Now returns the current instant in the reference zone.
func (c *Calendar) Now() time.Time { return c.now().In(c.loc) }

// Day formats t as a reference-zone calendar date.
func (c *Calendar) Day(t time.Time) string { return t.In(c.loc).Format(DayLayout) }

// Today is Day(Now()).
func (c *Calendar) Today() string { return c.Day(c.Now()) }

// Hour returns the reference-zone hour of t.
func (c *Calendar) Hour(t time.Time) int { return t.In(c.loc).Hour() }

// WeekID returns the ISO week of t as "YYYY-Www".
func (c *Calendar) WeekID(t time.Time) string {
	year, week := t.In(c.loc).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// WeekStart returns Monday 00:00 of the ISO week containing t.
func (c *Calendar) WeekStart(t time.Time) time.Time {
	local := t.In(c.loc)
	offset := (int(local.Weekday()) + 6) % 7 // Monday = 0
	y, m, d := local.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, c.loc)
}

// NextWeekStart returns the Monday 00:00 after t.
func (c *Calendar) NextWeekStart(t time.Time) time.Time {
	start := c.WeekStart(t)
	y, m, d := start.Date()
	return time.Date(y, m, d+7, 0, 0, 0, 0, c.loc)
}

// UntilReset is the time left before the next weekly boundary.
func (c *Calendar) UntilReset() time.Duration {
	now := c.Now()
	return c.NextWeekStart(now).Sub(now)
}

// ─── Date Arithmetic ────────────────────────────────────────────────────────
// Dates are pure calendar values; arithmetic runs in UTC so DST shifts in
// the reference zone never skip or repeat a day.

// ParseDay parses a "YYYY-MM-DD" date.
func ParseDay(day string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, day, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", day, err)
	}
	return t, nil
}

// AddDays shifts day by n calendar days. An unparseable day yields "".
func AddDays(day string, n int) string {
	t, err := ParseDay(day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, n).Format(DayLayout)
}

// DaysBetween returns to - from in whole days.
func DaysBetween(from, to string) (int, error) {
	a, err := ParseDay(from)
	if err != nil {
		return 0, err
	}
	b, err := ParseDay(to)
	if err != nil {
		return 0, err
	}
	return int(b.Sub(a).Hours() / 24), nil
}
