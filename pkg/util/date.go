package util

import (
	"fmt"
	"strconv"
	"time"
	_ "time/tzdata"
)

// ParseTime tries RFC3339, RFC3339Nano, unix seconds and unix millis. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts > 1e12 {
			return time.UnixMilli(ts), true
		}
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// TimeOfDay is a wall-clock time within an exchange day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (d TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute)
}

// On returns the instant of d on the calendar day of t in loc.
func (d TimeOfDay) On(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), d.Hour, d.Minute, 0, 0, loc)
}

// Reached reports whether t is at or after d on t's day in loc.
func (d TimeOfDay) Reached(t time.Time, loc *time.Location) bool {
	return !t.Before(d.On(t, loc))
}

// SessionKey identifies the exchange calendar day containing t.
func SessionKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// SessionEnd is the next local midnight after t in loc.
func SessionEnd(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day()+1, 0, 0, 0, 0, loc)
}

// LoadLocation resolves an IANA zone name, treating "" as UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}
