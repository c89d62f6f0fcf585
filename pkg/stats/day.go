package stats

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of a report day
const DateLayout = "2006-01-02"

// Day is one calendar day in the report location. The zero value is not usable
type Day struct {
	midnight time.Time
}

// ParseDay parses a YYYY-MM-DD string as a calendar day in loc
func ParseDay(s string, loc *time.Location) (Day, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return Day{}, fmt.Errorf("invalid report date %q: %w", s, err)
	}
	return DayOf(t, loc), nil
}

// DayOf returns the calendar day containing t, as observed in loc
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return Day{midnight: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)}
}

// String formats the day as YYYY-MM-DD
func (d Day) String() string {
	return d.midnight.Format(DateLayout)
}

// IsZero reports whether d was never set
func (d Day) IsZero() bool {
	return d.midnight.IsZero()
}

// Year returns the calendar year of the day
func (d Day) Year() int {
	return d.midnight.Year()
}

// Month returns the calendar month of the day
func (d Day) Month() time.Month {
	return d.midnight.Month()
}

// Location returns the location the day boundaries are computed in
func (d Day) Location() *time.Location {
	return d.midnight.Location()
}

// Prev returns the previous calendar day. This is not the same as 24 hours
// earlier across a DST transition.
func (d Day) Prev() Day {
	return d.AddDays(-1)
}

// AddDays returns the day n calendar days away from d
func (d Day) AddDays(n int) Day {
	m := d.midnight
	return Day{midnight: time.Date(m.Year(), m.Month(), m.Day()+n, 0, 0, 0, 0, m.Location())}
}

// Window returns the canonical report window [00:00:00.000, 23:59:59.999]
func (d Day) Window() Window {
	next := d.AddDays(1).midnight
	return Window{Start: d.midnight, End: next.Add(-time.Millisecond)}
}

// Window is an inclusive time range with millisecond resolution
type Window struct {
	Start time.Time
	End   time.Time
}

// EndExclusive returns the first instant after the window, for backends
// whose end bound is exclusive.
func (w Window) EndExclusive() time.Time {
	return w.End.Add(time.Millisecond)
}

// Duration is the inclusive span of the window. A full day window is 24h
func (w Window) Duration() time.Duration {
	return w.EndExclusive().Sub(w.Start)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", w.Start.Format(time.RFC3339Nano), w.End.Format(time.RFC3339Nano))
}
