// Package clock provides the trusted time source used for day boundaries.
// Device or client supplied time is never used to decide what "today" is.
package clock

import (
	"context"
	"time"
)

// Clock returns the current trusted time. The production implementation is
// repository.ServerClock, which reads the database server time.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

// Func adapts a function to the Clock interface.
type Func func() time.Time

// Now calls f.
func (f Func) Now(context.Context) (time.Time, error) {
	return f(), nil
}

// Fixed returns a clock that always reports t.
func Fixed(t time.Time) Func {
	return func() time.Time { return t }
}

// DayRange returns [start, end) of the calendar day containing t in loc.
func DayRange(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Calendar combines a clock with the location that defines day boundaries.
type Calendar struct {
	clock Clock
	loc   *time.Location
}

// NewCalendar creates a Calendar. A nil location means UTC.
func NewCalendar(c Clock, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{clock: c, loc: loc}
}

// Now returns the current trusted time.
func (c *Calendar) Now(ctx context.Context) (time.Time, error) {
	return c.clock.Now(ctx)
}

// Today returns the current trusted time and the bounds of its day.
func (c *Calendar) Today(ctx context.Context) (now, start, end time.Time, err error) {
	now, err = c.clock.Now(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, err
	}
	start, end = DayRange(now, c.loc)
	return now, start, end, nil
}

// Location returns the location used for day boundaries.
func (c *Calendar) Location() *time.Location {
	return c.loc
}
