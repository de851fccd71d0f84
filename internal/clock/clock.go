// Package clock supplies the local time used for personal ids and record timestamps.
//
// The service does not do calendar-aware time zone conversion. It applies a fixed offset to
// UTC, which is +2 hours by default. Daylight saving transitions are therefore ignored.
package clock

import (
	"fmt"
	"time"
)

// LegacyFixedOffset is the default offset applied to UTC.
const LegacyFixedOffset = 2 * time.Hour

// Clock returns the current local time.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// FixedOffset is a Clock that shifts UTC by a constant offset.
type FixedOffset struct {
	loc *time.Location
	now func() time.Time
}

// NewFixedOffset returns a clock for the given offset, e.g. LegacyFixedOffset.
func NewFixedOffset(offset time.Duration) *FixedOffset {
	return &FixedOffset{
		loc: time.FixedZone(zoneName(offset), int(offset/time.Second)),
		now: time.Now,
	}
}

// Now returns the current time in the clock's fixed zone, truncated to microseconds so that
// values survive a round trip through the database unchanged.
func (c *FixedOffset) Now() time.Time {
	return c.now().In(c.loc).Truncate(time.Microsecond)
}

// Location returns the fixed zone of the clock.
func (c *FixedOffset) Location() *time.Location {
	return c.loc
}

// Frozen returns a clock that always reports t, converted into the zone of offset.
func Frozen(t time.Time, offset time.Duration) *FixedOffset {
	c := NewFixedOffset(offset)
	c.now = func() time.Time { return t }
	return c
}

func zoneName(offset time.Duration) string {
	if offset == 0 {
		return "UTC"
	}
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	if m == 0 {
		return fmt.Sprintf("UTC%s%d", sign, h)
	}
	return fmt.Sprintf("UTC%s%d:%02d", sign, h, m)
}
