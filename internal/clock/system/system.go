// Package system provides the wall clock used by scans.
package system

import "time"

// Clock implements crawler.Clock using time.Now in a fixed location.
type Clock struct {
	loc *time.Location
}

// New creates a Clock reporting UTC, used for record timestamps.
func New() *Clock {
	return &Clock{loc: time.UTC}
}

// NewLocal creates a Clock reporting the host's local time. Report
// directories are stamped with it so operators recognise them.
func NewLocal() *Clock {
	return &Clock{loc: time.Local}
}

// Now returns the current time.
func (c Clock) Now() time.Time {
	if c.loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.loc)
}
