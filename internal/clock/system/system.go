// Package system provides the wall clock used for subscription periods.
package system

import "time"

// Clock implements subscription.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC, truncated to whole seconds so stored
// subscription bounds round-trip through Postgres unchanged.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
