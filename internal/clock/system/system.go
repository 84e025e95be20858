// Package system provides a real clock implementation.
package system

import "time"

// Clock implements waittimes.Clock using time.Now. Times stay in the local
// zone: the status message timestamp is meant to read as airport-local.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current local time.
func (Clock) Now() time.Time {
	return time.Now()
}
