// Package clock defines the timestamp seam the directory engine consumes
// when stamping created/modified times. System is a thin wrapper around
// time.Now and Fixed always returns one instant. The root package's
// FileSystem always stamps entries with System; it offers no way to install
// a different Clock.
package clock

import "time"

// Clock returns the current time used to stamp directory entries.
type Clock interface {
	Now() time.Time
}

// System is the default Clock, backed by time.Now.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed is a Clock that always returns the same instant, for deterministic
// tests.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }
