// Package clock abstracts time so tests can freeze it. The only
// process-wide mutable state outside the database is the indexer queue
// and the clock; everything else flows through the request.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// System is the real clock. Returns UTC instants.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Frozen is a test clock pinned to a fixed instant. Advance moves it.
type Frozen struct {
	T time.Time
}

// NewFrozen returns a frozen clock at t (normalized to UTC).
func NewFrozen(t time.Time) *Frozen { return &Frozen{T: t.UTC()} }

func (f *Frozen) Now() time.Time { return f.T }

// Advance moves the frozen clock forward by d.
func (f *Frozen) Advance(d time.Duration) { f.T = f.T.Add(d) }
