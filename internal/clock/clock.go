package clock

import "time"

// Clock abstracts wall-clock reads so pipeline runs and audit rows can be
// timestamped deterministically in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// New returns a Clock backed by system time.
func New() Clock { return systemClock{} }
