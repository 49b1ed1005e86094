package clock

import "time"

// Clock supplies timestamps so rating mutations stay deterministic in tests.
type Clock interface {
	Now() time.Time
}

// System is a Clock backed by the wall clock, always in UTC.
type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fake is a manually advanced Clock for tests.
type Fake struct {
	now time.Time
}

// NewFake creates a Fake clock pinned to the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t.UTC()}
}

func (c *Fake) Now() time.Time {
	return c.now
}

// Advance moves the fake clock forward by d.
func (c *Fake) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
