package tracker

import "time"

// Scheduler runs delayed steps. Reconciliation uses it exclusively, so a fake
// implementation makes the whole protocol run on logical time.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
	Now() time.Time
}

type clockScheduler struct{}

// NewClockScheduler returns a Scheduler backed by the wall clock
func NewClockScheduler() Scheduler {
	return clockScheduler{}
}

func (clockScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

func (clockScheduler) Now() time.Time {
	return time.Now()
}
