package scheduler

import (
	"sync/atomic"
	"time"
)

// misfireThreshold bounds how late a first fire may be and still run
// immediately instead of waiting for the next period.
const misfireThreshold = time.Minute

// intervalSchedule fires at startAt + n*every. Fires missed while the
// engine was not running are skipped, except for a first fire that is less
// than misfireThreshold late.
type intervalSchedule struct {
	startAt time.Time
	every   time.Duration
	first   atomic.Bool
}

func newIntervalSchedule(startAt time.Time, every time.Duration) *intervalSchedule {
	s := &intervalSchedule{startAt: startAt, every: every}
	s.first.Store(true)
	return s
}

// Next implements cron.Schedule.
func (s *intervalSchedule) Next(t time.Time) time.Time {
	if t.Before(s.startAt) {
		s.first.Store(false)
		return s.startAt
	}
	if s.first.CompareAndSwap(true, false) && t.Sub(s.startAt) < misfireThreshold {
		return t
	}
	n := t.Sub(s.startAt)/s.every + 1
	return s.startAt.Add(n * s.every)
}
