package agent

import (
	"sync/atomic"
	"time"
)

// Schedule tracks when a registered behavior last fired. Each registration
// owns its own Schedule, so behaviors are timed independently of each other.
type Schedule struct {
	interval time.Duration
	last     atomic.Int64 // unix nanoseconds of the last execution
}

// NewSchedule creates a schedule whose first execution is due one interval after start.
func NewSchedule(interval time.Duration, start time.Time) *Schedule {
	if interval < 0 {
		interval = 0
	}
	s := &Schedule{interval: interval}
	s.last.Store(start.UnixNano())
	return s
}

// Interval returns the configured interval.
func (s *Schedule) Interval() time.Duration {
	return s.interval
}

// LastExecution returns the time of the last execution (or the start time).
func (s *Schedule) LastExecution() time.Time {
	return time.Unix(0, s.last.Load())
}

// ShouldExecute reports whether at least one interval has elapsed since the
// last execution and, if so, advances the last execution to now. The check and
// the advance are a single atomic step: of two concurrent callers at most one
// observes true.
func (s *Schedule) ShouldExecute(now time.Time) bool {
	at := now.UnixNano()
	for {
		last := s.last.Load()
		if at-last < int64(s.interval) {
			return false
		}
		if s.last.CompareAndSwap(last, at) {
			return true
		}
	}
}
