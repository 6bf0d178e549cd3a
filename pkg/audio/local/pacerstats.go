package local

import (
	"sync"
	"time"
)

// slowWriteThreshold classifies a software-pacer inter-write interval as
// slow. With a 5 ms slice, anything beyond 12 ms means pacing fell more than
// one slice behind real time.
const slowWriteThreshold = 12 * time.Millisecond

// pacerStats accumulates inter-write intervals of the software pacer for one
// reporting interval. The reporter drains it with snapshotAndReset, so data
// never carries across intervals.
type pacerStats struct {
	mu    sync.Mutex
	sum   time.Duration
	count int
	max   time.Duration
	slow  int
}

// pacerSnapshot is one reporting interval's rollup.
type pacerSnapshot struct {
	Avg   time.Duration
	Max   time.Duration
	Count int
	Slow  int
}

// record adds one measured inter-write interval.
func (s *pacerStats) record(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += dt
	s.count++
	if dt > s.max {
		s.max = dt
	}
	if dt > slowWriteThreshold {
		s.slow++
	}
}

// snapshotAndReset returns the current rollup and zeroes the accumulator so
// the next interval starts fresh.
func (s *pacerStats) snapshotAndReset() pacerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := pacerSnapshot{Max: s.max, Count: s.count, Slow: s.slow}
	if s.count > 0 {
		snap.Avg = s.sum / time.Duration(s.count)
	}
	s.sum = 0
	s.count = 0
	s.max = 0
	s.slow = 0
	return snap
}
