// timebase.go - monotonic wall clock with an externally adjustable offset.
//
// Kharon's own clock never calls the out-of-scope UDP time-sync broadcaster
// (spec.md §1, §6); it only exposes the hook that broadcaster would drive.

package main

import (
	"math"
	"sync/atomic"
	"time"
)

// TimeBase is the process-wide wall clock used by every stage. All
// timestamps on the wire and in producer queues are expressed as seconds
// since the Unix epoch, per spec.md §3.
type TimeBase struct {
	offsetNanos atomic.Int64
	start       time.Time
}

// NewTimeBase returns a TimeBase with zero offset.
func NewTimeBase() *TimeBase {
	return &TimeBase{start: time.Now()}
}

// Now returns the current adjusted wall-clock time in fractional seconds
// since the Unix epoch.
func (t *TimeBase) Now() float64 {
	n := time.Now().UnixNano() + t.offsetNanos.Load()
	return float64(n) / 1e9
}

// SetOffset applies a clock-sync correction, in seconds, as would be
// delivered by the out-of-scope UDP time-sync receiver (spec.md §6). The
// write is a single atomic store; readers of Now() never block on it.
func (t *TimeBase) SetOffset(seconds float64) {
	t.offsetNanos.Store(int64(seconds * 1e9))
}

// Offset returns the currently applied offset in seconds.
func (t *TimeBase) Offset() float64 {
	return float64(t.offsetNanos.Load()) / 1e9
}

// AlignDown returns the largest multiple of `grid` seconds <= t. Used by
// the IMU and attitude publication grids (both 10ms-aligned per §4.2/§4.3).
// The epsilon absorbs the division error for times already exactly on the
// grid, which would otherwise align a full step too low.
func AlignDown(t, grid float64) float64 {
	return math.Floor(t/grid+1e-9) * grid
}
