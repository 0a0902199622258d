// declination.go - the process-wide magnetic declination scalar.
//
// spec.md §4.3 and §5 call for a single-writer/many-reader cell: the
// mapping subsystem (out of scope, §1) and the debug console's nudge keys
// (SPEC_FULL.md §12.1) publish updates, the attitude estimator reads a
// possibly slightly stale snapshot. An atomic float64 bit-pattern
// store/load gives that without a mutex.

package main

import (
	"math"
	"sync/atomic"
)

// Declination is the process-wide magnetic-declination-at-vessel scalar,
// in degrees.
type Declination struct {
	bits atomic.Uint64
}

// NewDeclination returns a Declination initialized to the given degrees.
func NewDeclination(degrees float64) *Declination {
	d := &Declination{}
	d.Set(degrees)
	return d
}

// Set stores a new declination value, in degrees. Safe to call from any
// goroutine at any time.
func (d *Declination) Set(degrees float64) {
	d.bits.Store(math.Float64bits(degrees))
}

// Get returns the current declination, in degrees. Readers tolerate a
// value that may be one update stale.
func (d *Declination) Get() float64 {
	return math.Float64frombits(d.bits.Load())
}

// Nudge adjusts the declination by delta degrees, used by the operator
// debug console (SPEC_FULL.md §12.1).
func (d *Declination) Nudge(delta float64) {
	for {
		old := d.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if d.bits.CompareAndSwap(old, next) {
			return
		}
	}
}
