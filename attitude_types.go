// attitude_types.go - the attitude record and its supporting types
// (spec.md §3 "Attitude record").

package main

// AttitudeRecord is the per-10ms-slot record published by the attitude
// estimator at the fixed 100Hz cadence.
type AttitudeRecord struct {
	ShipToWorld Mat3

	Acc, Mag, Gyr Vec3 // filtered ship-frame vectors
	AccLen, MagLen float64 // pre-normalization magnitudes

	TrueHeading, MagHeadingReference, Pitch, Roll float64 // degrees
	TurnRate float64 // degrees per second, low-pass filtered

	// BiasErrorDeg is the bias-correction magnitude applied this tick
	// (SPEC_FULL.md §12.5).
	BiasErrorDeg float64

	// RunningBlind is set when at least one of GYR, ACC or MAG had no
	// valid contribution at any priority for this tick (spec.md §7
	// "route-side consumers read the per-record state bits and degrade
	// gracefully").
	RunningBlind bool
}
