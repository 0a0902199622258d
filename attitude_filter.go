// attitude_filter.go - the complementary filter at the heart of the
// attitude estimator (spec.md §4.3 "Complementary filter" and "Bias
// correction").

package main

import "math"

const (
	bootstrapSeconds = 1.0 // init_timer starting value, spec.md §4.3
	kAccBoot, kMagBoot = 0.05, 0.05 // bootstrap starting weight, approx per spec.md
)

// tauFor returns the steady-state complementary weight for a publication
// period dt: 10ms / 30s, per spec.md §4.3.
func tauFor(dt float64) float64 { return dt / 30.0 }

// complementaryFilter holds the running filtered/corrected acc and mag
// state plus the bias-error running averages, one instance per attitude
// estimator (there is exactly one ship-wide attitude, spec.md §4.3).
type complementaryFilter struct {
	compAcc, compMag Vec3
	errAcc, errMag   Vec3
	initTimer        float64

	// magErrorDivisor is the "k_mag / 4" tuning constant from spec.md §9,
	// preserved as a configurable, undocumented-in-origin constant
	// (SPEC_FULL.md §11) rather than hard-coded.
	magErrorDivisor float64
}

func newComplementaryFilter(magErrorDivisor float64) *complementaryFilter {
	if magErrorDivisor <= 0 {
		magErrorDivisor = 4
	}
	return &complementaryFilter{initTimer: bootstrapSeconds, magErrorDivisor: magErrorDivisor}
}

// SetMagErrorDivisor updates the "k_mag / 4" tuning constant in place
// (spec.md §9, SPEC_FULL.md §11), used by the attitude estimator's
// ReloadConfig hook to pick up an operator-adjusted value without
// restarting the filter's running state.
func (f *complementaryFilter) SetMagErrorDivisor(v float64) {
	if v <= 0 {
		return
	}
	f.magErrorDivisor = v
}

// ResetBootstrap re-arms the bootstrap timer to its maximum; called
// whenever the gyro signal is lost or at startup (spec.md §4.3, and
// SPEC_FULL.md's resolution of the open question: re-enter bootstrap on
// any publication whose GYR state is missing).
func (f *complementaryFilter) ResetBootstrap() {
	f.initTimer = bootstrapSeconds
}

// Weights returns the current ACC/MAG complementary weights, ramped
// linearly from the bootstrap starting weight down to the steady-state
// tau over the bootstrap window.
func (f *complementaryFilter) Weights(dt float64) (kAcc, kMag float64) {
	tau := tauFor(dt)
	progress := 1 - f.initTimer/bootstrapSeconds
	progress = clamp(progress, 0, 1)
	kAcc = kAccBoot - (kAccBoot-tau)*progress
	kMag = kMagBoot - (kMagBoot-tau)*progress
	return kAcc, kMag
}

// Update advances the filter by one publication tick of period dt, given
// the merged gyro rotation (degrees, accumulated over dt per spec.md §3)
// and the merged measured acc/mag vectors with their validity. It returns
// the corrected acc/mag vectors used to build the ship->world matrix and
// the magnitude of the bias correction just applied.
//
// gyrDeg's axis/angle already encodes g·dt (spec.md §4.3 step 1): a
// deg/s rate integrated over dt and an already-accumulated degrees
// quantity integrated over the same dt arrive at the same axis-angle, so
// the upsampled accumulated-rotation records from imu_receiver.go plug in
// directly without re-deriving a rate.
func (f *complementaryFilter) Update(dt float64, gyrDeg Vec3, measuredAcc, measuredMag Vec3, accValid, magValid bool) (correctedAcc, correctedMag Vec3, biasErrorDeg float64) {
	kAcc, kMag := f.Weights(dt)

	freshBootstrap := f.initTimer >= bootstrapSeconds && accValid && magValid

	axis := gyrDeg.Unit()
	theta := DegToRad(gyrDeg.Len())
	newAcc := RotateAxisAngle(f.compAcc, axis, theta)
	newMag := RotateAxisAngle(f.compMag, axis, theta)

	unitAcc := measuredAcc.Unit()
	unitMag := measuredMag.Unit()

	var compAcc, compMag Vec3
	switch {
	case freshBootstrap:
		compAcc = unitAcc
		compMag = unitMag
	default:
		if accValid {
			compAcc = unitAcc.Scale(kAcc).Add(newAcc.Scale(1 - kAcc))
		} else {
			compAcc = newAcc
		}
		if magValid {
			compMag = unitMag.Scale(kMag).Add(newMag.Scale(1 - kMag))
		} else {
			compMag = newMag
		}
	}

	var errAccInstant, errMagInstant Vec3
	if accValid && compAcc.Len() > 0 {
		axisErr, thetaErr := SmallRotationTo(compAcc.Unit(), unitAcc)
		errAccInstant = axisErr.Scale(thetaErr)
	}
	if magValid && compMag.Len() > 0 {
		axisErr, thetaErr := SmallRotationTo(compMag.Unit(), unitMag)
		errMagInstant = axisErr.Scale(thetaErr)
	}

	f.errAcc = errAccInstant.Scale(kAcc).Add(f.errAcc.Scale(1 - kAcc))
	kMagCorrection := kMag / f.magErrorDivisor
	f.errMag = errMagInstant.Scale(kMagCorrection).Add(f.errMag.Scale(1 - kMagCorrection))

	correctedAcc = RotateAxisAngle(compAcc, f.errAcc.Unit(), f.errAcc.Len())
	correctedMag = RotateAxisAngle(compMag, f.errMag.Unit(), f.errMag.Len())

	f.compAcc = compAcc
	f.compMag = compMag

	return correctedAcc, correctedMag, RadToDeg(f.errAcc.Len())
}

// TickBootstrap decrements the bootstrap timer by dt, floored at zero;
// called once per publication after Update (spec.md §4.3 "the timer
// decrements by 10ms per publication").
func (f *complementaryFilter) TickBootstrap(dt float64) {
	f.initTimer -= dt
	if f.initTimer < 0 {
		f.initTimer = 0
	}
}

// buildShipToWorld builds the orthonormal ship->world basis from the
// corrected acc (Y=up) and mag (Z≈heading reference) per spec.md §4.3
// "Rotation matrix".
func buildShipToWorld(correctedAcc, correctedMag Vec3) Mat3 {
	y := correctedAcc.Unit()
	magProj := correctedMag.Sub(y.Scale(y.Dot(correctedMag))).Unit()
	z := magProj
	x := y.Cross(z)
	return FromRows(x, y, z)
}

// headingsFromMatrix computes mag_heading and true_heading, both wrapped
// to [0, 360), per spec.md §4.3 "Heading".
func headingsFromMatrix(m Mat3, declinationDeg float64) (magHeading, trueHeading float64) {
	z := m.Rows[2]
	magHeading = WrapDeg360(RadToDeg(math.Atan2(z.X, z.Z)))
	trueHeading = WrapDeg360(magHeading - declinationDeg)
	return magHeading, trueHeading
}

// pitchRollFromAcc computes roll/pitch from the corrected, ship-frame acc
// vector per spec.md §4.3 "Pitch/Roll".
func pitchRollFromAcc(correctedAcc Vec3) (roll, pitch float64) {
	xy := Vec3{X: correctedAcc.X, Y: correctedAcc.Y}.Unit()
	roll = -RadToDeg(math.Asin(clamp(xy.X, -1, 1)))
	yz := Vec3{Y: correctedAcc.Y, Z: correctedAcc.Z}.Unit()
	pitch = -RadToDeg(math.Asin(clamp(yz.Z, -1, 1)))
	return roll, pitch
}

// turnRateFilter is a first-order low-pass on the wrap-corrected
// first-difference of mag_heading, time constant ~0.5s (spec.md §4.3
// "Turn rate").
type turnRateFilter struct {
	prevHeading float64
	haveHeading bool
	rate        float64
}

const turnRateTau = 0.5

func (t *turnRateFilter) Update(headingDeg, dt float64) float64 {
	if !t.haveHeading {
		t.prevHeading = headingDeg
		t.haveHeading = true
		return 0
	}
	diff := WrapDeg180(headingDeg - t.prevHeading)
	t.prevHeading = headingDeg
	instant := diff / dt
	alpha := dt / (turnRateTau + dt)
	t.rate += alpha * (instant - t.rate)
	return t.rate
}
