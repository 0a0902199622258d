// attitude_interpolator.go - the get_attitude(t, prev_idx) contract
// (spec.md §4.4 "Attitude interpolation").
//
// Route-side consumers ask for the ship's attitude at an arbitrary past
// time t; this scans forward from their own last-returned index rather
// than rescanning from the queue's producer cursor each call, so repeated
// queries at increasing t are amortized O(1) instead of O(log N).

package main

// InterpStatus reports the outcome of an AttitudeInterpolator lookup.
type InterpStatus int

const (
	// InterpFound means t falls between two published records and the
	// interpolated matrix is valid.
	InterpFound InterpStatus = iota
	// InterpPending means t is newer than anything published yet; the
	// caller should retry once more data arrives.
	InterpPending
	// InterpMissing means t is older than the oldest record the queue
	// still holds — the requested history has been overwritten.
	InterpMissing
)

// AttitudeInterpolator wraps a ProducerQueue[AttitudeRecord] with the
// scan-and-interpolate logic from spec.md §4.4. It is not safe for
// concurrent use by multiple callers; each consumer owns its own
// instance (mirroring the caller-held prev_idx parameter of get_attitude).
type AttitudeInterpolator struct {
	q *ProducerQueue[AttitudeRecord]
}

// NewAttitudeInterpolator binds an interpolator to the estimator's
// publication queue.
func NewAttitudeInterpolator(q *ProducerQueue[AttitudeRecord]) *AttitudeInterpolator {
	return &AttitudeInterpolator{q: q}
}

// GetAttitude implements spec.md §4.4's get_attitude(t, prev_idx):
// given a query time t and the index returned by the caller's previous
// call (0 on the first call), it returns the interpolation status, the
// blended ship->world matrix (valid only when status is InterpFound),
// and the index to pass as prev_idx on the next call.
//
// Interpolation is a convex blend (Mat3.Lerp, not slerp — spec.md §9
// notes the basis vectors are re-orthonormalized by buildShipToWorld at
// publish time, so a cheap linear blend of two already-orthonormal
// matrices is an acceptable approximation over a single 10ms gap).
func (ai *AttitudeInterpolator) GetAttitude(t float64, prevIdx uint64) (InterpStatus, Mat3, uint64) {
	produced := ai.q.Produced()
	if produced == 0 {
		return InterpPending, Mat3{}, prevIdx
	}

	// spec.md §4.4: scan forward from max(prev_idx, produced-N/2). The
	// bracket's lower partner (idx-1) must itself still be live, so once
	// anything has actually fallen out of the guard band the safe floor
	// is one past the oldest guaranteed slot. A fresh interpolator
	// (prevIdx 0) against a queue that hasn't produced past N/2 yet is
	// left scanning from slot 0 untouched — forcing it forward would
	// skip examining the true oldest record.
	half := uint64(ai.q.Capacity()) / 2
	idx := prevIdx
	if produced > half {
		floor := produced - half + 1
		if idx < floor {
			idx = floor
		}
	}

	for {
		if idx >= produced {
			return InterpPending, Mat3{}, idx - 1
		}
		_, tsNext, _, _ := ai.q.At(idx)
		if tsNext >= t {
			break
		}
		idx++
	}

	if idx == 0 {
		// No earlier record exists to bracket against. An exact match on
		// the very first record ever published is still a valid FOUND
		// (the round-trip property of spec.md §8 applies to every stored
		// timestamp, including the oldest); anything strictly older was
		// never stored or has already been purged (spec.md §8 "t strictly
		// less than every stored sample returns MISSING"; concrete
		// scenario 6 in §8: "Query at t=9.999 with prev_idx pointing at
		// slot 0 returns MISSING").
		record0, ts0, _, _ := ai.q.At(0)
		if t < ts0 {
			return InterpMissing, Mat3{}, 0
		}
		return InterpFound, record0.ShipToWorld, 0
	}

	prevRecord, tsPrev, _, prevStale := ai.q.At(idx - 1)
	nextRecord, tsNext, _, _ := ai.q.At(idx)

	// t < tsPrev means the scan started past the true bracket: the
	// records that would have bracketed t have already been overwritten.
	// Purged history is reported, never fabricated (spec.md §7).
	if prevStale || t < tsPrev {
		return InterpMissing, Mat3{}, idx
	}
	if tsNext-tsPrev <= 0 {
		panic("attitude_interpolator: non-monotonic timestamps in queue")
	}

	w := clamp((t-tsPrev)/(tsNext-tsPrev), 0, 1)
	blended := prevRecord.ShipToWorld.Lerp(nextRecord.ShipToWorld, w)
	return InterpFound, blended, idx
}
