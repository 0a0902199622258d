package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func matWithX(x float64) Mat3 {
	return Mat3{Rows: [3]Vec3{{x, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

func TestAttitudeInterpolatorPendingWhenEmpty(t *testing.T) {
	q := NewProducerQueue[AttitudeRecord](8, 1)
	ai := NewAttitudeInterpolator(q)
	status, _, _ := ai.GetAttitude(1.0, 0)
	require.Equal(t, InterpPending, status)
}

func TestAttitudeInterpolatorFoundBetweenTwoRecords(t *testing.T) {
	q := NewProducerQueue[AttitudeRecord](8, 1)
	q.Publish(AttitudeRecord{ShipToWorld: matWithX(0)}, 0.0)
	q.Publish(AttitudeRecord{ShipToWorld: matWithX(10)}, 1.0)

	ai := NewAttitudeInterpolator(q)
	status, m, idx := ai.GetAttitude(0.5, 0)
	require.Equal(t, InterpFound, status)
	require.InDelta(t, 5.0, m.Rows[0].X, 1e-9)
	require.Equal(t, uint64(1), idx)
}

func TestAttitudeInterpolatorExactTimestamp(t *testing.T) {
	q := NewProducerQueue[AttitudeRecord](8, 1)
	q.Publish(AttitudeRecord{ShipToWorld: matWithX(0)}, 0.0)
	q.Publish(AttitudeRecord{ShipToWorld: matWithX(10)}, 1.0)

	ai := NewAttitudeInterpolator(q)
	status, m, _ := ai.GetAttitude(0.0, 0)
	require.Equal(t, InterpFound, status)
	require.InDelta(t, 0.0, m.Rows[0].X, 1e-9)
}

func TestAttitudeInterpolatorPendingPastNewest(t *testing.T) {
	q := NewProducerQueue[AttitudeRecord](8, 1)
	q.Publish(AttitudeRecord{ShipToWorld: matWithX(0)}, 0.0)
	q.Publish(AttitudeRecord{ShipToWorld: matWithX(10)}, 1.0)

	ai := NewAttitudeInterpolator(q)
	status, _, idx := ai.GetAttitude(5.0, 0)
	require.Equal(t, InterpPending, status)

	// A subsequent publish should let the same bookmark resolve forward.
	q.Publish(AttitudeRecord{ShipToWorld: matWithX(20)}, 2.0)
	status, _, _ = ai.GetAttitude(1.5, idx)
	require.Equal(t, InterpFound, status)
}

func TestAttitudeInterpolatorMissingBeforeOldestRecord(t *testing.T) {
	// spec.md §8 concrete scenario 6: stored ts=[10.00, 10.01, 10.02];
	// a query strictly before the oldest-ever record, with prevIdx still
	// pointing at slot 0 (a fresh interpolator's first call), must return
	// MISSING rather than FOUND with the oldest matrix.
	q := NewProducerQueue[AttitudeRecord](8, 1)
	q.Publish(AttitudeRecord{ShipToWorld: matWithX(0)}, 10.00)
	q.Publish(AttitudeRecord{ShipToWorld: matWithX(1)}, 10.01)
	q.Publish(AttitudeRecord{ShipToWorld: matWithX(2)}, 10.02)

	ai := NewAttitudeInterpolator(q)
	status, _, _ := ai.GetAttitude(9.999, 0)
	require.Equal(t, InterpMissing, status)

	// The exact oldest timestamp is still a valid FOUND, not MISSING.
	status, m, _ := ai.GetAttitude(10.00, 0)
	require.Equal(t, InterpFound, status)
	require.InDelta(t, 0.0, m.Rows[0].X, 1e-9)

	// And strictly past the newest record is PENDING, not MISSING.
	status, _, _ = ai.GetAttitude(10.025, 0)
	require.Equal(t, InterpPending, status)
}

func TestAttitudeInterpolatorStaleBookmarkReportsPurgedHistory(t *testing.T) {
	q := NewProducerQueue[AttitudeRecord](4, 1)
	ai := NewAttitudeInterpolator(q)
	for i := 0; i < 4; i++ {
		q.Publish(AttitudeRecord{ShipToWorld: matWithX(float64(i))}, float64(i))
	}
	_, _, idx := ai.GetAttitude(0.0, 0)
	for i := 4; i < 12; i++ {
		q.Publish(AttitudeRecord{ShipToWorld: matWithX(float64(i))}, float64(i))
	}
	// The bookmark is long overwritten; a query for ancient history
	// reports the purge as MISSING rather than fabricating a result from
	// the oldest surviving record.
	status, _, idx2 := ai.GetAttitude(0.0, idx)
	require.Equal(t, InterpMissing, status)

	// A query inside the still-live window resolves normally from the
	// same bookmark.
	status, _, _ = ai.GetAttitude(10.5, idx2)
	require.Equal(t, InterpFound, status)
}
