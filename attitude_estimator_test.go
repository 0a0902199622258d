package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func bindingWith(pri Priority, ok bool, v Vec3) *attitudeProducerBinding {
	return &attitudeProducerBinding{accPri: pri, haveAcc: ok, lastAcc: v}
}

func accGetter(b *attitudeProducerBinding) (Vec3, bool, Priority) {
	return b.lastAcc, b.haveAcc, b.accPri
}

func TestMergeModalityP1Only(t *testing.T) {
	a := &AttitudeEstimator{bindings: []*attitudeProducerBinding{
		bindingWith(PriorityP1, true, Vec3{X: 1}),
		bindingWith(PriorityP1, true, Vec3{X: 3}),
	}}
	v, valid, p1Missing := a.mergeModality(0, accGetter)
	require.True(t, valid)
	require.False(t, p1Missing)
	require.InDelta(t, 2.0, v.X, 1e-9)
}

func TestMergeModalityP1MissingFallsBackToP3(t *testing.T) {
	a := &AttitudeEstimator{bindings: []*attitudeProducerBinding{
		bindingWith(PriorityP1, false, Vec3{}),
		bindingWith(PriorityP3, true, Vec3{X: 9}),
	}}
	v, valid, p1Missing := a.mergeModality(0, accGetter)
	require.True(t, valid)
	require.True(t, p1Missing)
	require.InDelta(t, 9.0, v.X, 1e-9)
}

func TestMergeModalityNoProducersInvalid(t *testing.T) {
	a := &AttitudeEstimator{}
	_, valid, p1Missing := a.mergeModality(0, accGetter)
	require.False(t, valid)
	require.False(t, p1Missing)
}

func TestMergeModalityP2BlendsWithP1(t *testing.T) {
	a := &AttitudeEstimator{bindings: []*attitudeProducerBinding{
		bindingWith(PriorityP1, true, Vec3{X: 0}),
		bindingWith(PriorityP2, true, Vec3{X: 10}),
	}}
	v, valid, _ := a.mergeModality(0, accGetter)
	require.True(t, valid)
	require.InDelta(t, 5.0, v.X, 1e-9)
}

func TestGyrContributionsSurviveRetriesAndCarryAcrossTicks(t *testing.T) {
	q := NewProducerQueue[IMUSample](8, 1)
	b := &attitudeProducerBinding{
		cursor: NewCursor(q),
		gyrPri: PriorityP1, accPri: PriorityP1, magPri: PriorityP1,
	}
	a := &AttitudeEstimator{
		bindings: []*attitudeProducerBinding{b},
		filter:   newComplementaryFilter(0),
		cfg:      AttitudeEstimatorConfig{Declination: NewDeclination(0)},
	}

	all := StateGyrValid | StateAccValid | StateMagValid
	q.Publish(IMUSample{Gyr: Vec3{X: 0.5}, Acc: Vec3{Y: 1}, Mag: Vec3{Z: 1}, State: all}, 10.00)
	q.Publish(IMUSample{Gyr: Vec3{X: 0.25}, Acc: Vec3{Y: 1}, Mag: Vec3{Z: 1}, State: all}, 10.01)

	rec, ok := a.publishTick(10.00, false)
	require.True(t, ok)
	require.InDelta(t, 0.5, rec.Gyr.X, 1e-12)

	// A second attempt at the same tick (the retry path when a P1
	// modality was briefly missing) must see the same rotation, not a
	// zeroed accumulator.
	rec, ok = a.publishTick(10.00, false)
	require.True(t, ok)
	require.InDelta(t, 0.5, rec.Gyr.X, 1e-12)
	a.retireGyrPending(10.00)

	// The sample stamped ahead of the first tick surfaces on its own
	// tick instead of vanishing (conservation of integrated rotation).
	rec, ok = a.publishTick(10.01, false)
	require.True(t, ok)
	require.InDelta(t, 0.25, rec.Gyr.X, 1e-12)
	a.retireGyrPending(10.01)
	require.Empty(t, b.gyrPending)
}

func TestIMUToAttitudeToInterpolatorPipeline(t *testing.T) {
	// Wire an IMU receiver's queue straight into an estimator binding,
	// publish two level-vessel ticks, and interpolate between them the
	// way optical-up does.
	r := newTestIMUReceiver()
	cur := NewCursor(r.Queue)

	all := StateGyrValid | StateAccValid | StateMagValid
	r.onFrame(&imuWireFrame{AcqTime: 10.000, Acc: Vec3{Y: 1}, Mag: Vec3{Z: 1}, GyrPresent: true, AccPresent: true, MagPresent: true})
	r.onFrame(&imuWireFrame{AcqTime: 10.025, Acc: Vec3{Y: 1}, Mag: Vec3{Z: 1}, GyrPresent: true, AccPresent: true, MagPresent: true})
	require.Equal(t, uint64(2), r.Queue.Produced())
	rec0, _, _, _ := r.Queue.At(0)
	require.Equal(t, all, rec0.State)

	a := &AttitudeEstimator{
		bindings: []*attitudeProducerBinding{{
			name: "imu0", cursor: cur,
			gyrPri: PriorityP1, accPri: PriorityP1, magPri: PriorityP1,
		}},
		filter: newComplementaryFilter(0),
		cfg:    AttitudeEstimatorConfig{Declination: NewDeclination(0)},
		Queue:  NewProducerQueue[AttitudeRecord](2048, 1),
	}

	for _, tick := range []float64{10.01, 10.02} {
		rec, ok := a.publishTick(tick, false)
		require.True(t, ok)
		require.False(t, rec.RunningBlind)
		a.Queue.Publish(rec, tick)
		a.retireGyrPending(tick)
	}

	ai := NewAttitudeInterpolator(a.Queue)
	status, m, _ := ai.GetAttitude(10.015, 0)
	require.Equal(t, InterpFound, status)
	for i := 0; i < 3; i++ {
		require.InDelta(t, 1.0, m.Rows[i].Len(), 1e-4)
	}
}

func TestAttitudeEstimatorPreRunRequiresP1PerModality(t *testing.T) {
	imu := NewIMUReceiver(IMUReceiverConfig{Name: "imu0", Address: "1.2.3.4:5000"}, NewTimeBase(), noopLogger())
	cfg := AttitudeEstimatorConfig{
		Producers: []*IMUReceiver{imu},
		Priorities: map[string]attitudeModalityPriority{
			"imu0": {Gyr: PriorityP1, Acc: PriorityP1, Mag: PriorityNull},
		},
		Declination: NewDeclination(0),
	}
	est := NewAttitudeEstimator(cfg, NewTimeBase(), noopLogger())
	err := est.PreRun(nil)
	require.Error(t, err)
}

func TestAttitudeEstimatorPreRunAcceptsFullP1Coverage(t *testing.T) {
	imu := NewIMUReceiver(IMUReceiverConfig{Name: "imu0", Address: "1.2.3.4:5000"}, NewTimeBase(), noopLogger())
	cfg := AttitudeEstimatorConfig{
		Producers: []*IMUReceiver{imu},
		Priorities: map[string]attitudeModalityPriority{
			"imu0": {Gyr: PriorityP1, Acc: PriorityP1, Mag: PriorityP1},
		},
		Declination: NewDeclination(0),
	}
	est := NewAttitudeEstimator(cfg, NewTimeBase(), noopLogger())
	require.NoError(t, est.PreRun(nil))
}
