// attitude_estimator.go - the attitude estimator stage (spec.md §4.3).
//
// Merges priority-ranked streams from up to 8 IMU producers at a fixed
// 100Hz grid, runs the complementary filter (attitude_filter.go) and
// publishes ship_to_world + heading/pitch/roll/turn-rate.

package main

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	attitudeDt         = 0.01 // 10ms, 100Hz, spec.md §4.3
	attitudePublishWin = 0.07 // W, the 70ms delay window
	attitudeOfflineAge = 0.30 // "timeout T-300ms", spec.md §4.3
	maxIMUProducers    = 8
)

// attitudeProducerBinding is one wired IMU producer plus its per-modality
// priorities (spec.md §9 "Variable-priority merge" — a plain tuple,
// not a hard-coded tier table).
type attitudeProducerBinding struct {
	name   string
	cursor *Cursor[IMUSample]
	gyrPri, accPri, magPri Priority

	haveAcc bool
	lastAcc Vec3
	lastAccTs float64

	haveMag bool
	lastMag Vec3
	lastMagTs float64

	gyrPending []gyrContribution
}

// gyrContribution is one producer sample's accumulated-rotation record
// held in the resampling stream (spec.md §4.3 "Per-modality streams")
// until the tick it belongs to has actually published. Keeping it here
// rather than in a per-tick accumulator means a failed publish attempt
// retries against the same data, and a sample stamped ahead of the
// current tick is carried to the tick it falls in instead of being
// discarded.
type gyrContribution struct {
	ts    float64
	v     Vec3
	fresh bool
}

// AttitudeEstimatorConfig bundles the wired producers and tunables.
type AttitudeEstimatorConfig struct {
	Producers       []*IMUReceiver
	Priorities      map[string]attitudeModalityPriority // by producer name
	Declination     *Declination
	MagErrorDivisor float64

	// WiringPath is the YAML wiring document this config was loaded
	// from (SPEC_FULL.md §10.3); ReloadConfig re-reads attitude.mag_error_divisor
	// from it. Empty disables reload (e.g. when driven directly in a test).
	WiringPath string

	// Drops, when non-nil, receives this stage's per-producer cursor
	// loss counters for the status endpoint (SPEC_FULL.md §12.2).
	Drops *DropRegistry
}

// attitudeModalityPriority is the YAML-facing form of the
// (producer, modality, priority) tuple from spec.md §9.
type attitudeModalityPriority struct {
	Gyr, Acc, Mag Priority
}

// AttitudeEstimator is the ship-wide attitude stage. Exactly one instance
// runs per graph.
type AttitudeEstimator struct {
	cfg AttitudeEstimatorConfig
	log *zap.SugaredLogger
	tb  *TimeBase

	Queue *ProducerQueue[AttitudeRecord]

	bindings []*attitudeProducerBinding
	filter   *complementaryFilter
	turnRate turnRateFilter

	nextT float64
	done  atomic.Bool
}

// NewAttitudeEstimator builds the stage. Queue capacity 2048 at 100Hz
// gives ~20s of backlog for slow consumers (the interpolator scans back
// at most N/2, spec.md §4.4).
func NewAttitudeEstimator(cfg AttitudeEstimatorConfig, tb *TimeBase, log *zap.SugaredLogger) *AttitudeEstimator {
	return &AttitudeEstimator{
		cfg:    cfg,
		log:    log,
		tb:     tb,
		Queue:  NewProducerQueue[AttitudeRecord](2048, 1),
		filter: newComplementaryFilter(cfg.MagErrorDivisor),
	}
}

func (a *AttitudeEstimator) Name() string { return "attitude" }

// PreRun validates that at least one P1 producer exists per modality
// (spec.md §4.3 "At least one P1 producer per modality must exist or the
// stage exits fatally at pre-run") and builds the per-producer bindings.
func (a *AttitudeEstimator) PreRun(ctx context.Context) error {
	if len(a.cfg.Producers) == 0 || len(a.cfg.Producers) > maxIMUProducers {
		return errConfig("attitude: wired producer count %d out of range [1,%d]", len(a.cfg.Producers), maxIMUProducers)
	}

	var haveP1Gyr, haveP1Acc, haveP1Mag bool
	for _, p := range a.cfg.Producers {
		pri, ok := a.cfg.Priorities[p.Name()]
		if !ok {
			return errConfig("attitude: no priority wiring for producer %s", p.Name())
		}
		if pri.Gyr == PriorityP1 {
			haveP1Gyr = true
		}
		if pri.Acc == PriorityP1 {
			haveP1Acc = true
		}
		if pri.Mag == PriorityP1 {
			haveP1Mag = true
		}
		cursor := NewCursor(p.Queue)
		if a.cfg.Drops != nil {
			a.cfg.Drops.Register(a.Name(), p.Name(), cursor)
		}
		a.bindings = append(a.bindings, &attitudeProducerBinding{
			name:   p.Name(),
			cursor: cursor,
			gyrPri: pri.Gyr, accPri: pri.Acc, magPri: pri.Mag,
		})
	}
	if !haveP1Gyr || !haveP1Acc || !haveP1Mag {
		return errConfig("attitude: missing a P1 producer for at least one modality (gyr=%v acc=%v mag=%v)", haveP1Gyr, haveP1Acc, haveP1Mag)
	}

	a.nextT = AlignDown(a.tb.Now(), attitudeDt) + attitudeDt
	return nil
}

func (a *AttitudeEstimator) PostRun(ctx context.Context) error {
	a.Queue.Close()
	return nil
}

func (a *AttitudeEstimator) Abort() { a.done.Store(true) }

// ReloadConfig implements ReloadConfigurer (spec.md §4.1, §5): it
// re-reads the wiring document's attitude.mag_error_divisor tunable and
// applies it to the running filter. Called only from this stage's own
// Run goroutine, immediately after a wait() returns, never concurrently
// with Update (spec.md §5 "no other thread touches its config").
func (a *AttitudeEstimator) ReloadConfig() {
	if a.cfg.WiringPath == "" {
		return
	}
	doc, err := LoadWiringDocument(a.cfg.WiringPath)
	if err != nil {
		a.log.Warnw("attitude: config reload failed, keeping prior tunables", "error", err)
		return
	}
	a.filter.SetMagErrorDivisor(doc.Attitude.MagErrorDivisor)
	a.log.Infow("attitude: config reloaded", "mag_error_divisor", doc.Attitude.MagErrorDivisor)
}

func (a *AttitudeEstimator) Run(ctx context.Context) error {
	for !a.done.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		now := a.tb.Now()
		T := a.nextT

		if now < T {
			sleepUntil(ctx, T-now)
			// spec.md §4.1, §5: after this stage's wait()-equivalent sleep
			// returns, pick up a pending reload request.
			MaybeReload(ctx)
			continue
		}

		force := now > T+attitudePublishWin
		record, ok := a.publishTick(T, force)
		if !ok {
			// normal window, missing a required P1 modality: retry shortly.
			sleepUntil(ctx, 0.002)
			continue
		}
		a.Queue.Publish(record, T)
		a.retireGyrPending(T)
		a.nextT = T + attitudeDt
	}
	return nil
}

func sleepUntil(ctx context.Context, d float64) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(time.Duration(d * float64(time.Second)))
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// publishTick computes one attitude publication. ok is false only in the
// normal (non-forced) window when a required P1 modality has no valid
// contribution anywhere — the caller should wait and retry without
// advancing T (spec.md §4.3 "Output loop").
func (a *AttitudeEstimator) publishTick(T float64, force bool) (AttitudeRecord, bool) {
	a.drainProducers()

	accVal, accValid, accP1Missing := a.mergeModality(T, func(b *attitudeProducerBinding) (Vec3, bool, Priority) {
		return b.lastAcc, b.haveAcc && T-b.lastAccTs <= attitudeOfflineAge, b.accPri
	})
	magVal, magValid, magP1Missing := a.mergeModality(T, func(b *attitudeProducerBinding) (Vec3, bool, Priority) {
		return b.lastMag, b.haveMag && T-b.lastMagTs <= attitudeOfflineAge, b.magPri
	})
	gyrVal, gyrValid, gyrP1Missing := a.mergeModality(T, func(b *attitudeProducerBinding) (Vec3, bool, Priority) {
		var sum Vec3
		fresh := false
		for _, c := range b.gyrPending {
			if c.ts <= T {
				sum = sum.Add(c.v)
				if c.fresh {
					fresh = true
				}
			}
		}
		return sum, fresh, b.gyrPri
	})

	if !force && (accP1Missing || magP1Missing || gyrP1Missing) {
		return AttitudeRecord{}, false
	}

	if !gyrValid {
		a.filter.ResetBootstrap()
	}

	correctedAcc, correctedMag, biasErr := a.filter.Update(attitudeDt, gyrVal, accVal, magVal, accValid, magValid)
	a.filter.TickBootstrap(attitudeDt)

	m := buildShipToWorld(correctedAcc, correctedMag)
	magHeading, trueHeading := headingsFromMatrix(m, a.cfg.Declination.Get())
	roll, pitch := pitchRollFromAcc(correctedAcc)
	rate := a.turnRate.Update(magHeading, attitudeDt)

	return AttitudeRecord{
		ShipToWorld:          m,
		Acc:                  correctedAcc,
		Mag:                  correctedMag,
		Gyr:                  gyrVal,
		AccLen:               accVal.Len(),
		MagLen:               magVal.Len(),
		TrueHeading:          trueHeading,
		MagHeadingReference:  magHeading,
		Pitch:                pitch,
		Roll:                 roll,
		TurnRate:             rate,
		BiasErrorDeg:         biasErr,
		RunningBlind:         !gyrValid || !accValid || !magValid,
	}, true
}

// drainProducers reads every available record from each bound cursor,
// updating the simple-stream (ACC/MAG) state and appending to the
// resampling-stream (GYR) pending buffer ahead of mergeModality.
func (a *AttitudeEstimator) drainProducers() {
	for _, b := range a.bindings {
		for b.cursor.HasData() {
			sample, ts, ok := b.cursor.Consume()
			if !ok {
				break
			}
			if sample.State&StateAccValid != 0 {
				b.lastAcc = sample.Acc
				b.lastAccTs = ts
				b.haveAcc = true
			}
			if sample.State&StateMagValid != 0 {
				b.lastMag = sample.Mag
				b.lastMagTs = ts
				b.haveMag = true
			}
			b.gyrPending = append(b.gyrPending, gyrContribution{
				ts:    ts,
				v:     sample.Gyr,
				fresh: sample.State&StateGyrValid != 0,
			})
		}
	}
}

// retireGyrPending drops every pending GYR contribution at or before the
// tick that just published; later contributions stay queued for the tick
// they fall in.
func (a *AttitudeEstimator) retireGyrPending(T float64) {
	for _, b := range a.bindings {
		kept := b.gyrPending[:0]
		for _, c := range b.gyrPending {
			if c.ts > T {
				kept = append(kept, c)
			}
		}
		b.gyrPending = kept
	}
}

// mergeModality applies spec.md §9's priority merge rule: P1 always
// participates (equal-weight averaged across multiple P1 sources); P2 is
// blended in at weight 0.5 when P1 is present; P3 substitutes only when
// no P1 is present. p1Missing reports whether this modality is wired with
// at least one P1 producer but none currently has valid data.
func (a *AttitudeEstimator) mergeModality(T float64, get func(*attitudeProducerBinding) (Vec3, bool, Priority)) (value Vec3, valid bool, p1Missing bool) {
	var p1Sum Vec3
	var p1Count int
	var p2Sum Vec3
	var p2Count int
	var p3Sum Vec3
	var p3Count int
	var haveP1Producer bool

	for _, b := range a.bindings {
		v, ok, pri := get(b)
		switch pri {
		case PriorityP1:
			haveP1Producer = true
			if ok {
				p1Sum = p1Sum.Add(v)
				p1Count++
			}
		case PriorityP2:
			if ok {
				p2Sum = p2Sum.Add(v)
				p2Count++
			}
		case PriorityP3:
			if ok {
				p3Sum = p3Sum.Add(v)
				p3Count++
			}
		}
	}

	if p1Count > 0 {
		p1Avg := p1Sum.Scale(1 / float64(p1Count))
		if p2Count > 0 {
			p2Avg := p2Sum.Scale(1 / float64(p2Count))
			return p1Avg.Scale(0.5).Add(p2Avg.Scale(0.5)), true, false
		}
		return p1Avg, true, false
	}

	p1Missing = haveP1Producer
	if p3Count > 0 {
		return p3Sum.Scale(1 / float64(p3Count)), true, p1Missing
	}
	return Vec3{}, false, p1Missing
}
