// wiring.go - turns a parsed WiringDocument into a constructed stage
// graph (spec.md §4.1 "Addition of producers/consumers").
//
// This is the add_producer/add_consumer layer spec.md describes: each
// stage constructor below only accepts the producer types it is
// documented to accept, and an incompatible or missing wiring is a
// configuration error, fatal at startup (spec.md §7).

package main

import "sync"

// dropSource is any consumer cursor that can report its running loss
// counter; satisfied by Cursor[T].DroppedEstimate.
type dropSource interface {
	DroppedEstimate() uint64
}

// DropRegistry collects per-(consumer, producer) cursor loss counters
// (SPEC_FULL.md §12.2). Stages register their cursors as they build
// them at pre-run; the status endpoint snapshots at any time, so both
// sides go through the registry's own mutex.
type DropRegistry struct {
	mu      sync.Mutex
	entries []dropEntry
}

type dropEntry struct {
	consumer, producer string
	src                dropSource
}

// Register adds one cursor's counter under its (consumer, producer)
// edge name. Safe to call concurrently with Snapshot.
func (r *DropRegistry) Register(consumer, producer string, src dropSource) {
	r.mu.Lock()
	r.entries = append(r.entries, dropEntry{consumer: consumer, producer: producer, src: src})
	r.mu.Unlock()
}

// Snapshot reads every registered counter.
func (r *DropRegistry) Snapshot() []DropStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DropStatus, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, DropStatus{Consumer: e.consumer, Producer: e.producer, Dropped: e.src.DroppedEstimate()})
	}
	return out
}

// graphDiagnostics backs both the startup table (SPEC_FULL.md §10.5)
// and the status HTTP endpoint (SPEC_FULL.md §11).
type graphDiagnostics struct {
	rows          []diagRow
	queues        []queueRef
	attitudeQueue *ProducerQueue[AttitudeRecord]
	drops         *DropRegistry
}

type diagRow struct {
	name     string
	kind     string
	capacity int
}

type queueRef struct {
	name string
	q    interface {
		Capacity() int
		Produced() uint64
	}
}

func (d *graphDiagnostics) queueStatuses() []QueueStatus {
	out := make([]QueueStatus, 0, len(d.queues))
	for _, qr := range d.queues {
		out = append(out, QueueStatus{Name: qr.name, Capacity: qr.q.Capacity(), Produced: qr.q.Produced()})
	}
	return out
}

func (d *graphDiagnostics) stageNames() []string {
	out := make([]string, 0, len(d.rows))
	for _, r := range d.rows {
		out = append(out, r.name)
	}
	return out
}

// attitudeSnapshot reads the most recently published attitude record
// without disturbing any consumer cursor, for the read-only status
// endpoint (SPEC_FULL.md §11).
func (d *graphDiagnostics) attitudeSnapshot() AttitudeSnapshot {
	if d.attitudeQueue == nil {
		return AttitudeSnapshot{}
	}
	p := d.attitudeQueue.Produced()
	if p == 0 {
		return AttitudeSnapshot{}
	}
	rec, _, _, _ := d.attitudeQueue.At(p - 1)
	return AttitudeSnapshot{
		TrueHeading:  rec.TrueHeading,
		Pitch:        rec.Pitch,
		Roll:         rec.Roll,
		TurnRate:     rec.TurnRate,
		RunningBlind: rec.RunningBlind,
		Have:         true,
	}
}

// buildGraph constructs every stage named in doc and wires their
// producer/consumer edges. Returns the stage list in an order safe to
// pass to NewScheduler (order does not matter for correctness; the
// three-phase barrier handles ordering).
func buildGraph(doc *WiringDocument, tb *TimeBase, decl *Declination, session *LogSession, configPath string) ([]Stage, *graphDiagnostics, error) {
	diag := &graphDiagnostics{drops: &DropRegistry{}}
	var stages []Stage

	imuReceivers := make([]*IMUReceiver, 0, len(doc.IMUs))
	priorities := make(map[string]attitudeModalityPriority, len(doc.IMUs))
	for _, w := range doc.IMUs {
		log, err := session.StageLogger(w.Name)
		if err != nil {
			return nil, nil, err
		}
		cfg := IMUReceiverConfig{
			Name:    w.Name,
			Address: w.Address,
			Rotation: IMURotation{
				Gyr: rotMatFromWiring(w.RotGyr),
				Acc: rotMatFromWiring(w.RotAcc),
				Mag: rotMatFromWiring(w.RotMag),
			},
			MagBiasX:    w.MagBiasX,
			MagBiasY:    w.MagBiasY,
			PriorityGyr: Priority(w.PriorityGyr),
			PriorityAcc: Priority(w.PriorityAcc),
			PriorityMag: Priority(w.PriorityMag),
		}
		r := NewIMUReceiver(cfg, tb, log)
		imuReceivers = append(imuReceivers, r)
		priorities[w.Name] = attitudeModalityPriority{Gyr: cfg.PriorityGyr, Acc: cfg.PriorityAcc, Mag: cfg.PriorityMag}
		stages = append(stages, r)
		diag.rows = append(diag.rows, diagRow{name: r.Name(), kind: "imu_receiver", capacity: r.Queue.Capacity()})
		diag.queues = append(diag.queues, queueRef{name: r.Name(), q: r.Queue})
	}

	attitudeLog, err := session.StageLogger("attitude")
	if err != nil {
		return nil, nil, err
	}
	attitude := NewAttitudeEstimator(AttitudeEstimatorConfig{
		Producers:       imuReceivers,
		Priorities:      priorities,
		Declination:     decl,
		MagErrorDivisor: doc.Attitude.MagErrorDivisor,
		WiringPath:      configPath,
		Drops:           diag.drops,
	}, tb, attitudeLog)
	stages = append(stages, attitude)
	diag.rows = append(diag.rows, diagRow{name: attitude.Name(), kind: "attitude_estimator", capacity: attitude.Queue.Capacity()})
	diag.queues = append(diag.queues, queueRef{name: attitude.Name(), q: attitude.Queue})
	diag.attitudeQueue = attitude.Queue

	for _, w := range doc.GPS {
		log, err := session.StageLogger(w.Name)
		if err != nil {
			return nil, nil, err
		}
		r := NewGPSReceiver(GPSReceiverConfig{Name: w.Name, Address: w.Address}, log)
		stages = append(stages, r)
		diag.rows = append(diag.rows, diagRow{name: r.Name(), kind: "gps_receiver", capacity: r.Queue.Capacity()})
		diag.queues = append(diag.queues, queueRef{name: r.Name(), q: r.Queue})
	}

	interp := NewAttitudeInterpolator(attitude.Queue)

	var opticalUps []*OpticalUp
	for _, w := range doc.Cameras {
		camLog, err := session.StageLogger(w.Name)
		if err != nil {
			return nil, nil, err
		}
		cam := NewCameraReceiver(CameraReceiverConfig{
			Name:       w.Name,
			ListenAddr: w.ListenAddr,
			CameraNum:  uint8(w.CameraNum),
			ExpectRows: uint16(w.Rows),
			ExpectCols: uint16(w.Cols),
		}, camLog)
		stages = append(stages, cam)
		diag.rows = append(diag.rows, diagRow{name: cam.Name(), kind: "camera_receiver", capacity: cam.Queue.Capacity()})
		diag.queues = append(diag.queues, queueRef{name: cam.Name(), q: cam.Queue})

		upLog, err := session.StageLogger("optical_up_" + w.Name)
		if err != nil {
			return nil, nil, err
		}
		up := NewOpticalUp(OpticalUpConfig{Camera: cam, Interpolator: interp, Drops: diag.drops}, upLog)
		opticalUps = append(opticalUps, up)
		stages = append(stages, up)
		diag.rows = append(diag.rows, diagRow{name: up.Name(), kind: "optical_up", capacity: up.Queue.Capacity()})
		diag.queues = append(diag.queues, queueRef{name: up.Name(), q: up.Queue})
	}

	if len(opticalUps) > 0 {
		fsLog, err := session.StageLogger("frame_sync")
		if err != nil {
			return nil, nil, err
		}
		fs := NewFrameSync(FrameSyncConfig{
			Cameras:          opticalUps,
			FrameIntervalSec: doc.FrameSync.FrameIntervalSec,
			ArenaSize:        doc.FrameSync.ArenaSize,
			Drops:            diag.drops,
		}, fsLog)
		stages = append(stages, fs)
		diag.rows = append(diag.rows, diagRow{name: fs.Name(), kind: "frame_sync", capacity: fs.Queue.Capacity()})
		diag.queues = append(diag.queues, queueRef{name: fs.Name(), q: fs.Queue})
	}

	return stages, diag, nil
}
