// imu_receiver.go - IMU receiver stage (spec.md §4.2).
//
// Decodes a networked IMU sample stream, rotates device-frame vectors into
// ship frame, and upsamples onto a fixed 10ms grid with gyro integration
// and ACC/MAG value reuse. Connection handling follows the teacher's
// CoprocWorker pattern: one goroutine, an atomic done flag, a stop hook that
// unblocks a blocking read by closing the socket (spec.md §4.1 "abort").

package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	imuGridStep   = 0.01 // 10ms, spec.md §4.2
	imuStaleWindow = 0.15 // 150ms ACC/MAG staleness, spec.md §3
)

// IMUModalityState is the per-modality valid bitfield on an IMUSample.
type IMUModalityState uint8

const (
	StateGyrValid IMUModalityState = 1 << iota
	StateAccValid
	StateMagValid
)

// IMUSample is the per-10ms-slot record published by an IMU receiver
// (spec.md §3).
type IMUSample struct {
	Gyr, Acc, Mag Vec3
	State         IMUModalityState
}

// Priority is a producer-modality priority tier (spec.md §4.3, §9
// "Variable-priority merge").
type Priority string

const (
	PriorityP1   Priority = "P1"
	PriorityP2   Priority = "P2"
	PriorityP3   Priority = "P3"
	PriorityNull Priority = "NULL"
)

// IMURotation bundles the three device->ship rotation matrices from
// spec.md §4.2 "Config".
type IMURotation struct {
	Gyr, Acc, Mag Mat3
}

// IMUReceiverConfig is the per-device configuration block (spec.md §4.2).
type IMUReceiverConfig struct {
	Name     string
	Address  string
	Rotation IMURotation
	MagBiasX, MagBiasY float64
	PriorityGyr, PriorityAcc, PriorityMag Priority
}

// IMUReceiver is one physical IMU device's stage.
type IMUReceiver struct {
	cfg IMUReceiverConfig
	log *zap.SugaredLogger
	tb  *TimeBase

	Queue *ProducerQueue[IMUSample]

	connMu sync.Mutex
	conn   net.Conn

	initialized  bool
	prevPublishT float64
	prevGyrDataT float64
	gyrAccum     Vec3
	accLatest    Vec3
	magLatest    Vec3
	accTimer     float64
	magTimer     float64

	done atomic.Bool
}

// NewIMUReceiver builds a receiver stage with a 1024-slot queue
// (spec.md §3 "power-of-two advisable capacity"), notifying every record.
func NewIMUReceiver(cfg IMUReceiverConfig, tb *TimeBase, log *zap.SugaredLogger) *IMUReceiver {
	return &IMUReceiver{
		cfg:   cfg,
		log:   log,
		tb:    tb,
		Queue: NewProducerQueue[IMUSample](1024, 1),
	}
}

func (r *IMUReceiver) Name() string { return r.cfg.Name }

func (r *IMUReceiver) PreRun(ctx context.Context) error {
	if r.cfg.Address == "" {
		return errConfig("imu_receiver %s: empty address", r.cfg.Name)
	}
	return nil
}

func (r *IMUReceiver) PostRun(ctx context.Context) error {
	r.Queue.Close()
	return nil
}

// Abort unblocks a blocking read by closing the current connection
// (spec.md §4.1 "Shutdown").
func (r *IMUReceiver) Abort() {
	r.done.Store(true)
	r.connMu.Lock()
	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.connMu.Unlock()
}

func (r *IMUReceiver) Run(ctx context.Context) error {
	for !r.done.Load() {
		conn, err := dialWithBackoff(ctx, r.cfg.Address, r.log)
		if err != nil {
			return nil // ctx cancelled during dial
		}
		r.connMu.Lock()
		r.conn = conn
		r.connMu.Unlock()

		r.readLoop(ctx, conn)

		r.connMu.Lock()
		r.conn = nil
		r.connMu.Unlock()
		_ = conn.Close()

		// upsample timers reset on the next fresh sample, spec.md §4.2 "Failure"
		r.initialized = false
	}
	return nil
}

func (r *IMUReceiver) readLoop(ctx context.Context, conn net.Conn) {
	for !r.done.Load() {
		frame, err := readIMUFrame(conn)
		// The blocking read above is this stage's wait()-equivalent
		// suspension point; pick up a pending reload request right after
		// it returns, before processing the next frame (spec.md §4.1, §5).
		MaybeReload(ctx)
		if err != nil {
			if err != io.EOF {
				r.log.Warnw("imu read error, reconnecting", "error", err)
			}
			return
		}
		if frame.DeviceLog != "" {
			r.log.Debugw("device log", "text", frame.DeviceLog)
		}
		r.onFrame(frame)
	}
}

// onFrame implements the upsample-publication algorithm of spec.md §4.2.
func (r *IMUReceiver) onFrame(frame *imuWireFrame) {
	gyrShip := r.cfg.Rotation.Gyr.Apply(frame.Gyr)
	accShip := r.cfg.Rotation.Acc.Apply(frame.Acc)
	magShip := r.cfg.Rotation.Mag.Apply(frame.Mag).Add(Vec3{X: r.cfg.MagBiasX, Y: r.cfg.MagBiasY})

	tSample := frame.AcqTime
	noGyro := r.cfg.PriorityGyr == PriorityNull

	if !r.initialized {
		r.prevPublishT = AlignDown(tSample, imuGridStep)
		r.prevGyrDataT = tSample
		r.initialized = true
	}

	if frame.AccPresent {
		r.accLatest = accShip
		r.accTimer = imuStaleWindow
	}
	if frame.MagPresent {
		r.magLatest = magShip
		r.magTimer = imuStaleWindow
	}

	if tSample < r.prevGyrDataT {
		r.log.Errorw("imu: out-of-order sample, resetting gyro integration clock",
			"t_sample", tSample, "prev_gyr_data_t", r.prevGyrDataT)
		r.prevGyrDataT = tSample
	}

	for {
		tNext := r.prevPublishT + imuGridStep
		if tNext > tSample {
			break
		}
		sample := IMUSample{}

		if r.accTimer > 0 {
			sample.Acc = r.accLatest
			sample.State |= StateAccValid
			r.accTimer -= imuGridStep
		}
		if r.magTimer > 0 {
			sample.Mag = r.magLatest
			sample.State |= StateMagValid
			r.magTimer -= imuGridStep
		}

		if !noGyro {
			dt := tNext - r.prevGyrDataT
			if dt > 0 {
				r.gyrAccum = r.gyrAccum.Add(gyrShip.Scale(dt))
			}
			sample.Gyr = r.gyrAccum
			if frame.GyrPresent {
				sample.State |= StateGyrValid
			}
			r.gyrAccum = Vec3{}
			r.prevGyrDataT = tNext
		}

		r.Queue.Publish(sample, tNext)
		r.prevPublishT = tNext
	}

	if !noGyro {
		dt := tSample - r.prevGyrDataT
		if dt > 0 {
			r.gyrAccum = r.gyrAccum.Add(gyrShip.Scale(dt))
			r.prevGyrDataT = tSample
		}
	}
}

// errConfig wraps a fatal configuration error (spec.md §7).
func errConfig(format string, args ...any) error {
	return &configError{msg: fmt.Sprintf(format, args...)}
}

type configError struct{ msg string }

func (e *configError) Error() string { return e.msg }
