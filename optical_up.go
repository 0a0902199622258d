// optical_up.go - optical-up stage (spec.md §4.6/2.9 "Optical-up").
//
// For each camera frame, queries the attitude interpolator at
// t_frame-30ms (hardware latency compensation) and reprojects the frame
// onto a camera-indexed image pyramid in ship-stabilized coordinates.
// Per spec.md §4.6 this stage is specified at the interface level: the
// full spherical reprojection math is out of scope, but the
// attitude-query contract (PENDING backs off, MISSING drops the frame)
// and the pyramid shape are not. Pyramid levels are built with
// golang.org/x/image/draw's approximate bilinear scaler, grounded on
// the teacher's own use of x/image for offline tooling (cmd/font2rgba).

package main

import (
	"context"
	"image"
	"image/draw"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
)

// NumPyramidLevels is the optical-up pyramid depth (spec.md glossary
// "Pyramid": full, half, ...).
const NumPyramidLevels = 3

// latencyCompensation is the fixed hardware-latency offset applied to
// every attitude query (spec.md §4.6).
const latencyCompensation = 0.030

// OpticalUpRecord is the per-frame record optical-up publishes:
// ship-stabilized V/Y image pyramids plus the attitude used to build
// them.
type OpticalUpRecord struct {
	CameraNum    uint8
	ShipToWorld  Mat3
	VPyramid     [NumPyramidLevels]*image.Gray
	YPyramid     [NumPyramidLevels]*image.Gray
}

// OpticalUpConfig wires the one camera producer and the shared attitude
// interpolator (spec.md §4.1 add_producer: "only one attitude
// subscription allowed", grounded on optical_up.c's add_producer).
type OpticalUpConfig struct {
	Camera      *CameraReceiver
	Interpolator *AttitudeInterpolator

	// Drops, when non-nil, receives this stage's camera-cursor loss
	// counter for the status endpoint (SPEC_FULL.md §12.2).
	Drops *DropRegistry
}

// OpticalUp is one camera's reprojection stage.
type OpticalUp struct {
	cfg OpticalUpConfig
	log *zap.SugaredLogger

	Queue *ProducerQueue[OpticalUpRecord]

	cursor  *Cursor[CameraFrame]
	prevIdx uint64

	done atomic.Bool
}

// NewOpticalUp builds the stage with a 128-slot queue, matching the
// teacher's generous margin for a downstream consumer (frame-sync) that
// reads across multiple cameras at slightly different rates.
func NewOpticalUp(cfg OpticalUpConfig, log *zap.SugaredLogger) *OpticalUp {
	return &OpticalUp{cfg: cfg, log: log, Queue: NewProducerQueue[OpticalUpRecord](128, 1)}
}

func (o *OpticalUp) Name() string { return "optical_up_" + o.cfg.Camera.Name() }

// CameraNum exposes the camera number for frame-sync wiring.
func (o *OpticalUp) CameraNum() uint8 { return o.cfg.Camera.CameraNum() }

func (o *OpticalUp) PreRun(ctx context.Context) error {
	o.cursor = NewCursor(o.cfg.Camera.Queue)
	if o.cfg.Drops != nil {
		o.cfg.Drops.Register(o.Name(), o.cfg.Camera.Name(), o.cursor)
	}
	return nil
}

func (o *OpticalUp) PostRun(ctx context.Context) error {
	o.Queue.Close()
	return nil
}

// Abort sets the shutdown flag and wakes the camera-queue wait this
// stage may be parked in; the camera's own queue is not Close()d until
// its PostRun, which the scheduler only reaches after this stage's Run
// returns (spec.md §4.1 "Shutdown").
func (o *OpticalUp) Abort() {
	o.done.Store(true)
	o.cfg.Camera.Queue.Wake()
}

func (o *OpticalUp) Run(ctx context.Context) error {
	for !o.done.Load() {
		o.cfg.Camera.Queue.Wait(o.cursor.Consumed(), &o.done)
		// spec.md §4.1, §5: after wait() returns, pick up a pending
		// reload request before draining the newly available frames.
		MaybeReload(ctx)
		if o.done.Load() {
			return nil
		}
		for o.cursor.HasData() {
			frame, ts, ok := o.cursor.Consume()
			if !ok {
				break
			}
			o.processFrame(ctx, frame, ts)
		}
	}
	return nil
}

// processFrame implements spec.md §4.6: query attitude at t_frame-30ms,
// back off on PENDING, drop on MISSING, else reproject and publish.
func (o *OpticalUp) processFrame(ctx context.Context, frame CameraFrame, ts float64) {
	queryT := ts - latencyCompensation
	for {
		status, m, idx := o.cfg.Interpolator.GetAttitude(queryT, o.prevIdx)
		o.prevIdx = idx
		switch status {
		case InterpFound:
			rec := OpticalUpRecord{
				CameraNum:   o.cfg.Camera.CameraNum(),
				ShipToWorld: m,
			}
			buildPyramid(frame, &rec)
			o.Queue.Publish(rec, ts)
			return
		case InterpMissing:
			o.log.Debugw("optical_up: attitude history purged, dropping frame", "t", queryT)
			return
		case InterpPending:
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Millisecond):
			}
			if o.done.Load() {
				return
			}
		}
	}
}

// buildPyramid reprojects the V/Y planes onto NumPyramidLevels
// progressively half-resolution images. The geometric sphere-patch
// reprojection implied by spec.md §2.9 is out of scope at this level
// (§4.6 "interface-level"); here ship-stabilization is represented by
// carrying ShipToWorld alongside a plain multi-resolution downscale, so
// the pyramid shape and cadence downstream consumers see is faithful
// even though the per-pixel warp is not reproduced.
func buildPyramid(frame CameraFrame, out *OpticalUpRecord) {
	v := planeToGray(frame.VChan, int(frame.Cols), int(frame.Rows))
	y := planeToGray(frame.YChan, int(frame.Cols), int(frame.Rows))
	out.VPyramid[0] = v
	out.YPyramid[0] = y
	for lev := 1; lev < NumPyramidLevels; lev++ {
		prevV := out.VPyramid[lev-1]
		prevY := out.YPyramid[lev-1]
		w := prevV.Bounds().Dx() / 2
		h := prevV.Bounds().Dy() / 2
		if w < 1 || h < 1 {
			out.VPyramid[lev] = prevV
			out.YPyramid[lev] = prevY
			continue
		}
		out.VPyramid[lev] = downscale(prevV, w, h)
		out.YPyramid[lev] = downscale(prevY, w, h)
	}
}

func planeToGray(plane []byte, cols, rows int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	copy(img.Pix, plane)
	return img
}

func downscale(src *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
