// camera_receiver.go - camera receiver stage (spec.md §4.8/2.8 "Camera
// receiver"): receives compressed per-camera frames over TCP into a
// bounded queue. This is the leaf of the vision path.
//
// Unlike the IMU/GPS receivers, which dial out to a device, the camera
// receiver is the TCP server: the remote camera-acquisition node (out of
// scope, spec.md §1) connects in and performs the handshake described in
// spec.md §6. Grounded on
// _examples/original_source/core/core_modules/vy_receiver/receiver_logic.c's
// wait_next_connection/handshake loop.

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

// CameraFrame is the per-frame record published by a camera receiver.
type CameraFrame struct {
	RequestTime, RecvTime float64
	Rows, Cols            uint16
	VChan, YChan          []byte
}

// CameraReceiverConfig names the camera and the local address it listens
// on for the remote node's connection.
type CameraReceiverConfig struct {
	Name         string
	ListenAddr   string
	CameraNum    uint8
	ExpectRows   uint16
	ExpectCols   uint16
}

// CameraReceiver is one camera's stage.
type CameraReceiver struct {
	cfg CameraReceiverConfig
	log *zap.SugaredLogger

	Queue *ProducerQueue[CameraFrame]

	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn

	done atomic.Bool
}

// NewCameraReceiver builds the stage with a small bounded queue: camera
// frames arrive at the sensor framerate, well below the IMU's, so 64
// slots comfortably covers plausible consumer lag.
func NewCameraReceiver(cfg CameraReceiverConfig, log *zap.SugaredLogger) *CameraReceiver {
	return &CameraReceiver{cfg: cfg, log: log, Queue: NewProducerQueue[CameraFrame](64, 1)}
}

func (c *CameraReceiver) Name() string { return c.cfg.Name }

// CameraNum exposes the wired camera number for optical-up/frame-sync
// add_producer wiring (spec.md §4.1 "Addition of producers/consumers").
func (c *CameraReceiver) CameraNum() uint8 { return c.cfg.CameraNum }

func (c *CameraReceiver) PreRun(ctx context.Context) error {
	if c.cfg.ListenAddr == "" {
		return errConfig("camera_receiver %s: empty listen address", c.cfg.Name)
	}
	if c.cfg.CameraNum >= maxCameras {
		return errConfig("camera_receiver %s: camera_num %d out of bounds (max %d)", c.cfg.Name, c.cfg.CameraNum, maxCameras)
	}
	l, err := net.Listen("tcp", c.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("camera_receiver %s: listen %s: %w", c.cfg.Name, c.cfg.ListenAddr, err)
	}
	c.listener = l
	return nil
}

func (c *CameraReceiver) PostRun(ctx context.Context) error {
	c.Queue.Close()
	if c.listener != nil {
		_ = c.listener.Close()
	}
	return nil
}

// Abort unblocks a pending Accept or a blocking frame read by closing
// the listener and any live connection (spec.md §4.1 "Shutdown").
func (c *CameraReceiver) Abort() {
	c.done.Store(true)
	if c.listener != nil {
		_ = c.listener.Close()
	}
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

func (c *CameraReceiver) Run(ctx context.Context) error {
	for !c.done.Load() {
		conn, err := c.listener.Accept()
		// The blocking Accept above is this stage's wait()-equivalent
		// suspension point (spec.md §4.1, §5).
		MaybeReload(ctx)
		if err != nil {
			if c.done.Load() {
				return nil
			}
			c.log.Warnw("camera accept error, retrying", "error", err)
			continue
		}
		if err := performCameraHandshake(conn); err != nil {
			c.log.Warnw("camera handshake failed", "error", err)
			_ = conn.Close()
			continue
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}
	return nil
}

func (c *CameraReceiver) readLoop(ctx context.Context, conn net.Conn) {
	for !c.done.Load() {
		frame, err := readCameraFrame(conn, c.cfg.ExpectRows, c.cfg.ExpectCols)
		// The blocking read above is this stage's wait()-equivalent
		// suspension point (spec.md §4.1, §5).
		MaybeReload(ctx)
		if err != nil {
			if _, fatal := err.(*protocolFatalError); fatal {
				hardExit(c.log, "camera_receiver %s: %v", c.cfg.Name, err)
			}
			if err != io.EOF {
				c.log.Warnw("camera read error, reconnecting", "error", err)
			}
			return
		}
		c.Queue.Publish(CameraFrame{
			RequestTime: frame.RequestTime,
			RecvTime:    frame.RecvTime,
			Rows:        frame.Rows,
			Cols:        frame.Cols,
			VChan:       frame.VChan,
			YChan:       frame.YChan,
		}, frame.RequestTime)
	}
}
