// gps_receiver.go - GPS receiver stage (spec.md §4.3 "GPS receiver").
//
// Parses NMEA sentences from a networked feed and publishes a position
// fix once the minimum set {time, lat, lon} is present. Connection
// handling mirrors imu_receiver.go.

package main

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// GPSReceiverConfig names the device and where to dial it.
type GPSReceiverConfig struct {
	Name    string
	Address string
}

// GPSReceiver is one GPS device's stage.
type GPSReceiver struct {
	cfg GPSReceiverConfig
	log *zap.SugaredLogger

	Queue *ProducerQueue[GPSFix]

	connMu sync.Mutex
	conn   net.Conn
	fix    GPSFix

	done atomic.Bool
}

// NewGPSReceiver builds the stage with a small queue: GPS updates are
// low-rate (~1-10Hz), so 64 slots comfortably covers any plausible
// consumer lag.
func NewGPSReceiver(cfg GPSReceiverConfig, log *zap.SugaredLogger) *GPSReceiver {
	return &GPSReceiver{cfg: cfg, log: log, Queue: NewProducerQueue[GPSFix](64, 1)}
}

func (g *GPSReceiver) Name() string { return g.cfg.Name }

func (g *GPSReceiver) PreRun(ctx context.Context) error {
	if g.cfg.Address == "" {
		return errConfig("gps_receiver %s: empty address", g.cfg.Name)
	}
	return nil
}

func (g *GPSReceiver) PostRun(ctx context.Context) error {
	g.Queue.Close()
	return nil
}

// Abort closes the current connection to unblock a blocking read.
func (g *GPSReceiver) Abort() {
	g.done.Store(true)
	g.connMu.Lock()
	if g.conn != nil {
		_ = g.conn.Close()
	}
	g.connMu.Unlock()
}

func (g *GPSReceiver) Run(ctx context.Context) error {
	for !g.done.Load() {
		conn, err := dialWithBackoff(ctx, g.cfg.Address, g.log)
		if err != nil {
			return nil
		}
		g.connMu.Lock()
		g.conn = conn
		g.connMu.Unlock()

		g.readLoop(ctx, conn)

		g.connMu.Lock()
		g.conn = nil
		g.connMu.Unlock()
		_ = conn.Close()
	}
	return nil
}

func (g *GPSReceiver) readLoop(ctx context.Context, conn net.Conn) {
	r := bufio.NewReaderSize(conn, gpsBlockSize*4)
	for !g.done.Load() {
		ts, sentence, err := readGPSBlock(r)
		// The blocking read above is this stage's wait()-equivalent
		// suspension point (spec.md §4.1, §5).
		MaybeReload(ctx)
		if err != nil {
			if err != io.EOF {
				g.log.Warnw("gps read error, reconnecting", "error", err)
			}
			return
		}
		if err := applyNMEASentence(&g.fix, sentence); err != nil {
			g.log.Debugw("gps: unparsed sentence", "error", err)
			continue
		}
		g.fix.UnixTime = ts
		// Publication requires {time, lat, lon} at minimum, spec.md §6.
		if g.fix.HaveTime && g.fix.HavePosition {
			g.Queue.Publish(g.fix, ts)
		}
	}
}
