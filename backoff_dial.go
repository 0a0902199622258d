// backoff_dial.go - shared TCP reconnect helper for the IMU and GPS
// receivers; the camera receiver listens instead of dialing (spec.md §7
// "Transient I/O error: close connection, re-accept, resume at next fresh
// sample").
//
// Uses github.com/cenkalti/backoff/v4 (a direct dependency of the
// retrieval pack's datadogexporter) instead of a hand-rolled retry loop.

package main

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// dialWithBackoff repeatedly dials addr until it succeeds or ctx is
// cancelled, backing off exponentially between attempts (capped at 5s) so
// a downed device does not spin a receiver's goroutine hot.
func dialWithBackoff(ctx context.Context, addr string, log *zap.SugaredLogger) (net.Conn, error) {
	var conn net.Conn
	policy := backoff.WithContext(newReconnectBackoff(), ctx)

	op := func() error {
		d := net.Dialer{Timeout: 5 * time.Second}
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			log.Debugw("dial failed, retrying", "addr", addr, "error", err)
			return err
		}
		conn = c
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return conn, nil
}

func newReconnectBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // retry until ctx cancellation
	return b
}
