package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGPSReceiverReadLoopPublishesOnMinimumFixSet(t *testing.T) {
	g := NewGPSReceiver(GPSReceiverConfig{Name: "gps0", Address: "1.2.3.4:5000"}, noopLogger())

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		g.readLoop(context.Background(), server)
		close(done)
	}()

	block := make([]byte, gpsBlockSize)
	copy(block, "1700000000.000 $GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47")
	go func() {
		_, _ = client.Write(block)
		client.Close()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("readLoop did not return after connection close")
	}

	require.Equal(t, uint64(1), g.Queue.Produced())
	fix, _, _, _ := g.Queue.At(0)
	require.True(t, fix.HavePosition)
	require.InDelta(t, 48+7.038/60, fix.LatDeg, 1e-6)
}

func TestGPSReceiverDoesNotPublishWithoutPosition(t *testing.T) {
	g := NewGPSReceiver(GPSReceiverConfig{Name: "gps0", Address: "1.2.3.4:5000"}, noopLogger())

	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		g.readLoop(context.Background(), server)
		close(done)
	}()

	block := make([]byte, gpsBlockSize)
	copy(block, "1700000000.000 $GPRMC,123519,V,,,,,,,230394,003.1,W*6A")
	go func() {
		_, _ = client.Write(block)
		client.Close()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("readLoop did not return after connection close")
	}

	require.Equal(t, uint64(0), g.Queue.Produced())
}
