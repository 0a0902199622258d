package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDialWithBackoffSucceedsOnceListenerIsUp(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			acceptCh <- c
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := dialWithBackoff(ctx, l.Addr().String(), noopLogger())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case c := <-acceptCh:
		c.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("listener never accepted")
	}
}

func TestDialWithBackoffRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	// Port 1 is reserved and will reliably refuse connections.
	_, err := dialWithBackoff(ctx, "127.0.0.1:1", noopLogger())
	require.Error(t, err)
}
