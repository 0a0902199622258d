package main

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProducerQueuePublishAndConsume(t *testing.T) {
	q := NewProducerQueue[int](4, 1)
	c := NewCursor(q)
	q.Publish(10, 1.0)
	q.Publish(20, 2.0)

	require.True(t, c.HasData())
	v, ts, ok := c.Consume()
	require.True(t, ok)
	require.Equal(t, 10, v)
	require.Equal(t, 1.0, ts)

	v, ts, ok = c.Consume()
	require.True(t, ok)
	require.Equal(t, 20, v)
	require.Equal(t, 2.0, ts)

	_, _, ok = c.Consume()
	require.False(t, ok)
}

func TestProducerQueueLateJoinerSkipsHistory(t *testing.T) {
	q := NewProducerQueue[int](4, 1)
	q.Publish(1, 0)
	q.Publish(2, 0)
	c := NewCursor(q)
	require.False(t, c.HasData())
	q.Publish(3, 0)
	require.True(t, c.HasData())
	v, _, ok := c.Consume()
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestProducerQueueWraparoundLossDetection(t *testing.T) {
	q := NewProducerQueue[int](4, 1)
	c := NewCursor(q)
	for i := 0; i < 4; i++ {
		q.Publish(i, float64(i))
	}
	// fall behind by more than N/2 before consuming
	for i := 4; i < 10; i++ {
		q.Publish(i, float64(i))
	}
	v, _, ok := c.Consume()
	require.True(t, ok)
	require.Greater(t, c.DroppedEstimate(), uint64(0))
	require.GreaterOrEqual(t, v, 8)
}

func TestProducerQueueWaitReturnsOnQueueClose(t *testing.T) {
	q := NewProducerQueue[int](4, 1)
	done := make(chan struct{})
	go func() {
		q.Wait(0, nil)
		close(done)
	}()
	q.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not return after queue close")
	}
}

func TestProducerQueueWaitReturnsOnConsumerCancel(t *testing.T) {
	// The producer never publishes and never closes; only the consumer's
	// own cancel-plus-wake pair may unstick the wait.
	q := NewProducerQueue[int](4, 1)
	var cancel atomic.Bool
	done := make(chan struct{})
	go func() {
		q.Wait(0, &cancel)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel.Store(true)
	q.Wake()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not return after consumer cancel")
	}
}

func TestProducerQueueConcurrentProducerConsumer(t *testing.T) {
	q := NewProducerQueue[int](64, 1)
	c := NewCursor(q)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5000; i++ {
			q.Publish(i, float64(i))
		}
		q.Close()
		close(done)
	}()

	// The reader may lose records when it falls more than N/2 behind,
	// but what it does observe must stay strictly increasing.
	last := -1
	for {
		v, _, ok := c.Consume()
		if ok {
			require.Greater(t, v, last)
			last = v
			continue
		}
		select {
		case <-done:
			if !c.HasData() {
				require.Equal(t, 4999, last)
				return
			}
		default:
		}
	}
}

func TestProducerQueueCapacityMustBePowerOfTwo(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for non power-of-two capacity")
		}
	}()
	NewProducerQueue[int](3, 1)
}

func TestProducerQueueAtStaleFlag(t *testing.T) {
	q := NewProducerQueue[int](4, 1)
	q.Publish(0, 0)
	q.Publish(1, 1)
	_, _, _, stale := q.At(0)
	require.False(t, stale)
	for i := 2; i < 10; i++ {
		q.Publish(i, float64(i))
	}
	_, _, _, stale = q.At(0)
	require.True(t, stale)
}
