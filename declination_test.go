package main

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeclinationSetGet(t *testing.T) {
	d := NewDeclination(12.5)
	require.Equal(t, 12.5, d.Get())
	d.Set(-4.0)
	require.Equal(t, -4.0, d.Get())
}

func TestDeclinationNudge(t *testing.T) {
	d := NewDeclination(0)
	d.Nudge(0.1)
	d.Nudge(0.1)
	require.InDelta(t, 0.2, d.Get(), 1e-9)
}

func TestDeclinationConcurrentNudge(t *testing.T) {
	d := NewDeclination(0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Nudge(0.01)
		}()
	}
	wg.Wait()
	require.InDelta(t, 1.0, d.Get(), 1e-6)
}
