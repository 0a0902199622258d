package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimeBaseOffsetAppliesToNow(t *testing.T) {
	tb := NewTimeBase()
	before := tb.Now()
	tb.SetOffset(10)
	after := tb.Now()
	require.InDelta(t, 10.0, after-before, 0.5)
	require.InDelta(t, 10.0, tb.Offset(), 1e-9)
}

func TestAlignDown(t *testing.T) {
	require.InDelta(t, 0.02, AlignDown(0.025, 0.01), 1e-9)
	require.InDelta(t, 0.0, AlignDown(0.0, 0.01), 1e-9)
	require.InDelta(t, -0.01, AlignDown(-0.005, 0.01), 1e-9)
	require.InDelta(t, 10.00, AlignDown(10.0, 0.01), 1e-9)
}
