package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildPyramidShapes(t *testing.T) {
	frame := CameraFrame{
		Rows:  8,
		Cols:  8,
		VChan: make([]byte, 64),
		YChan: make([]byte, 64),
	}
	var rec OpticalUpRecord
	buildPyramid(frame, &rec)

	require.Equal(t, 8, rec.VPyramid[0].Bounds().Dx())
	require.Equal(t, 4, rec.VPyramid[1].Bounds().Dx())
	require.Equal(t, 2, rec.VPyramid[2].Bounds().Dx())
	require.Equal(t, 8, rec.YPyramid[0].Bounds().Dy())
	require.Equal(t, 4, rec.YPyramid[1].Bounds().Dy())
}

func TestBuildPyramidStopsHalvingBelowOnePixel(t *testing.T) {
	frame := CameraFrame{
		Rows:  1,
		Cols:  1,
		VChan: make([]byte, 1),
		YChan: make([]byte, 1),
	}
	var rec OpticalUpRecord
	buildPyramid(frame, &rec)
	require.Equal(t, 1, rec.VPyramid[1].Bounds().Dx())
	require.Equal(t, 1, rec.VPyramid[2].Bounds().Dx())
}

func TestOpticalUpAbortWakesBlockedWait(t *testing.T) {
	// The camera never publishes and its queue is never closed before
	// this stage exits, so Abort alone must unstick the blocked wait.
	cam := NewCameraReceiver(CameraReceiverConfig{Name: "cam0", ListenAddr: "127.0.0.1:0"}, noopLogger())
	up := NewOpticalUp(OpticalUpConfig{
		Camera:       cam,
		Interpolator: NewAttitudeInterpolator(NewProducerQueue[AttitudeRecord](8, 1)),
	}, noopLogger())
	require.NoError(t, up.PreRun(context.Background()))

	runDone := make(chan error, 1)
	go func() { runDone <- up.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	up.Abort()

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("optical_up did not return from its blocked wait after abort")
	}
}

func TestPlaneToGrayCopiesPixels(t *testing.T) {
	plane := []byte{1, 2, 3, 4}
	img := planeToGray(plane, 2, 2)
	require.Equal(t, byte(1), img.GrayAt(0, 0).Y)
	require.Equal(t, byte(4), img.GrayAt(1, 1).Y)
}
