package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStage struct {
	name           string
	preRunErr      error
	preRan         atomic.Bool
	ran            atomic.Bool
	postRan        atomic.Bool
	aborted        atomic.Bool
	blockUntilDone bool
	abortCh        chan struct{}
}

func newFakeStage(name string) *fakeStage {
	return &fakeStage{name: name, abortCh: make(chan struct{})}
}

func (f *fakeStage) Name() string { return f.name }

func (f *fakeStage) PreRun(ctx context.Context) error {
	f.preRan.Store(true)
	return f.preRunErr
}

func (f *fakeStage) Run(ctx context.Context) error {
	f.ran.Store(true)
	if f.blockUntilDone {
		select {
		case <-ctx.Done():
		case <-f.abortCh:
		}
	}
	return nil
}

func (f *fakeStage) PostRun(ctx context.Context) error {
	f.postRan.Store(true)
	return nil
}

func (f *fakeStage) Abort() {
	f.aborted.Store(true)
	close(f.abortCh)
}

func TestSchedulerRunsAllThreePhases(t *testing.T) {
	s1 := newFakeStage("s1")
	s2 := newFakeStage("s2")
	sched := NewScheduler(zap.NewNop().Sugar(), []Stage{s1, s2})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := sched.Run(ctx)
	require.NoError(t, err)
	require.True(t, s1.preRan.Load())
	require.True(t, s1.ran.Load())
	require.True(t, s1.postRan.Load())
	require.True(t, s2.preRan.Load())
	require.True(t, s2.ran.Load())
	require.True(t, s2.postRan.Load())
}

func TestSchedulerPreRunFailureAbortsBeforeRun(t *testing.T) {
	s1 := newFakeStage("s1")
	s1.preRunErr = errConfig("boom")
	s2 := newFakeStage("s2")
	sched := NewScheduler(zap.NewNop().Sugar(), []Stage{s1, s2})

	err := sched.Run(context.Background())
	require.Error(t, err)
	require.False(t, s1.ran.Load())
	require.False(t, s2.ran.Load())
}

func TestSchedulerShutdownCallsAbortAndUnblocksRun(t *testing.T) {
	s1 := newFakeStage("s1")
	s1.blockUntilDone = true
	sched := NewScheduler(zap.NewNop().Sugar(), []Stage{s1})

	done := make(chan error, 1)
	go func() { done <- sched.Run(context.Background()) }()

	// Give PreRun/Run a moment to start before requesting shutdown.
	time.Sleep(20 * time.Millisecond)
	sched.Shutdown()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not shut down")
	}
	require.True(t, s1.aborted.Load())
	require.True(t, s1.postRan.Load())
}
