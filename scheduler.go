// scheduler.go - one goroutine per stage with a three-phase barrier
// (pre-run, run, post-run) and cooperative shutdown (spec.md §4.1, §5).
//
// The teacher launches one goroutine per coprocessor worker and joins on a
// done channel (coprocessor_manager.go); Kharon generalizes that to an
// arbitrary stage count using golang.org/x/sync/errgroup, which the
// teacher already pulls in indirectly (via ebiten/gomobile) and which
// gives the barrier+join behavior spec.md §4.1 describes without
// hand-rolling a sync.WaitGroup + error channel.

package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// shutdownGrace is the deadline of the context handed to every stage's
// PostRun (spec.md §4.1 "~1.5 s"). It does not bound how long Run waits
// for the stages' Run calls to return.
const shutdownGrace = 1500 * time.Millisecond

// Scheduler owns the wired stage graph and drives its lifecycle.
type Scheduler struct {
	log     *zap.SugaredLogger
	handles []*StageHandle
}

// NewScheduler builds a scheduler over the given stages, each wrapped in
// its own StageHandle so Abort/reload/DONE bookkeeping is per-stage.
func NewScheduler(log *zap.SugaredLogger, stages []Stage) *Scheduler {
	handles := make([]*StageHandle, len(stages))
	for i, s := range stages {
		handles[i] = newStageHandle(s, log.Named(s.Name()))
	}
	return &Scheduler{log: log, handles: handles}
}

// Handle returns the StageHandle for the stage with the given name, or
// nil if no stage has that name.
func (s *Scheduler) Handle(name string) *StageHandle {
	for _, h := range s.handles {
		if h.stage.Name() == name {
			return h
		}
	}
	return nil
}

// Handles returns every stage handle, in wiring order.
func (s *Scheduler) Handles() []*StageHandle { return s.handles }

// Run executes all three barriers and blocks until every stage has
// returned from Run and then from PostRun. Neither wait has a time
// limit; shutdownGrace only sets the deadline on PostRun's context.
//
// Barrier 1 (pre-run): every stage's PreRun runs and must succeed before
// any stage enters Run — this is the "full graph is known" rule from
// spec.md §4.1 that prevents races between wiring and execution.
// Barrier 2 (run): each stage's Run executes in its own goroutine until
// its context is cancelled (by the caller, or by a PreRun/Run failure
// elsewhere in the graph).
// Barrier 3 (post-run): every stage's PostRun runs after Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	preGroup, preCtx := errgroup.WithContext(ctx)
	for _, h := range s.handles {
		h := h
		preGroup.Go(func() error {
			if err := h.stage.PreRun(preCtx); err != nil {
				return fmt.Errorf("%s: pre_run: %w", h.stage.Name(), err)
			}
			return nil
		})
	}
	if err := preGroup.Wait(); err != nil {
		return err
	}
	s.log.Info("all stages wired and pre-run complete")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runGroup, runCtx := errgroup.WithContext(runCtx)
	for _, h := range s.handles {
		h := h
		runGroup.Go(func() error {
			err := h.stage.Run(withHandle(runCtx, h))
			if err != nil {
				h.log.Errorw("stage exited with error", "error", err)
				return fmt.Errorf("%s: run: %w", h.stage.Name(), err)
			}
			return nil
		})
	}

	runErr := runGroup.Wait()

	postCtx, postCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer postCancel()
	var postErr error
	for _, h := range s.handles {
		if err := h.stage.PostRun(postCtx); err != nil {
			postErr = multierr.Append(postErr, fmt.Errorf("%s: post_run: %w", h.stage.Name(), err))
		}
	}
	return multierr.Combine(runErr, postErr)
}

// Shutdown sets DONE on every stage, which causes blocked wait()s to
// return immediately and blocked I/O to be broken via Abort (spec.md §4.1).
func (s *Scheduler) Shutdown() {
	for _, h := range s.handles {
		h.SetDone()
	}
}
