// stage.go - the four-hook stage contract and cooperative cancellation
// primitives shared by every producer in the graph (spec.md §4.1, §5).
//
// Grounded on the teacher's CoprocWorker: a stage is started with its own
// goroutine, a done channel closed on exit, and a stop function that flips
// a flag the worker polls rather than killing the goroutine directly.

package main

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Stage is the contract every graph node implements. PreRun allocates
// queues and validates configuration (fatal errors surface here, per
// spec.md §7 "Configuration error"); Run is the stage's main loop, which
// must return promptly once its context is cancelled; PostRun releases
// resources. Abort is optional and is called asynchronously, from a
// different goroutine than Run, to unstick a blocking I/O call (spec.md
// §4.1 "Shutdown").
type Stage interface {
	Name() string
	PreRun(ctx context.Context) error
	Run(ctx context.Context) error
	PostRun(ctx context.Context) error
}

// Aborter is implemented by stages that block in I/O the context alone
// cannot interrupt (a net.Conn read with no deadline, say).
// Scheduler.Shutdown calls Abort, through StageHandle.SetDone, on the
// goroutine that requested shutdown; cancelling the run context alone
// does not call it.
type Aborter interface {
	Abort()
}

// ReloadConfigurer is implemented by stages whose reload_config hook
// (spec.md §4.1, §5) does something — e.g. the attitude estimator
// re-reading its mag_error_divisor. Called on the stage's own goroutine
// only, never from
// another thread, matching spec.md §5's "no other thread touches its
// config" rule.
type ReloadConfigurer interface {
	ReloadConfig()
}

// StageHandle is the scheduler's bookkeeping for one running stage: the
// DONE bit and the reload flag with the mutex that guards it.
type StageHandle struct {
	stage Stage
	log   *zap.SugaredLogger

	mu         sync.Mutex
	reloadFlag bool

	done atomic.Bool
}

func newStageHandle(s Stage, log *zap.SugaredLogger) *StageHandle {
	return &StageHandle{stage: s, log: log}
}

// Done reports whether this stage's DONE bit has been set.
func (h *StageHandle) Done() bool { return h.done.Load() }

// SetDone sets the DONE bit and calls the stage's Abort, if it has one;
// Abort is what wakes a blocked queue wait or breaks blocking I/O
// (spec.md §4.1 "Shutdown").
func (h *StageHandle) SetDone() {
	h.done.Store(true)
	if a, ok := h.stage.(Aborter); ok {
		a.Abort()
	}
}

// RequestReload sets the per-stage reload flag under the stage's own
// mutex (spec.md §5 "Config reload"). The stage picks it up after its next
// wait() returns and calls ReloadConfig on its own goroutine.
func (h *StageHandle) RequestReload() {
	h.mu.Lock()
	h.reloadFlag = true
	h.mu.Unlock()
}

// ConsumeReloadFlag clears and returns the reload flag. Call from the
// stage's own goroutine immediately after a wait() returns.
func (h *StageHandle) ConsumeReloadFlag() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	flag := h.reloadFlag
	h.reloadFlag = false
	return flag
}

// maybeReload invokes ReloadConfig if the stage implements it and its
// flag is set; a no-op otherwise.
func maybeReload(h *StageHandle) {
	if !h.ConsumeReloadFlag() {
		return
	}
	if rc, ok := h.stage.(ReloadConfigurer); ok {
		rc.ReloadConfig()
	}
}

// stageHandleKey is the context.Value key the scheduler uses to hand a
// stage's own StageHandle back to its Run goroutine (spec.md §5: the
// reload hook must run "on the main thread of that stage" — passing the
// handle through the stage's own ctx, rather than having some other
// goroutine call ReloadConfig on the stage's behalf, is what guarantees
// that).
type stageHandleKey struct{}

// withHandle attaches h to ctx for the duration of one stage's Run call.
func withHandle(ctx context.Context, h *StageHandle) context.Context {
	return context.WithValue(ctx, stageHandleKey{}, h)
}

// MaybeReload is called by a stage's own Run loop immediately after its
// own wait()-equivalent suspension point returns (a queue Wait, a
// blocking socket read, or a timed sleep) per spec.md §4.1 "after a wait
// returns, the stage calls its reload_config hook if set". A no-op when
// ctx carries no handle (e.g. a stage driven directly in a unit test) or
// when the stage does not implement ReloadConfigurer.
func MaybeReload(ctx context.Context) {
	if ctx == nil {
		return
	}
	if h, ok := ctx.Value(stageHandleKey{}).(*StageHandle); ok {
		maybeReload(h)
	}
}
