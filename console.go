// console.go - operator debug console (SPEC_FULL.md §12.1).
//
// Started by main.go only when stdin is a TTY. Puts the terminal in raw
// mode the same way the teacher's TerminalHost does (golang.org/x/term),
// reads single keystrokes and translates them into declination nudges,
// a wiring-document reload, or a shutdown request. This is not the
// postmaster (spec.md §1, §6 stays out of scope): no network surface,
// local keystrokes only.

package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/term"
)

// DebugConsole is the interactive, TTY-only operator console.
type DebugConsole struct {
	declination *Declination
	scheduler   *Scheduler
	statusFn    func()

	fd           int
	oldState     *term.State
	stopped      sync.Once
	done         chan struct{}
}

// NewDebugConsole builds a console bound to the process-wide declination
// and scheduler. statusFn is called on 's' to reprint the wiring table.
func NewDebugConsole(decl *Declination, sched *Scheduler, statusFn func()) *DebugConsole {
	return &DebugConsole{declination: decl, scheduler: sched, statusFn: statusFn, done: make(chan struct{})}
}

// Start puts stdin into raw mode and begins the read loop in its own
// goroutine. Call Stop to restore the terminal.
func (c *DebugConsole) Start(ctx context.Context) {
	c.fd = int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(c.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "console: failed to set raw mode: %v\n", err)
		close(c.done)
		return
	}
	c.oldState = oldState

	go c.readLoop(ctx)
}

func (c *DebugConsole) readLoop(ctx context.Context) {
	defer close(c.done)
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return
		}
		switch buf[0] {
		case 'd':
			c.declination.Nudge(-0.1)
		case 'D':
			c.declination.Nudge(0.1)
		case 'q':
			c.scheduler.Shutdown()
			return
		case 's':
			if c.statusFn != nil {
				c.statusFn()
			}
		case 'r':
			// spec.md §4.1 "A boolean reload_flag may be set by an
			// external command": here, the local keystroke stands in for
			// that external command (the postmaster itself stays out of
			// scope, spec.md §1).
			for _, h := range c.scheduler.Handles() {
				h.RequestReload()
			}
		}
	}
}

// Stop restores the terminal to its prior state. Safe to call more than
// once.
func (c *DebugConsole) Stop() {
	c.stopped.Do(func() {
		if c.oldState != nil {
			_ = term.Restore(c.fd, c.oldState)
		}
	})
}
