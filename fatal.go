// fatal.go - the hard-exit routine for invariant violations and
// structural protocol errors (spec.md §7 "Invariant violation... fatal
// with stack trace").
//
// Grounded on the teacher's coprocessor panic/recover boundary: a fatal
// condition logs, runs every atexit-registered flush hook (github.com/
// tebeka/atexit, a direct dependency of sarchlab-zeonica) in registration
// order, then exits the process. Kharon never uses exceptions; this is
// the one place a detected-but-unrecoverable condition leaves its
// detecting stage's normal control flow.

package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/tebeka/atexit"
	"go.uber.org/zap"
)

// maxCameras is MAX_CAMS from spec.md §4.5/§3.
const maxCameras = 8

// hardExit logs a fatal message with a stack trace, runs registered
// atexit hooks (log flush, session cleanup), and terminates the process
// with a non-zero status. Never returns.
func hardExit(log *zap.SugaredLogger, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if log != nil {
		log.Errorw("fatal", "message", msg, "stack", string(debug.Stack()))
	} else {
		fmt.Fprintln(os.Stderr, "fatal:", msg)
	}
	atexit.Exit(1)
}
