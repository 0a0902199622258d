// main.go - CLI entry point (spec.md §6 "CLI").
//
// `kharon <wiring.yaml>` builds the TimeBase, log session, declination
// cell, per-device receiver stages, the attitude estimator, the vision
// pipeline and the frame-sync stage, wires them into a Scheduler, prints
// a startup diagnostics table (SPEC_FULL.md §10.5), then runs until
// shutdown. Exit code 0 on clean shutdown, non-zero on configuration
// failure (spec.md §6).

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
	"go.uber.org/zap"
)

func main() {
	atexit.Exit(run())
}

func run() int {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: kharon <wiring.yaml>")
		return 2
	}

	doc, err := LoadWiringDocument(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "kharon:", err)
		return 1
	}

	logRoot := doc.LogRoot
	if logRoot == "" {
		logRoot = "/data/kharon/logs"
	}
	session, err := NewLogSession(logRoot, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "kharon:", err)
		return 1
	}
	atexit.Register(session.Close)
	runID := xid.New().String()
	session.Root.Info("kharon starting", zap.String("run_id", runID), zap.String("log_dir", session.Dir))

	tb := NewTimeBase()
	decl := NewDeclination(doc.Declination)

	stages, diag, err := buildGraph(doc, tb, decl, session, os.Args[1])
	if err != nil {
		session.Root.Sugar().Errorw("configuration error", "error", err)
		return 1
	}

	printDiagnostics(diag)

	sched := NewScheduler(session.Root.Sugar(), stages)

	var statusSrv *http.Server
	if doc.StatusAddr != "" {
		handler := NewStatusServer(
			func() []QueueStatus { return diag.queueStatuses() },
			func() []string { return diag.stageNames() },
			func() AttitudeSnapshot { return diag.attitudeSnapshot() },
			func() []DropStatus { return diag.drops.Snapshot() },
		)
		statusSrv = &http.Server{Addr: doc.StatusAddr, Handler: handler}
		go func() {
			if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				session.Root.Sugar().Warnw("status server exited", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		sched.Shutdown()
		cancel()
	}()

	var console *DebugConsole
	if fi, _ := os.Stdin.Stat(); fi != nil && (fi.Mode()&os.ModeCharDevice) != 0 {
		console = NewDebugConsole(decl, sched, func() { printDiagnostics(diag) })
		console.Start(ctx)
		defer console.Stop()
	}

	runErr := sched.Run(ctx)
	if statusSrv != nil {
		_ = statusSrv.Close()
	}
	if runErr != nil {
		session.Root.Sugar().Errorw("kharon exited with error", "error", runErr)
		return 1
	}
	return 0
}

// printDiagnostics renders the wiring summary table (SPEC_FULL.md §10.5),
// mirroring sarchlab-zeonica's core/util.go use of go-pretty for a
// one-screen summary.
func printDiagnostics(d *graphDiagnostics) {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Stage", "Kind", "Queue Capacity"})
	for _, row := range d.rows {
		t.AppendRow(table.Row{row.name, row.kind, row.capacity})
	}
	fmt.Println(t.Render())
}
