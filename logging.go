// logging.go - per-stage structured logging (SPEC_FULL.md §10.1).
//
// One root zap.Logger is built per run, and each stage gets its own
// zap.Logger, Named() after the stage, so log lines carry the stage name the way the teacher's per-worker log lines
// carry a CPU type. File output lands under
// <log-root>/<YYYY-MM-DD_HH-MM-SS>/log_<stage> per spec.md §6.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSession owns the per-run log directory and the root logger built
// over it.
type LogSession struct {
	Dir    string
	Root   *zap.Logger
	stages map[string]*os.File
}

// NewLogSession creates "<logRoot>/<timestamp>/" and a root logger that
// writes console-encoded lines to stderr at warn-and-above, mirroring how an operator
// watching a terminal only wants to see the lines that matter (SPEC_FULL.md
// §10.1).
func NewLogSession(logRoot string, now time.Time) (*LogSession, error) {
	dir := filepath.Join(logRoot, now.Format("2006-01-02_15-04-05"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create session dir: %w", err)
	}

	consoleEncoder := zap.NewProductionEncoderConfig()
	consoleEncoder.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoder),
		zapcore.AddSync(os.Stderr),
		zap.WarnLevel,
	)

	root := zap.New(consoleCore, zap.AddCaller())
	return &LogSession{Dir: dir, Root: root, stages: map[string]*os.File{}}, nil
}

// StageLogger returns a logger for `stage` that writes JSON lines to its
// own "log_<stage>" file as well as a warn-and-above stderr core. Per spec.md
// §5, "Logger handles are shared; the logger owns its own mutex per
// file" — zapcore's WriteSyncer already serializes writes per file, so
// each stage's own *os.File needs no extra locking here.
func (s *LogSession) StageLogger(stage string) (*zap.SugaredLogger, error) {
	path := filepath.Join(s.Dir, "log_"+stage)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", path, err)
	}
	s.stages[stage] = f

	fileEncoder := zap.NewProductionEncoderConfig()
	fileEncoder.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoder), zapcore.AddSync(f), zap.DebugLevel)

	consoleEncoder := zap.NewProductionEncoderConfig()
	consoleEncoder.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoder),
		zapcore.AddSync(os.Stderr),
		zap.WarnLevel,
	)

	tee := zapcore.NewTee(fileCore, consoleCore)
	logger := zap.New(tee).Named(stage)
	return logger.Sugar(), nil
}

// Close flushes and closes every per-stage log file. Registered with
// atexit in main.go per SPEC_FULL.md §11 so it runs on both clean and
// fatal shutdown.
func (s *LogSession) Close() {
	_ = s.Root.Sync()
	for _, f := range s.stages {
		_ = f.Sync()
		_ = f.Close()
	}
}
