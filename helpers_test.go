package main

import "go.uber.org/zap"

// noopLogger builds a SugaredLogger that discards everything, for tests
// that need a non-nil logger but don't assert on log output.
func noopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
