package main

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger returns a stderr logger. Each -v enables one more V level.
func newLogger(verbosity int) (logr.Logger, func()) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	cfg.DisableCaller = verbosity == 0

	z, err := cfg.Build()
	if err != nil {
		return logr.Discard(), func() {}
	}
	return zapr.NewLogger(z), func() { _ = z.Sync() }
}
