package main

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLoggerSelectsConfigByEnvironment(t *testing.T) {
	prod := newLogger("production")
	if prod.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("production logger must not log at debug level")
	}

	dev := newLogger("development")
	if !dev.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("development logger must log at debug level")
	}
}
