package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// NewTestLogger creates a no-op logger for unit tests.
func NewTestLogger() *Logger {
	return &Logger{zap.NewNop()}
}

// NewTestLoggerWithT creates a test logger that writes to testing.T via zaptest.
func NewTestLoggerWithT(t *testing.T) *Logger {
	return &Logger{zaptest.NewLogger(t)}
}

// NewDevelopmentLogger creates a development logger for debugging tests.
func NewDevelopmentLogger() *Logger {
	l, _ := New(true, false, "")
	return l
}
