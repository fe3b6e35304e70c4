// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Logger writes levelled messages to stderr with optional timestamps
// and level prefixes.  Lines are encoded by a zap console core so the
// output sink can be swapped without touching call sites.
type Logger struct {
	level      LogLevel
	output     io.Writer
	mu         sync.Mutex
	timestamps bool // if true, prepend HH:MM:SS.mmm timestamps
	zl         *zap.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// rebuild recreates the zap core after an output or format change.
// Callers hold l.mu or own l exclusively.
func (l *Logger) rebuild() {
	enc := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
	}
	if l.timestamps {
		enc.TimeKey = "ts"
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.Lock(zapcore.AddSync(l.output)), // Zap() callers bypass l.mu
		zapcore.DebugLevel, // gating happens in the level methods below
	)
	l.zl = zap.New(core)
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = on
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	if l == nil {
		return LogQuiet
	}
	return l.level
}

// Zap exposes the underlying zap logger for structured fields.  A nil
// Logger yields a no-op zap logger.
func (l *Logger) Zap() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.zl
}

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	if l.enabled(LogNormal) {
		l.write(zapcore.InfoLevel, "INF", format, args...)
	}
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.enabled(LogNormal) {
		l.write(zapcore.WarnLevel, "WRN", format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.enabled(LogVerbose) {
		l.write(zapcore.InfoLevel, "VRB", format, args...)
	}
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.enabled(LogDebug) {
		l.write(zapcore.DebugLevel, "DBG", format, args...)
	}
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(zapcore.ErrorLevel, "ERR", format, args...)
}

func (l *Logger) enabled(lv LogLevel) bool {
	return l != nil && l.level >= lv
}

func (l *Logger) write(lvl zapcore.Level, prefix, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf("[%s] %s", prefix, fmt.Sprintf(format, args...))
	if ce := l.zl.Check(lvl, msg); ce != nil {
		ce.Write()
	}
}
