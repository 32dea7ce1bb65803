package logger

import (
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(build(zapcore.DebugLevel, true))
}

func build(level zapcore.Level, color bool) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
	if color {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(os.Stdout),
		level,
	)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// Configure replaces the process logger. level is a zap level name
// ("debug", "info", ...); unknown names fall back to info.
func Configure(level string, color bool) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	current.Store(build(lvl, color))
}

// Use installs l as the process logger. Tests pass zap.NewNop() or an
// observer core here.
func Use(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// L returns the process logger without the helper caller skip.
func L() *zap.Logger { return current.Load().WithOptions(zap.AddCallerSkip(-1)) }

func Sync() { _ = current.Load().Sync() }

// shorthands
func Info(msg string, fields ...zap.Field) { current.Load().Info(msg, fields...) }
func Infof(format string, args ...interface{}) {
	current.Load().Info(fmt.Sprintf(format, args...))
}
func Warn(msg string, fields ...zap.Field) { current.Load().Warn(msg, fields...) }
func Warnf(format string, args ...interface{}) {
	current.Load().Warn(fmt.Sprintf(format, args...))
}
func Error(msg string, fields ...zap.Field) { current.Load().Error(msg, fields...) }

func Errorf(format string, args ...interface{}) {
	current.Load().Error(fmt.Sprintf(format, args...))
}

func Debug(msg string, fields ...zap.Field) { current.Load().Debug(msg, fields...) }
