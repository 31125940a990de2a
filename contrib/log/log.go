// Package log is a thin, dependency-injectable wrapper around zap
// matching the call shapes used throughout this codebase:
// log.NewHelper, log.With, log.DefaultLogger, helper.Debugf/Infof/
// Warnf/Errorf, and helper.Enabled(level) for hot-path level checks.
package log

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level mirrors zapcore.Level without exposing the zap dependency to
// every call site.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Valuer resolves a log field lazily from a context, e.g. a request ID.
type Valuer func(ctx context.Context) interface{}

// Logger wraps a *zap.Logger plus a set of context valuers applied to
// every record emitted through a Helper bound to it.
type Logger struct {
	z       *zap.Logger
	valuers map[string]Valuer
}

// New wraps an existing *zap.Logger.
func New(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

// NewStderr returns a development-friendly console logger at level.
func NewStderr(level Level) *Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), level.zapLevel())
	return New(zap.New(core))
}

// NewFile returns a JSON logger rotated through lumberjack, matching
// the teacher's access-log rotation shape.
func NewFile(path string, maxSizeMB, maxBackups, maxAgeDays int, level Level) *Logger {
	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(writer), level.zapLevel())
	return New(zap.New(core))
}

// With returns a child Logger carrying additional context valuers,
// merged with any it already carries.
func With(l *Logger, keyvals map[string]Valuer) *Logger {
	merged := make(map[string]Valuer, len(l.valuers)+len(keyvals))
	for k, v := range l.valuers {
		merged[k] = v
	}
	for k, v := range keyvals {
		merged[k] = v
	}
	return &Logger{z: l.z, valuers: merged}
}

// DefaultLogger is used by NewHelper when no Logger is supplied.
var DefaultLogger = NewStderr(LevelInfo)

// SetDefault replaces DefaultLogger.
func SetDefault(l *Logger) {
	DefaultLogger = l
}

// Helper is the call-site-facing logging handle, bound to a context.
type Helper struct {
	l   *Logger
	ctx context.Context
}

// NewHelper binds a Helper to l (or DefaultLogger if l is nil).
func NewHelper(l *Logger) *Helper {
	if l == nil {
		l = DefaultLogger
	}
	return &Helper{l: l, ctx: context.Background()}
}

// WithContext returns a Helper that resolves the bound Logger's
// valuers against ctx on every call.
func (h *Helper) WithContext(ctx context.Context) *Helper {
	return &Helper{l: h.l, ctx: ctx}
}

func (h *Helper) fields() []zap.Field {
	if len(h.l.valuers) == 0 {
		return nil
	}
	fields := make([]zap.Field, 0, len(h.l.valuers))
	for k, v := range h.l.valuers {
		fields = append(fields, zap.Any(k, v(h.ctx)))
	}
	return fields
}

func (h *Helper) log(level Level, msg string) {
	switch level {
	case LevelDebug:
		h.l.z.Debug(msg, h.fields()...)
	case LevelWarn:
		h.l.z.Warn(msg, h.fields()...)
	case LevelError:
		h.l.z.Error(msg, h.fields()...)
	default:
		h.l.z.Info(msg, h.fields()...)
	}
}

func (h *Helper) Debugf(format string, args ...interface{}) {
	h.log(LevelDebug, fmt.Sprintf(format, args...))
}

func (h *Helper) Infof(format string, args ...interface{}) {
	h.log(LevelInfo, fmt.Sprintf(format, args...))
}

func (h *Helper) Warnf(format string, args ...interface{}) {
	h.log(LevelWarn, fmt.Sprintf(format, args...))
}

func (h *Helper) Errorf(format string, args ...interface{}) {
	h.log(LevelError, fmt.Sprintf(format, args...))
}

// Enabled reports whether level would actually be emitted, so callers
// can skip building an expensive log line on the hot path.
func (h *Helper) Enabled(level Level) bool {
	return h.l.z.Core().Enabled(level.zapLevel())
}

// Package-level convenience functions logging through DefaultLogger,
// for call sites that don't hold their own Helper.
func Debugf(format string, args ...interface{}) { NewHelper(DefaultLogger).Debugf(format, args...) }
func Infof(format string, args ...interface{})  { NewHelper(DefaultLogger).Infof(format, args...) }
func Warnf(format string, args ...interface{})  { NewHelper(DefaultLogger).Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { NewHelper(DefaultLogger).Errorf(format, args...) }
