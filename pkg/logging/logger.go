package logging

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZapLogger implements Logger on top of a zap core.
type ZapLogger struct {
	z *zap.Logger
}

// New builds a logger writing to stdout and, if configured, to a rotated file.
func New(opts Options) *ZapLogger {
	encoder := newEncoder(opts.Format)
	level := opts.Level.zapLevel()

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
	}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	return &ZapLogger{z: zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))}
}

// NewWriterLogger creates a JSON logger writing to w. Used by tests and tools.
func NewWriterLogger(w io.Writer, level Level) *ZapLogger {
	core := zapcore.NewCore(newEncoder("json"), zapcore.AddSync(w), level.zapLevel())
	return &ZapLogger{z: zap.New(core)}
}

// NewFromZap wraps an existing zap logger.
func NewFromZap(z *zap.Logger) *ZapLogger {
	return &ZapLogger{z: z}
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == "console" {
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(cfg)
}

func toZap(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

// Debug logs a debug-level message
func (l *ZapLogger) Debug(msg string, fields ...Field) {
	l.z.Debug(msg, toZap(fields)...)
}

// Info logs an info-level message
func (l *ZapLogger) Info(msg string, fields ...Field) {
	l.z.Info(msg, toZap(fields)...)
}

// Warn logs a warning-level message
func (l *ZapLogger) Warn(msg string, fields ...Field) {
	l.z.Warn(msg, toZap(fields)...)
}

// Error logs an error-level message
func (l *ZapLogger) Error(msg string, fields ...Field) {
	l.z.Error(msg, toZap(fields)...)
}

// With creates a child logger with the given fields pre-set
func (l *ZapLogger) With(fields ...Field) Logger {
	return &ZapLogger{z: l.z.With(toZap(fields)...)}
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.z.Sync()
}

// Global default logger
var (
	defaultLogger Logger
	defaultMu     sync.RWMutex
)

// DefaultLogger returns the process-wide logger, creating a stdout JSON logger
// at the LOG_LEVEL environment level on first use.
func DefaultLogger() Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(Options{Level: ParseLevel(os.Getenv("LOG_LEVEL")), Format: "json"})
	}
	return defaultLogger
}

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// OrDefault returns l, or the default logger when l is nil.
func OrDefault(l Logger) Logger {
	if l == nil {
		return DefaultLogger()
	}
	return l
}
