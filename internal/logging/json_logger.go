package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// JSONLogger implements Logger on top of zerolog, one JSON object per line
type JSONLogger struct {
	zlog    zerolog.Logger
	level   *atomic.Int32
	traceID string
	redact  bool
	closer  io.Closer
}

// JSONLoggerConfig contains configuration for the JSON logger
type JSONLoggerConfig struct {
	Writer          io.Writer
	Closer          io.Closer // closed by Close, usually the file behind Writer
	Level           LogLevel
	RedactSensitive bool
}

// NewJSONLogger creates a zerolog-backed structured logger
func NewJSONLogger(config JSONLoggerConfig) *JSONLogger {
	if config.Writer == nil {
		config.Writer = os.Stderr
	}

	level := &atomic.Int32{}
	level.Store(int32(config.Level))

	return &JSONLogger{
		zlog:   zerolog.New(config.Writer).With().Timestamp().Logger(),
		level:  level,
		redact: config.RedactSensitive,
		closer: config.Closer,
	}
}

func (l *JSONLogger) log(level LogLevel, msg string, fields ...Field) {
	if int32(level) < l.level.Load() {
		return
	}

	var event *zerolog.Event
	switch level {
	case DEBUG:
		event = l.zlog.Debug()
	case WARN:
		event = l.zlog.Warn()
	case ERROR:
		event = l.zlog.Error()
	default:
		event = l.zlog.Info()
	}

	for _, field := range fields {
		if l.redact {
			if s, ok := field.Value.(string); ok {
				event = event.Str(field.Key, redactSensitiveData(s))
				continue
			}
			if err, ok := field.Value.(error); ok {
				event = event.Str(field.Key, redactSensitiveData(err.Error()))
				continue
			}
		}
		event = event.Interface(field.Key, field.Value)
	}

	if l.redact {
		msg = redactSensitiveData(msg)
	}
	event.Msg(msg)
}

// Debug logs a debug-level message
func (l *JSONLogger) Debug(msg string, fields ...Field) {
	l.log(DEBUG, msg, fields...)
}

// Info logs an info-level message
func (l *JSONLogger) Info(msg string, fields ...Field) {
	l.log(INFO, msg, fields...)
}

// Warn logs a warning-level message
func (l *JSONLogger) Warn(msg string, fields ...Field) {
	l.log(WARN, msg, fields...)
}

// Error logs an error-level message
func (l *JSONLogger) Error(msg string, fields ...Field) {
	l.log(ERROR, msg, fields...)
}

// WithTraceID returns a child logger that stamps every record with traceId
func (l *JSONLogger) WithTraceID(traceID string) Logger {
	return &JSONLogger{
		zlog:    l.zlog.With().Str("traceId", traceID).Logger(),
		level:   l.level,
		traceID: traceID,
		redact:  l.redact,
	}
}

// WithContext returns a new logger that extracts trace ID from context
func (l *JSONLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" || traceID == l.traceID {
		return l
	}
	return l.WithTraceID(traceID)
}

// SetLevel sets the minimum log level for this logger and its children
func (l *JSONLogger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// Close closes the underlying output if the logger owns it
func (l *JSONLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	if err := l.closer.Close(); err != nil {
		return fmt.Errorf("failed to close log output: %w", err)
	}
	return nil
}
