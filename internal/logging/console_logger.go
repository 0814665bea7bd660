package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

var levelColors = map[LogLevel]string{
	DEBUG: colorBlue,
	INFO:  colorReset,
	WARN:  colorYellow,
	ERROR: colorRed,
}

// ConsoleLogger writes one human-readable line per record:
//
//	15:04:05.000 INFO  [1a2b3c4d] Listed folder folderId=abc included=2
type ConsoleLogger struct {
	out              *lockedWriter
	level            LogLevel
	traceID          string
	colorEnabled     bool
	timestampEnabled bool
	redactSensitive  bool
}

// ConsoleLoggerConfig contains configuration for console logger
type ConsoleLoggerConfig struct {
	Writer           io.Writer
	Level            LogLevel
	ColorEnabled     bool
	TimestampEnabled bool
	RedactSensitive  bool
}

// NewConsoleLogger creates a new console logger
func NewConsoleLogger(config ConsoleLoggerConfig) *ConsoleLogger {
	if config.Writer == nil {
		config.Writer = os.Stderr
	}

	return &ConsoleLogger{
		out:              &lockedWriter{w: config.Writer},
		level:            config.Level,
		colorEnabled:     config.ColorEnabled,
		timestampEnabled: config.TimestampEnabled,
		redactSensitive:  config.RedactSensitive,
	}
}

// lockedWriter serializes writes from a logger and all of its trace-scoped
// children.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

// Credentials that may surface in error strings from the token endpoint,
// the tunnel or a mis-set key path.
var (
	bearerTokenPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`)
	oauthTokenPattern  = regexp.MustCompile(`(access_token|refresh_token|id_token)["']?\s*[:=]\s*["']?[A-Za-z0-9\-._~+/]+=*`)
	assertionPattern   = regexp.MustCompile(`(assertion)=[A-Za-z0-9\-._~+/%]+`)
	privateKeyPattern  = regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`)
	privateKeyField    = regexp.MustCompile(`"private_key"\s*:\s*"[^"]*"`)
	authHeaderPattern  = regexp.MustCompile(`(?i)authorization["']?\s*[:=]\s*["']?[^\s"']+`)
)

// redactSensitiveData masks tokens and service account key material
func redactSensitiveData(s string) string {
	s = privateKeyPattern.ReplaceAllString(s, "[REDACTED PRIVATE KEY]")
	s = privateKeyField.ReplaceAllString(s, `"private_key":"[REDACTED]"`)
	s = bearerTokenPattern.ReplaceAllString(s, "Bearer [REDACTED]")
	s = oauthTokenPattern.ReplaceAllString(s, "$1=[REDACTED]")
	s = assertionPattern.ReplaceAllString(s, "$1=[REDACTED]")
	s = authHeaderPattern.ReplaceAllString(s, "Authorization: [REDACTED]")
	return s
}

func (l *ConsoleLogger) paint(sb *strings.Builder, color, text string) {
	if l.colorEnabled {
		sb.WriteString(color)
		sb.WriteString(text)
		sb.WriteString(colorReset)
		return
	}
	sb.WriteString(text)
}

// formatValue renders a field value, quoting it when it would not survive
// a key=value split
func formatValue(v interface{}) string {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case time.Duration:
		s = val.String()
	case error:
		s = val.Error()
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	default:
		s = fmt.Sprintf("%v", v)
	}
	if s == "" || strings.ContainsAny(s, " =\"\t\n") {
		return strconv.Quote(s)
	}
	return s
}

func (l *ConsoleLogger) formatMessage(level LogLevel, msg string, fields ...Field) string {
	var sb strings.Builder

	if l.timestampEnabled {
		l.paint(&sb, colorGray, time.Now().Format("15:04:05.000"))
		sb.WriteByte(' ')
	}

	l.paint(&sb, levelColors[level], fmt.Sprintf("%-5s", level.String()))
	sb.WriteByte(' ')

	if l.traceID != "" {
		l.paint(&sb, colorGray, "["+shortTraceID(l.traceID)+"]")
		sb.WriteByte(' ')
	}

	if l.redactSensitive {
		msg = redactSensitiveData(msg)
	}
	sb.WriteString(msg)

	for _, field := range fields {
		value := formatValue(field.Value)
		if l.redactSensitive {
			value = redactSensitiveData(value)
		}
		sb.WriteByte(' ')
		sb.WriteString(field.Key)
		sb.WriteByte('=')
		sb.WriteString(value)
	}

	return sb.String()
}

func (l *ConsoleLogger) log(level LogLevel, msg string, fields ...Field) {
	if level < l.level {
		return
	}
	_, _ = fmt.Fprintln(l.out, l.formatMessage(level, msg, fields...))
}

func shortTraceID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (l *ConsoleLogger) Debug(msg string, fields ...Field) {
	l.log(DEBUG, msg, fields...)
}

func (l *ConsoleLogger) Info(msg string, fields ...Field) {
	l.log(INFO, msg, fields...)
}

func (l *ConsoleLogger) Warn(msg string, fields ...Field) {
	l.log(WARN, msg, fields...)
}

func (l *ConsoleLogger) Error(msg string, fields ...Field) {
	l.log(ERROR, msg, fields...)
}

// WithTraceID returns a child logger that tags every line with traceID.
// Children share the parent's writer.
func (l *ConsoleLogger) WithTraceID(traceID string) Logger {
	child := *l
	child.traceID = traceID
	return &child
}

// WithContext returns a child logger for the trace ID stored on ctx
func (l *ConsoleLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	return l.WithTraceID(traceID)
}

// SetLevel sets the minimum log level
func (l *ConsoleLogger) SetLevel(level LogLevel) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.level = level
}

func (l *ConsoleLogger) Close() error {
	return nil
}
