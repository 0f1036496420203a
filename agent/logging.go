package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents different logging levels.
type LogLevel int

const (
	// LogLevelDebug represents debug level logging
	LogLevelDebug LogLevel = iota

	// LogLevelInfo represents info level logging
	LogLevelInfo

	// LogLevelWarn represents warn level logging
	LogLevelWarn

	// LogLevelError represents error level logging
	LogLevelError

	// LogLevelFatal represents fatal level logging
	LogLevelFatal
)

// String returns a string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel maps a configuration string to a level.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "fatal":
		return LogLevelFatal, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// DefaultLogger writes one text line per entry: "[LEVEL] msg | k=v ...".
type DefaultLogger struct {
	level  LogLevel
	logger *log.Logger
	mu     *sync.Mutex
	fields []Field
}

// NewDefaultLogger creates an info-level logger writing to stdout.
func NewDefaultLogger() Logger {
	return NewTextLogger(os.Stdout, LogLevelInfo)
}

// NewTextLogger creates a text logger writing to w.
func NewTextLogger(w io.Writer, level LogLevel) Logger {
	return &DefaultLogger{
		level:  level,
		logger: log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		mu:     &sync.Mutex{},
	}
}

// Debug logs a debug message.
func (l *DefaultLogger) Debug(msg string, fields ...Field) { l.log(LogLevelDebug, msg, fields) }

// Info logs an info message.
func (l *DefaultLogger) Info(msg string, fields ...Field) { l.log(LogLevelInfo, msg, fields) }

// Warn logs a warning message.
func (l *DefaultLogger) Warn(msg string, fields ...Field) { l.log(LogLevelWarn, msg, fields) }

// Error logs an error message.
func (l *DefaultLogger) Error(msg string, fields ...Field) { l.log(LogLevelError, msg, fields) }

// Fatal logs a fatal message and exits.
func (l *DefaultLogger) Fatal(msg string, fields ...Field) {
	l.log(LogLevelFatal, msg, fields)
	os.Exit(1)
}

// With returns a new logger with additional fields.
func (l *DefaultLogger) With(fields ...Field) Logger {
	return &DefaultLogger{
		level:  l.level,
		logger: l.logger,
		mu:     l.mu,
		fields: mergeFields(l.fields, fields),
	}
}

func (l *DefaultLogger) log(level LogLevel, msg string, fields []Field) {
	if level < l.level {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level.String(), msg)
	all := mergeFields(l.fields, fields)
	if len(all) > 0 {
		b.WriteString(" |")
		for _, field := range all {
			fmt.Fprintf(&b, " %s=%v", field.Key, field.Value)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Print(b.String())
}

// JSONLogger writes one JSON object per entry.
type JSONLogger struct {
	level  LogLevel
	out    io.Writer
	mu     *sync.Mutex
	fields []Field
}

// LogEntry represents a single log entry.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// NewJSONLogger creates a JSON logger writing to w.
func NewJSONLogger(w io.Writer, level LogLevel) Logger {
	return &JSONLogger{level: level, out: w, mu: &sync.Mutex{}}
}

func (l *JSONLogger) Debug(msg string, fields ...Field) { l.log(LogLevelDebug, msg, fields) }
func (l *JSONLogger) Info(msg string, fields ...Field)  { l.log(LogLevelInfo, msg, fields) }
func (l *JSONLogger) Warn(msg string, fields ...Field)  { l.log(LogLevelWarn, msg, fields) }
func (l *JSONLogger) Error(msg string, fields ...Field) { l.log(LogLevelError, msg, fields) }

func (l *JSONLogger) Fatal(msg string, fields ...Field) {
	l.log(LogLevelFatal, msg, fields)
	os.Exit(1)
}

func (l *JSONLogger) With(fields ...Field) Logger {
	return &JSONLogger{level: l.level, out: l.out, mu: l.mu, fields: mergeFields(l.fields, fields)}
}

func (l *JSONLogger) log(level LogLevel, msg string, fields []Field) {
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   msg,
	}
	if all := mergeFields(l.fields, fields); len(all) > 0 {
		entry.Fields = make(map[string]interface{}, len(all))
		for _, field := range all {
			if err, ok := field.Value.(error); ok {
				entry.Fields[field.Key] = err.Error()
				continue
			}
			entry.Fields[field.Key] = field.Value
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(data, '\n'))
}

// NoOpLogger provides a logger that does nothing (useful for testing).
type NoOpLogger struct{}

// NewNoOpLogger creates a new no-op logger.
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
func (l *NoOpLogger) Fatal(msg string, fields ...Field) {}

// With returns the same no-op logger.
func (l *NoOpLogger) With(fields ...Field) Logger {
	return l
}

func mergeFields(base, extra []Field) []Field {
	if len(extra) == 0 {
		return base
	}
	merged := make([]Field, 0, len(base)+len(extra))
	merged = append(merged, base...)
	return append(merged, extra...)
}
