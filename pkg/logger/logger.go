package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

func (l Level) String() string {
	return levelNames[l]
}

// Logger writes one JSON object per line. Derived loggers share the parent's
// writer and lock.
type Logger struct {
	level  Level
	out    io.Writer
	mu     *sync.Mutex
	fields map[string]any
}

type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

var std = New(INFO, os.Stdout)

func New(level Level, out io.Writer) *Logger {
	return &Logger{
		level:  level,
		out:    out,
		mu:     &sync.Mutex{},
		fields: make(map[string]any),
	}
}

func SetLevel(level Level) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.level = level
}

// SetOutput redirects the package logger, returning the previous writer.
func SetOutput(out io.Writer) io.Writer {
	std.mu.Lock()
	defer std.mu.Unlock()
	prev := std.out
	std.out = out
	return prev
}

func (l *Logger) WithField(key string, value any) *Logger {
	return l.WithFields(map[string]any{key: value})
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	derived := &Logger{
		level:  l.level,
		out:    l.out,
		mu:     l.mu,
		fields: make(map[string]any, len(l.fields)+len(fields)),
	}
	maps.Copy(derived.fields, l.fields)
	maps.Copy(derived.fields, fields)
	return derived
}

func (l *Logger) log(level Level, msg string, fields map[string]any) {
	l.mu.Lock()

	if level < l.level {
		l.mu.Unlock()
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     levelNames[level],
		Message:   msg,
		Fields:    make(map[string]any, len(l.fields)+len(fields)),
	}

	maps.Copy(entry.Fields, l.fields)
	maps.Copy(entry.Fields, fields)

	if level >= ERROR {
		_, file, line, ok := runtime.Caller(2)
		if ok {
			entry.Caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		// Unencodable field values; keep the message.
		entry.Fields = map[string]any{"marshal_error": err.Error()}
		data, _ = json.Marshal(entry)
	}
	_, _ = fmt.Fprintf(l.out, "%s\n", data)

	if level == FATAL {
		l.mu.Unlock()
		os.Exit(1)
	}

	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, fields ...map[string]any) {
	l.log(DEBUG, msg, mergeFields(fields...))
}

func (l *Logger) Info(msg string, fields ...map[string]any) {
	l.log(INFO, msg, mergeFields(fields...))
}

func (l *Logger) Warn(msg string, fields ...map[string]any) {
	l.log(WARN, msg, mergeFields(fields...))
}

func (l *Logger) Error(msg string, fields ...map[string]any) {
	l.log(ERROR, msg, mergeFields(fields...))
}

func (l *Logger) Fatal(msg string, fields ...map[string]any) {
	l.log(FATAL, msg, mergeFields(fields...))
}

func Debug(msg string, fields ...map[string]any) {
	std.log(DEBUG, msg, mergeFields(fields...))
}

func Info(msg string, fields ...map[string]any) {
	std.log(INFO, msg, mergeFields(fields...))
}

func Warn(msg string, fields ...map[string]any) {
	std.log(WARN, msg, mergeFields(fields...))
}

func Error(msg string, fields ...map[string]any) {
	std.log(ERROR, msg, mergeFields(fields...))
}

func Fatal(msg string, fields ...map[string]any) {
	std.log(FATAL, msg, mergeFields(fields...))
}

func WithField(key string, value any) *Logger {
	return std.WithField(key, value)
}

func WithFields(fields map[string]any) *Logger {
	return std.WithFields(fields)
}

func mergeFields(fields ...map[string]any) map[string]any {
	result := make(map[string]any)
	for _, f := range fields {
		maps.Copy(result, f)
	}
	return result
}

func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}
