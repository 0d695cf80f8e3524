// Package core holds the one piece of the teacher runtime that evbuffer
// still leans on directly: a pluggable structured Logger. evbuffer.Buffer
// accepts one as an optional diagnostic sink (recovered callback panics)
// without forcing callers who don't care to wire anything.
package core

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// Logger is the structured logging surface evbuffer.Config.Logger accepts.
// Swappable so a caller can route diagnostics into whatever logging stack
// their own process already uses.
type Logger interface {
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	// WithFields returns a new Logger that annotates every subsequent
	// entry with the given key-value pairs, on top of any it already has.
	WithFields(fields map[string]interface{}) Logger
}

// LoggerConfig configures NewLogger.
type LoggerConfig struct {
	// JSONOutput encodes each entry as one JSON object, written after the
	// same level, timestamp and file:line prefix that plain text gets.
	JSONOutput bool
}

// defaultLogger writes through the standard log package, one *log.Logger
// per level so each keeps its own prefix and destination stream.
type defaultLogger struct {
	errorLogger *log.Logger
	warnLogger  *log.Logger
	infoLogger  *log.Logger
	debugLogger *log.Logger
	json        bool
	fields      map[string]interface{}
}

// NewDefaultLogger returns a plain-text logger writing errors/warnings to
// stderr and info/debug to stdout.
func NewDefaultLogger() Logger {
	return NewLogger(LoggerConfig{})
}

// NewJSONLogger returns a logger that emits one JSON object per entry.
func NewJSONLogger() Logger {
	return NewLogger(LoggerConfig{JSONOutput: true})
}

// NewLogger builds a Logger from config.
func NewLogger(config LoggerConfig) Logger {
	return &defaultLogger{
		errorLogger: log.New(os.Stderr, "[ERROR] ", log.LstdFlags|log.Lshortfile),
		warnLogger:  log.New(os.Stderr, "[WARN] ", log.LstdFlags|log.Lshortfile),
		infoLogger:  log.New(os.Stdout, "[INFO] ", log.LstdFlags|log.Lshortfile),
		debugLogger: log.New(os.Stdout, "[DEBUG] ", log.LstdFlags|log.Lshortfile),
		json:        config.JSONOutput,
		fields:      map[string]interface{}{},
	}
}

type logEntry struct {
	Timestamp string                 `json:"timestamp,omitempty"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *defaultLogger) emit(level string, dst *log.Logger, message string) {
	if !l.json {
		if len(l.fields) > 0 {
			dst.Output(3, fmt.Sprintf("%s %v", message, l.fields))
		} else {
			dst.Output(3, message)
		}
		return
	}

	entry := logEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Message:   message,
	}
	if len(l.fields) > 0 {
		entry.Fields = l.fields
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		dst.Output(3, fmt.Sprintf("[%s] %s %v", level, message, l.fields))
		return
	}
	dst.Output(3, string(encoded))
}

func (l *defaultLogger) Error(args ...interface{}) {
	l.emit("ERROR", l.errorLogger, fmt.Sprint(args...))
}

func (l *defaultLogger) Errorf(format string, args ...interface{}) {
	l.emit("ERROR", l.errorLogger, fmt.Sprintf(format, args...))
}

func (l *defaultLogger) Warn(args ...interface{}) {
	l.emit("WARN", l.warnLogger, fmt.Sprint(args...))
}

func (l *defaultLogger) Warnf(format string, args ...interface{}) {
	l.emit("WARN", l.warnLogger, fmt.Sprintf(format, args...))
}

func (l *defaultLogger) Info(args ...interface{}) {
	l.emit("INFO", l.infoLogger, fmt.Sprint(args...))
}

func (l *defaultLogger) Infof(format string, args ...interface{}) {
	l.emit("INFO", l.infoLogger, fmt.Sprintf(format, args...))
}

func (l *defaultLogger) Debug(args ...interface{}) {
	l.emit("DEBUG", l.debugLogger, fmt.Sprint(args...))
}

func (l *defaultLogger) Debugf(format string, args ...interface{}) {
	l.emit("DEBUG", l.debugLogger, fmt.Sprintf(format, args...))
}

// WithFields merges fields into a copy of this logger's existing fields,
// new values winning on key collision.
func (l *defaultLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &defaultLogger{
		errorLogger: l.errorLogger,
		warnLogger:  l.warnLogger,
		infoLogger:  l.infoLogger,
		debugLogger: l.debugLogger,
		json:        l.json,
		fields:      merged,
	}
}
