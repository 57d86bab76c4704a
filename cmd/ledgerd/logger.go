// logger.go - Structured logging for the ledger runner
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog logger with an optional file sink and a separate
// audit stream.
type Logger struct {
	zerolog.Logger

	files []*os.File
	audit *zerolog.Logger
}

// NewLogger creates a new logger instance. Unknown levels fall back to info.
func NewLogger(level, format, logFile, auditFile string) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var console io.Writer = os.Stdout
	if format == "console" {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}
	}

	l := &Logger{}
	writers := []io.Writer{console}
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.files = append(l.files, file)
		writers = append(writers, file)
	}
	if auditFile != "" {
		file, err := os.OpenFile(auditFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to open audit file: %w", err)
		}
		l.files = append(l.files, file)
		audit := zerolog.New(file).With().Timestamp().Str("stream", "audit").Logger()
		l.audit = &audit
	}

	l.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()
	return l, nil
}

// newLoggerTo logs everything to w, without files or audit stream.
func newLoggerTo(w io.Writer) *Logger {
	return &Logger{Logger: zerolog.New(w).With().Timestamp().Logger()}
}

// Close closes the logger's files
func (l *Logger) Close() error {
	var first error
	for _, f := range l.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.files = nil
	return first
}

// Audit logs an audit event
func (l *Logger) Audit(event string, details map[string]interface{}) {
	if l.audit == nil {
		return
	}
	l.audit.Log().Str("event", event).Fields(details).Msg("audit")
}
