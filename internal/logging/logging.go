// Package logging wraps log/slog the way cmd/bd/daemon_logger.go does in
// the teacher: a thin adapter with level-specific methods, backed by a
// rotating file when running as a daemon and by stderr text otherwise.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the broker/worker-wide logging handle.
type Logger struct {
	logger *slog.Logger
}

// Options configures a Logger.
type Options struct {
	// FilePath, if set, routes output through a rotating lumberjack writer
	// instead of stderr. Set by the broker daemon's --log-file flag; the
	// worker loop always logs to stderr.
	FilePath   string
	MaxSizeMB  int // defaults to 50
	MaxBackups int // defaults to 5
	MaxAgeDays int // defaults to 28
	Debug      bool
}

// New builds a Logger per Options.
func New(opts Options) *Logger {
	var w io.Writer = os.Stderr
	var handler slog.Handler

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	if opts.FilePath != "" {
		maxSize := opts.MaxSizeMB
		if maxSize == 0 {
			maxSize = 50
		}
		maxBackups := opts.MaxBackups
		if maxBackups == 0 {
			maxBackups = 5
		}
		maxAge := opts.MaxAgeDays
		if maxAge == 0 {
			maxAge = 28
		}
		w = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   true,
		}
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}

	return &Logger{logger: slog.New(handler)}
}

// NewCLI returns a Logger suitable for a short-lived CLI invocation: text
// to stderr, info level.
func NewCLI() *Logger { return New(Options{}) }

// With returns a child logger with the given key-value pairs attached to
// every subsequent record — used for request-scoped loggers (request id,
// remote addr, project id).
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Slog exposes the underlying *slog.Logger for callers that want to pass
// it to a library expecting one (e.g. an http.Server ErrorLog adapter).
func (l *Logger) Slog() *slog.Logger { return l.logger }
