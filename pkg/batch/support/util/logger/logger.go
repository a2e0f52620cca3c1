// Package logger provides the logging utility used across the capture pipeline.
// It keeps a printf-style API (Debugf, Infof, ...) for progress messages and adds Event for
// structured decision records. Output is routed through log/slog: human-readable text to the
// console and, when a run log file is configured, JSON lines to that file.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// LogLevel is a type representing the logging level.
type LogLevel int

const (
	// LevelDebug is the log level used for detailed debugging information.
	LevelDebug LogLevel = iota
	// LevelInfo is the log level used for general informational messages.
	LevelInfo
	// LevelWarn is the log level used for potential issues or warning messages.
	LevelWarn
	// LevelError is the log level used for error messages.
	LevelError
	// LevelFatal is the log level used for fatal error messages that cause application termination.
	LevelFatal
)

// levelFatal is the slog level used for FATAL records.
const levelFatal = slog.LevelError + 4

var (
	mu       sync.RWMutex
	levelVar = new(slog.LevelVar)
	base     = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	exitFunc = os.Exit
)

// toSlogLevel maps a LogLevel onto the corresponding slog.Level.
func toSlogLevel(l LogLevel) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelFatal:
		return levelFatal
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a level name ("DEBUG", "INFO", "WARN", "ERROR", "FATAL", case-insensitive)
// into a LogLevel. Unknown names map to LevelInfo and ok is false.
func ParseLevel(level string) (l LogLevel, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG", "TRACE":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// SetLogLevel sets the global log level.
// Only log messages at or above the specified level will be output.
// If an invalid value is specified, the default "INFO" level is used and a warning is logged.
func SetLogLevel(level string) {
	l, ok := ParseLevel(level)
	levelVar.Set(toSlogLevel(l))
	if !ok {
		Warnf("Unknown log level '%s' specified. Defaulting to INFO level.", level)
	}
}

// Setup installs the console handler and, if logFile is not empty, a JSON handler writing to
// logFile. Both handlers share the global level. The returned function closes the log file.
// If the file cannot be opened, logging falls back to the console only and the error is returned.
func Setup(logFile string) (func() error, error) {
	console := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})
	if logFile == "" {
		install(slog.New(console))
		return func() error { return nil }, nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		install(slog.New(console))
		return func() error { return nil }, fmt.Errorf("open run log %s: %w", logFile, err)
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: levelVar})
	install(slog.New(slogmulti.Fanout(console, fileHandler)))
	return file.Close, nil
}

// SetupWithWriters installs a text handler on console and a JSON handler on file.
// Either writer may be nil. Intended for tests and embedding.
func SetupWithWriters(console, file io.Writer) {
	var handlers []slog.Handler
	if console != nil {
		handlers = append(handlers, slog.NewTextHandler(console, &slog.HandlerOptions{Level: levelVar}))
	}
	if file != nil {
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: levelVar}))
	}
	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(io.Discard, nil))
	}
	install(slog.New(slogmulti.Fanout(handlers...)))
}

func install(l *slog.Logger) {
	mu.Lock()
	base = l
	mu.Unlock()
}

// L returns the underlying structured logger.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func logf(level slog.Level, format string, v ...interface{}) {
	l := L()
	if !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	logf(slog.LevelDebug, format, v...)
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	logf(slog.LevelInfo, format, v...)
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	logf(slog.LevelWarn, format, v...)
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	logf(slog.LevelError, format, v...)
}

// Fatalf formats and outputs a FATAL level log message,
// then terminates the program by calling os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	L().Log(context.Background(), levelFatal, fmt.Sprintf(format, v...))
	exitFunc(1)
}

// Event records a pipeline decision as a structured INFO line.
// args follow the slog key/value convention, e.g. Event("channel plan", "band", "b4", "cutoff", 0.2).
func Event(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn records a structured WARN line.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}
