package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents log levels
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	currentLevel  atomic.Int32
	currentFormat atomic.Value

	mu       sync.RWMutex
	slogger  *slog.Logger
	output   io.Writer = os.Stdout
	useColor           = true
	logFile  *os.File
)

func init() {
	currentLevel.Store(int32(LevelInfo))
	currentFormat.Store("text")
	useColor = isTerminal(os.Stdout.Fd())
	reconfigure()
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name into a Level. Unknown names report false.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	}
	return LevelInfo, false
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// reconfigure rebuilds the slog handler from the current level, format and output.
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: Level(currentLevel.Load()).slog()}

	var h slog.Handler
	if format, _ := currentFormat.Load().(string); format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = NewColorTextHandler(output, opts, useColor)
	}
	slogger = slog.New(h)
}

// Init applies cfg to the package logger.
// Output can be "stdout", "stderr", or a file path.
func Init(cfg Config) error {
	if cfg.Output != "" {
		if err := setOutput(cfg.Output); err != nil {
			return err
		}
	}
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	reconfigure()
	return nil
}

func setOutput(dest string) error {
	var (
		w     io.Writer
		color bool
		file  *os.File
	)

	switch strings.ToLower(dest) {
	case "stdout":
		w, color = os.Stdout, isTerminal(os.Stdout.Fd())
	case "stderr":
		w, color = os.Stderr, isTerminal(os.Stderr.Fd())
	default:
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", dest, err)
		}
		w, file = f, f
	}

	mu.Lock()
	if logFile != nil {
		_ = logFile.Close()
	}
	output, useColor, logFile = w, color, file
	mu.Unlock()
	return nil
}

// InitWithWriter points the logger at w. Used by tests to capture output.
func InitWithWriter(w io.Writer, level, format string, enableColor bool) {
	mu.Lock()
	output = w
	useColor = enableColor
	mu.Unlock()

	if level != "" {
		SetLevel(level)
	}
	if format != "" {
		SetFormat(format)
	}
	reconfigure()
}

// SetLevel sets the minimum log level. Invalid names are ignored.
func SetLevel(level string) {
	l, ok := ParseLevel(level)
	if !ok {
		return
	}
	currentLevel.Store(int32(l))
	reconfigure()
}

// SetFormat sets the output format (text or json)
func SetFormat(format string) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return
	}
	currentFormat.Store(format)
	reconfigure()
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

func enabled(l Level) bool {
	return l >= Level(currentLevel.Load())
}

// ============================================================================
// Structured logging
// ============================================================================

// Debug logs at debug level: Debug("message", "key1", value1, ...)
func Debug(msg string, args ...any) {
	if enabled(LevelDebug) {
		getLogger().Debug(msg, args...)
	}
}

// Info logs at info level
func Info(msg string, args ...any) {
	if enabled(LevelInfo) {
		getLogger().Info(msg, args...)
	}
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	if enabled(LevelWarn) {
		getLogger().Warn(msg, args...)
	}
}

// Error logs at error level. Errors are never filtered.
func Error(msg string, args ...any) {
	getLogger().Error(msg, args...)
}

// ============================================================================
// Context-aware logging
// ============================================================================

// DebugCtx logs at debug level, prefixing the LogContext fields found in ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if enabled(LevelDebug) {
		getLogger().Debug(msg, appendContextFields(ctx, args)...)
	}
}

// InfoCtx logs at info level with context fields
func InfoCtx(ctx context.Context, msg string, args ...any) {
	if enabled(LevelInfo) {
		getLogger().Info(msg, appendContextFields(ctx, args)...)
	}
}

// WarnCtx logs at warn level with context fields
func WarnCtx(ctx context.Context, msg string, args ...any) {
	if enabled(LevelWarn) {
		getLogger().Warn(msg, appendContextFields(ctx, args)...)
	}
}

// ErrorCtx logs at error level with context fields
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	getLogger().Error(msg, appendContextFields(ctx, args)...)
}

func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	out := make([]any, 0, 16+len(args))
	add := func(key, val string) {
		if val != "" {
			out = append(out, key, val)
		}
	}
	add(KeyTraceID, lc.TraceID)
	add(KeySpanID, lc.SpanID)
	add(KeyProtocol, lc.Protocol)
	add(KeyOperation, lc.Operation)
	add(KeyClientIP, lc.ClientIP)
	add(KeyBindDN, lc.BindDN)
	add(KeyUsername, lc.Username)
	if lc.MessageID != 0 {
		out = append(out, KeyMessageID, lc.MessageID)
	}
	return append(out, args...)
}

// With returns a slog.Logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return getLogger().With(args...)
}

// Duration returns the time elapsed since start in milliseconds.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// Debugf logs a printf-style message at debug level
func Debugf(format string, v ...any) {
	if enabled(LevelDebug) {
		getLogger().Debug(fmt.Sprintf(format, v...))
	}
}

// Infof logs a printf-style message at info level
func Infof(format string, v ...any) {
	if enabled(LevelInfo) {
		getLogger().Info(fmt.Sprintf(format, v...))
	}
}

// Warnf logs a printf-style message at warn level
func Warnf(format string, v ...any) {
	if enabled(LevelWarn) {
		getLogger().Warn(fmt.Sprintf(format, v...))
	}
}

// Errorf logs a printf-style message at error level
func Errorf(format string, v ...any) {
	getLogger().Error(fmt.Sprintf(format, v...))
}
