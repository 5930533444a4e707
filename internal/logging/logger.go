// Package logging provides simple leveled logging for motionctl
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Logger wraps stdlib log with level support, plus the structured fields a
// forked logger carries into every line it writes (the correlation token of
// an outstanding request, the operation that issued it, an axis index, an
// error it's reporting) so a log line can be traced back to the exchange that produced
// it without the caller re-stating the context on every call.
type Logger struct {
	logger  *log.Logger
	output  io.Writer
	level   LogLevel
	format  string
	noColor bool
	sync    bool
	fields  []field
	mu      sync.Mutex
}

type field struct {
	key string
	val any
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelColor = map[LogLevel]string{
	LevelDebug: "\x1b[90m", // gray
	LevelInfo:  "\x1b[36m", // cyan
	LevelWarn:  "\x1b[33m", // yellow
	LevelError: "\x1b[31m", // red
}

const colorReset = "\x1b[0m"

// Config holds logging configuration
type Config struct {
	Level  LogLevel
	Output io.Writer
	// Format selects the line encoding: "text" (the default) or "json".
	Format string
	// Sync flushes Output after every line, for writers (a rotated log
	// file, a pipe to a supervisor) that buffer on their own.
	Sync bool
	// NoColor disables the ANSI level-color prefix in text format. Ignored
	// in json format, which never colors.
	NoColor bool
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Output: os.Stderr,
		Format: "text",
	}
}

// NewLogger creates a new logger
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	format := config.Format
	if format == "" {
		format = "text"
	}
	return &Logger{
		logger:  log.New(output, "", log.LstdFlags),
		output:  output,
		level:   config.Level,
		format:  format,
		noColor: config.NoColor,
		sync:    config.Sync,
	}
}

// Default returns the default logger, creating it if necessary
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// with returns a copy of l carrying an additional field, for the WithX
// chain methods below. The copy shares l's underlying *log.Logger (itself
// safe for concurrent use) but gets its own write mutex, since forking a
// logger is meant to let independent call sites log concurrently without
// contending on each other's lock.
func (l *Logger) with(key string, val any) *Logger {
	fields := make([]field, len(l.fields), len(l.fields)+1)
	copy(fields, l.fields)
	fields = append(fields, field{key, val})
	return &Logger{
		logger:  l.logger,
		output:  l.output,
		level:   l.level,
		format:  l.format,
		noColor: l.noColor,
		sync:    l.sync,
		fields:  fields,
	}
}

// WithToken returns a logger that tags every line with the correlation
// token of the Ask or BufferMessage request it's following, so interleaved
// poll and jog traffic in the log can be told apart.
func (l *Logger) WithToken(token uint32) *Logger {
	return l.with("token", token)
}

// WithRequest returns a logger tagged with both a correlation token and the
// name of the operation that issued it (e.g. "status", "send_segments").
func (l *Logger) WithRequest(token uint32, op string) *Logger {
	return l.with("op", op).with("token", token)
}

// WithAxis returns a logger tagged with an axis index, for per-axis jog and
// homing diagnostics.
func (l *Logger) WithAxis(axis int) *Logger {
	return l.with("axis", axis)
}

// WithError returns a logger tagged with an error, so a DeviceError or a
// framing failure carries its cause on every subsequent line without the
// caller re-formatting it each time.
func (l *Logger) WithError(err error) *Logger {
	return l.with("err", err)
}

func (l *Logger) allFields(args []any) []field {
	extra := fieldsFromArgs(args)
	if len(l.fields) == 0 {
		return extra
	}
	all := make([]field, 0, len(l.fields)+len(extra))
	all = append(all, l.fields...)
	all = append(all, extra...)
	return all
}

func fieldsFromArgs(args []any) []field {
	var fields []field
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		fields = append(fields, field{key, args[i+1]})
	}
	return fields
}

// formatArgs renders fields as "key=value key=value ...", prefixed with a
// leading space, or "" if there are none.
func formatArgs(fields []field) string {
	if len(fields) == 0 {
		return ""
	}
	var result string
	for _, f := range fields {
		if result != "" {
			result += " "
		}
		result += fmt.Sprintf("%s=%v", f.key, f.val)
	}
	return " " + result
}

func levelName(level LogLevel) string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if level < l.level {
		return
	}
	fields := l.allFields(args)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		l.writeJSON(level, msg, fields)
	} else {
		l.writeText(level, msg, fields)
	}
	if l.sync {
		if s, ok := l.output.(interface{ Sync() error }); ok {
			s.Sync()
		}
	}
}

func (l *Logger) writeText(level LogLevel, msg string, fields []field) {
	prefix := "[" + levelName(level) + "]"
	if !l.noColor {
		prefix = levelColor[level] + prefix + colorReset
	}
	l.logger.Printf("%s %s%s", prefix, msg, formatArgs(fields))
}

func (l *Logger) writeJSON(level LogLevel, msg string, fields []field) {
	entry := make(map[string]any, len(fields)+3)
	entry["time"] = time.Now().Format(time.RFC3339Nano)
	entry["level"] = levelName(level)
	entry["msg"] = msg
	for _, f := range fields {
		entry[f.key] = f.val
	}
	enc, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s (failed to encode fields: %v)", levelName(level), msg, err)
		return
	}
	fmt.Fprintln(l.output, string(enc))
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, msg, args...)
}

// Printf-style logging
func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, fmt.Sprintf(format, args...))
}

// Printf for compatibility
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// Global convenience functions
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}
