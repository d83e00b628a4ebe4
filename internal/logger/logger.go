package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log levels
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	levelNames = map[int]string{
		LevelDebug: "debug",
		LevelInfo:  "info",
		LevelWarn:  "warn",
		LevelError: "error",
	}

	zerologLevels = map[int]zerolog.Level{
		LevelDebug: zerolog.DebugLevel,
		LevelInfo:  zerolog.InfoLevel,
		LevelWarn:  zerolog.WarnLevel,
		LevelError: zerolog.ErrorLevel,
	}

	// Default to INFO in production, DEBUG in development
	minLevel = LevelInfo

	base zerolog.Logger
)

// Logger wraps zerolog with a component name and printf-style levels
type Logger struct {
	component string
}

func init() {
	// Set log level based on environment
	if IsDevelopment() {
		minLevel = LevelDebug
	}
	if lvl, ok := ParseLevel(os.Getenv("LOG_LEVEL")); ok {
		minLevel = lvl
	}

	SetOutput(os.Stdout)
}

// SetOutput points every component logger at w. Development gets the console writer.
func SetOutput(w io.Writer) {
	if IsDevelopment() {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	base = zerolog.New(w).With().Timestamp().Logger()
}

// New creates a new logger for a specific component
func New(component string) *Logger {
	return &Logger{component: component}
}

// SetMinLevel allows changing the minimum log level at runtime
func SetMinLevel(level int) {
	minLevel = level
}

// ParseLevel maps "debug", "info", "warn" or "error" to a level
func ParseLevel(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for lvl, name := range levelNames {
		if name == s {
			return lvl, true
		}
	}
	return 0, false
}

// logf logs a message at the specified level
func (l *Logger) logf(level int, format string, args ...interface{}) {
	if level < minLevel {
		return
	}

	base.WithLevel(zerologLevels[level]).
		Str("component", l.component).
		Msg(fmt.Sprintf(format, args...))
}

// Debug logs debug information
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args...)
}

// Info logs information messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(LevelWarn, format, args...)
}

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "development" // Default to development
	}
	return env
}

// IsDevelopment returns true if the current environment is development
func IsDevelopment() bool {
	return GetAppEnv() == "development"
}
