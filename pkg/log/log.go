package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger configured by Init
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Level is a configured log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var zerologLevels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// ParseLevel maps a flag or config value to a Level, defaulting to info
func ParseLevel(s string) Level {
	level := Level(strings.ToLower(strings.TrimSpace(s)))
	if level == "warning" {
		return WarnLevel
	}
	if _, ok := zerologLevels[level]; ok {
		return level
	}
	return InfoLevel
}

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer // Defaults to stderr
}

// Init replaces the global logger
func Init(cfg Config) {
	zerolog.SetGlobalLevel(zerologLevels[ParseLevel(string(cfg.Level))])

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithHost creates a child logger with host field
func WithHost(host string) zerolog.Logger {
	return Logger.With().Str("host", host).Logger()
}

// WithPool creates a child logger with pool and backend_name fields
func WithPool(pool, backendName string) zerolog.Logger {
	return Logger.With().Str("pool", pool).Str("backend_name", backendName).Logger()
}
