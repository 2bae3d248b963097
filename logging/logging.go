// Package logging provides a zerolog backed etp.Logger configured from the
// environment.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Environment variables read by New.
const (
	EnvLogLevel     = "ETP_LOG_LEVEL"
	EnvLogFormat    = "ETP_LOG_FORMAT"
	EnvLogTimestamp = "ETP_LOG_TIMESTAMP"
	EnvLogNoColor   = "ETP_LOG_NOCOLOR"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config selects level and output of a Logger.
type Config struct {
	Level     zerolog.Level
	Format    string
	Timestamp bool
	NoColor   bool
	Out       io.Writer
}

// DefaultConfig returns the configuration of profile before environment
// overrides.
func DefaultConfig(profile Profile) Config {
	cfg := Config{Format: FormatConsole, Out: os.Stdout}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
		cfg.Out = os.Stderr
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

// Logger adapts a zerolog.Logger to etp.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New returns a logger for app using profile and the ETP_LOG_* environment.
func New(app string, profile Profile) *Logger {
	cfg := DefaultConfig(profile)
	applyEnvOverrides(&cfg)
	return NewWithConfig(app, cfg)
}

// NewWithConfig returns a logger for app using cfg as is.
func NewWithConfig(app string, cfg Config) *Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format != FormatJSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.NoColor,
		}
	}
	ctx := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if app != "" {
		ctx = ctx.Str("app", app)
	}
	return &Logger{zl: ctx.Logger()}
}

// Zerolog returns the underlying zerolog logger.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

// With returns a logger that adds the key-value pairs args to every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{zl: l.zl.With().Fields(args).Logger()}
}

func (l *Logger) Debug(msg string, args ...any) { l.zl.Debug().Fields(args).Msg(msg) }
func (l *Logger) Info(msg string, args ...any)  { l.zl.Info().Fields(args).Msg(msg) }
func (l *Logger) Warn(msg string, args ...any)  { l.zl.Warn().Fields(args).Msg(msg) }
func (l *Logger) Error(msg string, args ...any) { l.zl.Error().Fields(args).Msg(msg) }

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))) {
	case FormatJSON:
		cfg.Format = FormatJSON
	case FormatConsole:
		cfg.Format = FormatConsole
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
