// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "HEADLINK_LOG_LEVEL"
	EnvLogTimestamp = "HEADLINK_LOG_TIMESTAMP"
	EnvLogNoColor   = "HEADLINK_LOG_NOCOLOR"
)

// Config selects level and console rendering.
type Config struct {
	Level     string `toml:"level" yaml:"level"`
	Timestamp bool   `toml:"timestamp" yaml:"timestamp"`
	NoColor   bool   `toml:"no_color" yaml:"no_color"`
}

func DefaultConfig() Config {
	return Config{Level: "info", Timestamp: true}
}

// Configure installs a console logger on os.Stderr built from cfg and the
// HEADLINK_LOG_* environment overrides, and returns it.
func Configure(app string, cfg Config) zerolog.Logger {
	return ConfigureWriter(os.Stderr, app, cfg)
}

func ConfigureWriter(out io.Writer, app string, cfg Config) zerolog.Logger {
	applyEnvOverrides(&cfg)

	level, ok := ParseLevel(cfg.Level)
	if !ok {
		level = zerolog.InfoLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !cfg.Timestamp {
		output.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	ctx := zerolog.New(output).Level(level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	logger := ctx.Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// New returns a child of the global logger tagged with component.
func New(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

func applyEnvOverrides(cfg *Config) {
	if raw := strings.TrimSpace(os.Getenv(EnvLogLevel)); raw != "" {
		if _, ok := ParseLevel(raw); ok {
			cfg.Level = raw
		}
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

// ParseLevel accepts the usual level names plus a few aliases for "off".
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
