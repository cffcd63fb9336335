package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/propgate/propgate/pkg/constants"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvLevel  = "PROPGATE_LOG_LEVEL"
	EnvFormat = "PROPGATE_LOG_FORMAT"
)

// Config selects level, encoding and destination of log output.
type Config struct {
	// Level is trace, debug, info, warn, error or off.
	Level string
	// Format is json, console or auto. Auto picks console on a terminal.
	Format string
	// Output is stderr, stdout, discard or a file path opened for append.
	Output     string
	TimeFormat string
	NoColor    bool
	AddCaller  bool
}

// DefaultConfig logs info and above to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "auto",
		Output:     "stderr",
		TimeFormat: "kitchen",
		NoColor:    os.Getenv("NO_COLOR") != "",
	}
}

// ConfigFromEnv is DefaultConfig overridden by PROPGATE_LOG_LEVEL and
// PROPGATE_LOG_FORMAT.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv(EnvLevel); v != "" {
		cfg.Level = v
	}
	if v := os.Getenv(EnvFormat); v != "" {
		cfg.Format = v
	}
	return cfg
}

// NewLoggerFromConfig builds a logger. A nil cfg means DefaultConfig.
// Debug and trace levels always record the caller.
func NewLoggerFromConfig(cfg *Config) zerolog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	ctx := zerolog.New(writerFor(cfg)).Level(level).With().Timestamp()
	if cfg.AddCaller || level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

func writerFor(cfg *Config) io.Writer {
	out, terminal := destination(cfg.Output)

	switch strings.ToLower(cfg.Format) {
	case "json":
		return out
	case "console", "pretty":
	default:
		if !terminal {
			return out
		}
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: parseTimeFormat(cfg.TimeFormat),
		NoColor:    cfg.NoColor,
	}
}

// destination opens the output and reports whether it is an interactive
// terminal. An unopenable file falls back to stderr.
func destination(output string) (io.Writer, bool) {
	switch strings.ToLower(output) {
	case "", "stderr":
		return os.Stderr, stderrIsTerminal()
	case "stdout":
		return os.Stdout, false
	case "discard", "none":
		return io.Discard, false
	}
	file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, constants.FilePermissions)
	if err != nil {
		return os.Stderr, stderrIsTerminal()
	}
	return file, false
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "", "info":
		return zerolog.InfoLevel
	case "warning":
		return zerolog.WarnLevel
	case "off", "none":
		return zerolog.Disabled
	}
	if l, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
		return l
	}
	return zerolog.InfoLevel
}

func parseTimeFormat(format string) string {
	switch strings.ToLower(format) {
	case "", "kitchen":
		return time.Kitchen
	case "rfc3339":
		return time.RFC3339
	case "unix":
		return ""
	}
	if strings.Contains(format, "2006") || strings.Contains(format, "15:04") {
		return format
	}
	return time.Kitchen
}
