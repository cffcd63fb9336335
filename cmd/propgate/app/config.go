package app

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	pgconfig "github.com/propgate/propgate/pkg/config"
)

// Config holds the CLI settings loaded from flags, environment variables and
// .env files. Pipeline settings live in the propgate configuration file.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// ConfigFile is the propgate configuration file; empty searches the
	// working directory.
	ConfigFile string

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads CLI settings in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. PROPGATE_ environment variables
// 3. .env files
// 4. Defaults
func LoadConfig() (*Config, error) {
	// Load .env files first (before Viper env binding)
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(pgconfig.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")

	return &Config{
		Verbose:    v.GetBool("verbose"),
		Quiet:      v.GetBool("quiet"),
		NoColor:    v.GetBool("no_color"),
		Format:     v.GetString("format"),
		ConfigFile: v.GetString("config"),
		LogLevel:   v.GetString("log_level"),
		LogFormat:  v.GetString("log_format"),
		LogOutput:  v.GetString("log_output"),
	}, nil
}

// UpdateFromFlags updates config values from parsed command flags so flag
// values take precedence over environment variables.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = c.Verbose || verbose
	c.Quiet = c.Quiet || quiet
	c.NoColor = c.NoColor || noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files. Variables already
// set in the environment win, and .env.local is read first so it overrides
// .env.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}
