// Package logging provides structured logging for propgate using zerolog.
//
// Pipeline stages take their logger from the context so that every line of a
// run carries its run id:
//
//	ctx = logging.WithRun(ctx, runID)
//	logging.FromContext(ctx).Warn().Str("item", "metals/copper").Msg("gate failed")
//
// Without a logger in the context the package default is used. It writes
// console output on a terminal and JSON otherwise, so the monitor produces
// parseable logs when it runs under a supervisor.
package logging

import (
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mu            sync.RWMutex
	defaultLogger = NewLoggerFromConfig(ConfigFromEnv())
)

// Default returns the package default logger.
func Default() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := defaultLogger
	return &l
}

// SetDefault replaces the package default logger and zerolog's global one.
func SetDefault(logger zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
	log.Logger = logger
}

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
