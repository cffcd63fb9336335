package propgate

import (
	"context"
	"sync"

	"github.com/propgate/propgate/internal/history"
	"github.com/propgate/propgate/pkg/config"
	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/gatekeeper"
	"github.com/propgate/propgate/pkg/logging"
	"github.com/propgate/propgate/pkg/monitor"
	"github.com/propgate/propgate/pkg/quality"
	"github.com/propgate/propgate/pkg/release"
)

// Compile-time interface check to ensure proper implementation.
var _ Client = (*client)(nil)

// client is the internal implementation of the Client interface.
type client struct {
	options  *options
	cfg      *config.Config
	scorer   *quality.Scorer
	criteria gatekeeper.Criteria
	releases *release.Manager
	ledger   *history.Store
	hooks    *hooks

	// monitoring state
	mu        sync.Mutex
	monitor   *monitor.Monitor
	monCancel context.CancelFunc
	monDone   chan struct{}
}

// New creates a Client from a validated configuration.
func New(cfg *config.Config, opts ...Option) (Client, error) {
	if cfg == nil {
		return nil, errors.Configuration("config", "configuration is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &client{
		options: defaults().apply(opts...),
		cfg:     cfg,
		hooks:   newHooks(),
	}

	scoring, err := cfg.ScoringOptions()
	if err != nil {
		return nil, err
	}
	if c.scorer, err = quality.NewScorer(scoring); err != nil {
		return nil, err
	}
	if c.criteria, err = cfg.Criteria(); err != nil {
		return nil, err
	}
	if c.releases, err = release.NewManager(c.releaseOptions(false, 0)); err != nil {
		return nil, err
	}

	if c.options.history && cfg.History.Enabled {
		if c.ledger, err = history.Open(cfg.HistoryPath()); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Config returns the client configuration.
func (c *client) Config() *config.Config {
	return c.cfg
}

// Close stops monitoring and closes the history ledger.
func (c *client) Close() error {
	if err := c.MonitoringOff(); err != nil {
		return err
	}
	if c.ledger != nil {
		if err := c.ledger.Close(); err != nil {
			return errors.Storage("history", "close ledger", err)
		}
	}
	return nil
}

// withLogger attaches the configured logger when the context carries none.
func (c *client) withLogger(ctx context.Context) context.Context {
	if c.options.logger != nil {
		return logging.WithLogger(ctx, c.options.logger)
	}
	return ctx
}

func (c *client) releaseOptions(dryRun bool, batchSize int) release.Options {
	opts := c.cfg.ReleaseOptions()
	opts.DryRun = dryRun
	if batchSize > 0 {
		opts.BatchSize = batchSize
	}
	opts.Now = c.options.now
	opts.OnItemApplied = c.hooks.triggerItemApplied
	return opts
}

// record runs fn against the ledger when history is enabled. Ledger
// failures are logged and never fail the operation being recorded.
func (c *client) record(ctx context.Context, what string, fn func(*history.Store) error) {
	if c.ledger == nil {
		return
	}
	if err := fn(c.ledger); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("entry", what).Msg("failed to record history")
	}
}
