package propgate

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/propgate/propgate/internal/history"
	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/logging"
	"github.com/propgate/propgate/pkg/monitor"
)

// MonitoringOn starts the scheduled monitor in the background. Canceling ctx
// stops it as well.
func (c *client) MonitoringOn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeLocked() {
		return errors.NewValidationError("monitoring", "on", "monitoring is already active")
	}
	m, err := c.monitorLocked()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.withLogger(ctx))
	done := make(chan struct{})
	c.monCancel = cancel
	c.monDone = done

	go func() {
		defer close(done)
		logger := logging.FromContext(ctx)
		logger.Info().Str("dir", m.Store().Dir()).Msg("monitoring started")
		if err := m.Run(ctx); err != nil && !stderrors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("monitoring stopped with error")
			return
		}
		logger.Info().Int64("cycles", m.Cycles()).Int64("alerts", m.AlertsRaised()).Msg("monitoring stopped")
	}()
	return nil
}

// MonitoringOff stops the background monitor and waits for an in-flight
// cycle to finish. It is a no-op when monitoring is inactive.
func (c *client) MonitoringOff() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.monDone == nil {
		return nil
	}
	c.monitor.Stop()
	<-c.monDone
	c.monCancel()

	c.monitor = nil
	c.monCancel = nil
	c.monDone = nil
	return nil
}

// MonitoringActive reports whether the background monitor is running.
func (c *client) MonitoringActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

// RunCycle runs one monitoring cycle immediately.
func (c *client) RunCycle(ctx context.Context, kind monitor.Kind) (*monitor.CycleResult, error) {
	m, err := c.currentMonitor()
	if err != nil {
		return nil, err
	}
	return m.RunCycle(c.withLogger(ctx), kind)
}

// SetBaseline replaces the baseline with the current production metrics.
func (c *client) SetBaseline(ctx context.Context) (*monitor.Metrics, error) {
	m, err := c.currentMonitor()
	if err != nil {
		return nil, err
	}
	return m.SetBaseline(c.withLogger(ctx))
}

// ResetBaseline removes the baseline; the next cycle adopts a new one.
func (c *client) ResetBaseline() error {
	return c.store().ResetBaseline()
}

// Baseline returns the stored baseline.
func (c *client) Baseline() (*monitor.Metrics, error) {
	return c.store().LoadBaseline()
}

// Alerts returns the alerts logged on the UTC day of day.
func (c *client) Alerts(day time.Time) ([]monitor.Alert, error) {
	return c.store().ReadAlerts(day)
}

func (c *client) store() *monitor.Store {
	return monitor.NewStore(c.cfg.MonitoringDir())
}

func (c *client) currentMonitor() (*monitor.Monitor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitorLocked()
}

// activeLocked requires c.mu.
func (c *client) activeLocked() bool {
	if c.monDone == nil {
		return false
	}
	select {
	case <-c.monDone:
		return false
	default:
		return true
	}
}

// monitorLocked returns the live monitor, creating one when none is usable.
// It requires c.mu.
func (c *client) monitorLocked() (*monitor.Monitor, error) {
	if c.monitor != nil && !c.monitor.Stopped() && !c.finishedLocked() {
		return c.monitor, nil
	}
	if c.monDone != nil {
		// the previous background run ended on its own
		c.monCancel()
		c.monCancel = nil
		c.monDone = nil
	}

	opts, err := c.cfg.MonitorOptions()
	if err != nil {
		return nil, err
	}
	opts.Now = c.options.now
	opts.OnAlert = c.hooks.triggerAlert
	opts.OnCycle = func(res monitor.CycleResult) {
		c.record(context.Background(), history.KindCycle, func(s *history.Store) error {
			return s.RecordCycle(context.Background(), res)
		})
	}

	m, err := monitor.New(c.collector(), opts)
	if err != nil {
		return nil, err
	}
	c.monitor = m
	return m, nil
}

// finishedLocked reports whether a background run has exited.
func (c *client) finishedLocked() bool {
	return c.monDone != nil && !c.activeLocked()
}

func (c *client) collector() monitor.Collector {
	if c.options.collector != nil {
		return c.options.collector
	}
	return &monitor.StoreCollector{
		ProductionDir: c.cfg.Paths.Production,
		ResearchDir:   c.cfg.Paths.Research,
		Scorer:        c.scorer,
		CrossVal:      c.cfg.CrossValOptions(),
		Peers:         c.cfg.PeerOptions(),
		IQRMultiplier: c.cfg.CrossValidation.IQRMultiplier,
	}
}
