// Package monitor watches the production store for drift and regressions.
//
// A Monitor runs cycles of four kinds (quick, full, quality, trend) on their
// own schedules from a single cooperative loop: the earliest due cycle runs
// to completion before the next one is considered. Each cycle collects
// metrics and compares them with a persisted baseline. The baseline is only
// ever adopted when none exists or replaced through SetBaseline.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/propgate/propgate/pkg/constants"
	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/logging"
)

// Options configure a Monitor.
type Options struct {
	// Dir holds the baseline, snapshots and alert logs.
	Dir        string
	Schedules  map[Kind]string
	Thresholds Thresholds
	Now        func() time.Time
	OnAlert    func(Alert)
	OnCycle    func(CycleResult)
}

// CycleResult is the outcome of one cycle.
type CycleResult struct {
	ID              string        `json:"id" yaml:"id"`
	Cycle           int64         `json:"cycle" yaml:"cycle"`
	Kind            Kind          `json:"kind" yaml:"kind"`
	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
	BaselineAdopted bool          `json:"baseline_adopted" yaml:"baseline_adopted"`
	Checks          []Check       `json:"checks,omitempty" yaml:"checks,omitempty"`
	Alerts          []Alert       `json:"alerts,omitempty" yaml:"alerts,omitempty"`
	Snapshot        string        `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	Metrics         *Metrics      `json:"-" yaml:"-"`
}

// Monitor runs monitoring cycles.
type Monitor struct {
	collector Collector
	store     *Store
	opts      Options

	mu      sync.Mutex
	closing *atomic.Bool
	stopCh  chan struct{}
	cycles  *atomic.Int64
	alerts  *atomic.Int64
}

// New creates a Monitor. Schedules are validated here.
func New(collector Collector, opts Options) (*Monitor, error) {
	if opts.Dir == "" {
		return nil, errors.Configuration("monitoring.dir", "monitoring directory is required", nil)
	}
	if opts.Schedules == nil {
		opts.Schedules = DefaultSchedules()
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if _, err := parseSchedules(opts.Schedules, opts.Now()); err != nil {
		return nil, errors.Configuration("monitoring.schedules", "invalid schedule", err)
	}
	return &Monitor{
		collector: collector,
		store:     NewStore(opts.Dir),
		opts:      opts,
		closing:   atomic.NewBool(false),
		stopCh:    make(chan struct{}),
		cycles:    atomic.NewInt64(0),
		alerts:    atomic.NewInt64(0),
	}, nil
}

// Store returns the monitor's persistence.
func (m *Monitor) Store() *Store {
	return m.store
}

// Cycles returns the number of cycles started.
func (m *Monitor) Cycles() int64 {
	return m.cycles.Load()
}

// AlertsRaised returns the number of alerts raised.
func (m *Monitor) AlertsRaised() int64 {
	return m.alerts.Load()
}

// Stopped reports whether Stop was called.
func (m *Monitor) Stopped() bool {
	return m.closing.Load()
}

// Stop stops triggering new cycles. A running cycle completes.
func (m *Monitor) Stop() {
	if m.closing.CAS(false, true) {
		close(m.stopCh)
	}
}

// SetBaseline collects current metrics and makes them the baseline.
func (m *Monitor) SetBaseline(ctx context.Context) (*Metrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	metrics, err := m.collector.Collect(ctx)
	if err != nil {
		return nil, err
	}
	metrics.Timestamp = m.opts.Now().UTC()
	if err := m.store.SetBaseline(metrics); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info().Int("files", metrics.FileCount).Msg("baseline set")
	return metrics, nil
}

// RunCycle runs one cycle of the given kind.
func (m *Monitor) RunCycle(ctx context.Context, kind Kind) (*CycleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.opts.Now()
	res := &CycleResult{
		ID:        uuid.NewString(),
		Cycle:     m.cycles.Inc(),
		Kind:      kind,
		StartedAt: start.UTC(),
	}
	logger := logging.FromContext(ctx).With().
		Str("cycle_id", res.ID).
		Int64("cycle", res.Cycle).
		Str("kind", string(kind)).
		Logger()

	metrics, err := m.collector.Collect(ctx)
	if err != nil {
		return res, err
	}
	metrics.Timestamp = start.UTC()
	metrics.Cycle = res.Cycle
	metrics.Kind = kind
	res.Metrics = metrics

	baseline, err := m.store.LoadBaseline()
	switch {
	case errors.IsNotFound(err):
		if err := m.store.SetBaseline(metrics); err != nil {
			return res, err
		}
		res.BaselineAdopted = true
		logger.Info().Int("files", metrics.FileCount).Msg("no baseline, adopted current metrics")
	case err != nil:
		return res, err
	default:
		for _, check := range kind.Checks() {
			res.Checks = append(res.Checks, check)
			for _, a := range runCheck(check, baseline, metrics, m.opts.Thresholds) {
				a.ID = uuid.NewString()
				a.Cycle = res.Cycle
				a.Kind = kind
				a.Timestamp = start.UTC()
				res.Alerts = append(res.Alerts, a)
			}
		}
		if err := m.store.AppendAlerts(res.Alerts); err != nil {
			return res, err
		}
		m.alerts.Add(int64(len(res.Alerts)))
		for _, a := range res.Alerts {
			logger.Warn().
				Str("type", string(a.Type)).
				Str("severity", string(a.Severity)).
				Str("metric", a.Metric).
				Msg(a.Message)
			if m.opts.OnAlert != nil {
				m.opts.OnAlert(a)
			}
		}
	}

	if res.Snapshot, err = m.store.SaveSnapshot(metrics); err != nil {
		return res, err
	}
	res.Duration = m.opts.Now().Sub(start)
	logger.Info().Int("alerts", len(res.Alerts)).Dur("duration", res.Duration).Msg("cycle complete")
	if m.opts.OnCycle != nil {
		m.opts.OnCycle(*res)
	}
	return res, nil
}

// Run loops until Stop is called or ctx is canceled. A failing cycle is
// logged and the loop carries on with the next due cycle.
func (m *Monitor) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	schedules, err := parseSchedules(m.opts.Schedules, m.opts.Now())
	if err != nil {
		return errors.Configuration("monitoring.schedules", "invalid schedule", err)
	}
	if len(schedules) == 0 {
		return errors.Configuration("monitoring.schedules", "no cycle kind is scheduled", nil)
	}
	for _, s := range schedules {
		logger.Info().Str("kind", string(s.kind)).Str("schedule", s.spec).Time("next", s.next).Msg("cycle scheduled")
	}

	for {
		if m.closing.Load() {
			return nil
		}
		due := earliest(schedules)
		if wait := due.next.Sub(m.opts.Now()); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-m.stopCh:
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}

		cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.CycleTimeout)
		if _, err := m.RunCycle(cycleCtx, due.kind); err != nil {
			logger.Error().Err(err).Str("kind", string(due.kind)).Msg("monitoring cycle failed")
		}
		cancel()
		due.next = due.sched.Next(m.opts.Now())
	}
}
