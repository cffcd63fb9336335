// Package propgate validates technical property records for a catalog of
// items, scores and gates them, deploys the ready ones into a production
// file store with a rollback-safe release protocol, and monitors the
// deployed state for drift and regressions.
//
// Example usage:
//
//	cfg, err := config.Load("propgate.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pg, err := propgate.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pg.Close()
//
//	pg.OnAlert(func(a monitor.Alert) {
//	    log.Printf("%s %s: %s", a.Severity, a.Type, a.Message)
//	})
//
//	out, err := pg.Release(ctx, propgate.ReleaseOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(out.Result.Summary())
//
//	if err := pg.MonitoringOn(ctx); err != nil {
//	    log.Fatal(err)
//	}
package propgate

import (
	"context"
	"time"

	"github.com/propgate/propgate/pkg/config"
	"github.com/propgate/propgate/pkg/monitor"
	"github.com/propgate/propgate/pkg/release"
)

// Client runs the validation pipeline, releases and monitoring.
type Client interface {
	// Pipeline runs validation, assessment, release and rollback
	Pipeline

	// Monitoring controls the background monitor and its baseline
	Monitoring

	// Hooks provides access to event callback registration
	Hooks

	// Config returns the configuration the client was built with.
	Config() *config.Config

	// Close stops monitoring and releases the history ledger.
	Close() error
}

// Pipeline runs the one-shot stages.
type Pipeline interface {
	Validate(ctx context.Context, categories ...string) (*Validation, error)
	Assess(ctx context.Context, categories ...string) (*Assessment, error)
	Release(ctx context.Context, opts ReleaseOptions) (*ReleaseOutcome, error)
	Rollback(ctx context.Context, opts release.RollbackOptions) (*release.RollbackResult, error)
	Backups() ([]*release.Manifest, error)
}

// Monitoring controls continuous monitoring.
type Monitoring interface {
	// MonitoringOn starts the scheduled monitor in the background.
	MonitoringOn(ctx context.Context) error
	// MonitoringOff stops it, letting a running cycle finish.
	MonitoringOff() error
	// MonitoringActive reports whether the background monitor runs.
	MonitoringActive() bool
	RunCycle(ctx context.Context, kind monitor.Kind) (*monitor.CycleResult, error)
	SetBaseline(ctx context.Context) (*monitor.Metrics, error)
	ResetBaseline() error
	Baseline() (*monitor.Metrics, error)
	Alerts(day time.Time) ([]monitor.Alert, error)
}
