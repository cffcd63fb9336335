package propgate

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/propgate/propgate/pkg/monitor"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	logger    *zerolog.Logger
	now       func() time.Time
	history   bool
	reports   bool
	collector monitor.Collector
}

func defaults() *options {
	return &options{
		now:     time.Now,
		history: true,
		reports: true,
	}
}

func (o *options) apply(opts ...Option) *options {
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger attached to every operation's context.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithoutHistory disables the history ledger regardless of configuration.
func WithoutHistory() Option {
	return func(o *options) {
		o.history = false
	}
}

// WithoutReports disables writing QA and deployment report files.
func WithoutReports() Option {
	return func(o *options) {
		o.reports = false
	}
}

// WithCollector replaces the production store collector used by monitoring.
func WithCollector(c monitor.Collector) Option {
	return func(o *options) {
		o.collector = c
	}
}
