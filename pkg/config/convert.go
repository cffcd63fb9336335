package config

import (
	"sort"

	"github.com/propgate/propgate/pkg/crossval"
	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/gatekeeper"
	"github.com/propgate/propgate/pkg/monitor"
	"github.com/propgate/propgate/pkg/peers"
	"github.com/propgate/propgate/pkg/quality"
	"github.com/propgate/propgate/pkg/release"
	"github.com/propgate/propgate/pkg/report"
)

// Criteria returns the gatekeeper criteria.
func (c *Config) Criteria() (gatekeeper.Criteria, error) {
	if c.Deployment.MinQualityScore == nil || c.Deployment.RequiredGrade == nil || c.Deployment.MaxHighPriorityIssues == nil {
		return gatekeeper.Criteria{}, errors.Configuration("deployment", "deployment thresholds are not set", nil)
	}
	grade, err := c.requiredGrade()
	if err != nil {
		return gatekeeper.Criteria{}, err
	}
	crit := gatekeeper.Criteria{
		MinScore:              *c.Deployment.MinQualityScore,
		RequiredGrade:         grade,
		MaxHighPriority:       *c.Deployment.MaxHighPriorityIssues,
		MinCriticalConfidence: c.Deployment.MinCriticalConfidence,
		NearMargin:            c.Deployment.NearMargin,
	}
	for _, name := range c.Deployment.AcceptedGrades {
		g, err := quality.ParseGrade(name)
		if err != nil {
			return gatekeeper.Criteria{}, errors.Configuration("deployment.accepted_grades", err.Error(), err)
		}
		crit.AcceptedGrades = append(crit.AcceptedGrades, g)
	}
	if err := crit.Validate(); err != nil {
		return gatekeeper.Criteria{}, err
	}
	return crit, nil
}

// ScoringOptions returns the quality scorer options.
func (c *Config) ScoringOptions() (quality.Options, error) {
	opts := quality.Options{
		Weights:    c.Quality.Weights,
		Thresholds: c.Quality.Grades,
		Rules:      c.Categories,
		ExtraBonus: c.Quality.ExtraPropertyBonus,
		MaxBonus:   c.Quality.MaxBonus,
	}
	if err := opts.Weights.Validate(); err != nil {
		return opts, errors.Configuration("quality.weights", err.Error(), err)
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return opts, errors.Configuration("quality.grades", err.Error(), err)
	}
	return opts, nil
}

// CrossValOptions returns the cross-validator options.
func (c *Config) CrossValOptions() crossval.Options {
	cv := c.CrossValidation
	return crossval.Options{
		ZThreshold:       cv.ZThreshold,
		PercentileLow:    cv.PercentileLow,
		PercentileHigh:   cv.PercentileHigh,
		MinPeers:         cv.MinPeers,
		MaxPeers:         cv.MaxPeers,
		MaxPeerDeviation: cv.MaxPeerDeviation,
		Workers:          cv.Workers,
	}
}

// PeerOptions returns the peer finder options.
func (c *Config) PeerOptions() peers.Options {
	return peers.Options{Threshold: c.Peers.Threshold, Weights: c.Peers.Weights}
}

// GateOptions returns the release gate options. Critical properties are
// required by the schema gate.
func (c *Config) GateOptions() release.GateOptions {
	g := c.Release.Gates
	opts := release.GateOptions{
		SchemaCompleteness: g.SchemaCompleteness,
		CrossReference:     g.CrossReference,
		RangeValidity:      g.RangeValidity,
		UnitPlausibility:   g.UnitPlausibility,
		Required:           make(map[string][]string, len(c.Categories)),
		Units:              c.Units,
	}
	for name, rules := range c.Categories {
		opts.Categories = append(opts.Categories, name)
		if len(rules.Critical) > 0 {
			opts.Required[name] = rules.Critical
		}
	}
	sort.Strings(opts.Categories)
	return opts
}

// ReleaseOptions returns the release manager options.
func (c *Config) ReleaseOptions() release.Options {
	return release.Options{
		ProductionDir:         c.Paths.Production,
		WorkDir:               c.Paths.Work,
		BatchSize:             c.Release.BatchSize,
		Gates:                 c.GateOptions(),
		AutoRollbackOnFailure: c.Release.AutoRollbackOnFailure,
		StopOnItemFailure:     c.Release.StopOnItemFailure,
		KeepStaging:           c.Release.KeepStaging,
	}
}

// MonitorOptions returns the monitor options without hooks.
func (c *Config) MonitorOptions() (monitor.Options, error) {
	schedules, err := c.Schedules()
	if err != nil {
		return monitor.Options{}, err
	}
	return monitor.Options{
		Dir:        c.MonitoringDir(),
		Schedules:  schedules,
		Thresholds: c.Monitoring.Thresholds,
	}, nil
}

// ReportFormat returns the configured report format.
func (c *Config) ReportFormat() report.Format {
	f, err := report.ParseFormat(c.Report.Format)
	if err != nil {
		return report.FormatYAML
	}
	return f
}
