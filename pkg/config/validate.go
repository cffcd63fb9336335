package config

import (
	"fmt"

	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/monitor"
	"github.com/propgate/propgate/pkg/quality"
	"github.com/propgate/propgate/pkg/report"
)

// Validate checks the configuration. Every problem is a configuration error.
func (c *Config) Validate() error {
	d := c.Deployment
	switch {
	case d.MinQualityScore == nil:
		return missing("deployment.min_quality_score")
	case d.RequiredGrade == nil || *d.RequiredGrade == "":
		return missing("deployment.required_grade")
	case d.MaxHighPriorityIssues == nil:
		return missing("deployment.max_high_priority_issues")
	}
	if _, err := c.Criteria(); err != nil {
		return err
	}
	if _, err := c.ScoringOptions(); err != nil {
		return err
	}

	cv := c.CrossValidation
	if cv.ZThreshold <= 0 {
		return invalid("cross_validation.z_threshold", cv.ZThreshold, "must be positive")
	}
	if cv.PercentileLow <= 0 || cv.PercentileHigh > 100 || cv.PercentileLow >= cv.PercentileHigh {
		return invalid("cross_validation.percentile_low", cv.PercentileLow, "percentiles must satisfy 0 < low < high <= 100")
	}
	if cv.MinPeers < 1 || cv.MaxPeers < cv.MinPeers {
		return invalid("cross_validation.max_peers", cv.MaxPeers, "must be at least min_peers, which must be positive")
	}
	if cv.MaxPeerDeviation <= 0 {
		return invalid("cross_validation.max_peer_deviation", cv.MaxPeerDeviation, "must be positive")
	}
	if c.Peers.Threshold <= 0 || c.Peers.Threshold > 1 {
		return invalid("peers.threshold", c.Peers.Threshold, "must be within (0, 1]")
	}
	for prop, w := range c.Peers.Weights {
		if w < 0 {
			return invalid("peers.weights."+prop, w, "must not be negative")
		}
	}
	if c.Release.BatchSize < 1 {
		return invalid("release.batch_size", c.Release.BatchSize, "must be positive")
	}
	if c.Paths.Production == "" || c.Paths.Work == "" {
		return errors.Configuration("paths", "production and work paths are required", nil)
	}
	if _, err := c.Schedules(); err != nil {
		return err
	}
	if _, err := report.ParseFormat(c.Report.Format); err != nil {
		return errors.Configuration("report.format", err.Error(), err)
	}
	return nil
}

func missing(key string) error {
	return errors.Configuration(key, "required setting is missing", nil)
}

func invalid(key string, value any, msg string) error {
	return errors.Configuration(key, fmt.Sprintf("invalid value %v: %s", value, msg), nil)
}

// requiredGrade parses the configured grade.
func (c *Config) requiredGrade() (quality.Grade, error) {
	g, err := quality.ParseGrade(*c.Deployment.RequiredGrade)
	if err != nil {
		return "", errors.Configuration("deployment.required_grade", err.Error(), err)
	}
	return g, nil
}

// Schedules converts the schedule map to monitor kinds.
func (c *Config) Schedules() (map[monitor.Kind]string, error) {
	out := make(map[monitor.Kind]string, len(c.Monitoring.Schedules))
	for name, spec := range c.Monitoring.Schedules {
		kind, err := monitor.ParseKind(name)
		if err != nil {
			return nil, errors.Configuration("monitoring.schedules."+name, err.Error(), err)
		}
		out[kind] = spec
	}
	return out, nil
}
