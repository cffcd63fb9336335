package config

import (
	stderrors "errors"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/propgate/propgate/pkg/constants"
	"github.com/propgate/propgate/pkg/errors"
)

// DefaultName is the config file searched for when no path is given.
const DefaultName = "propgate"

// requiredKeys have no default and must be provided.
var requiredKeys = []string{
	"deployment.min_quality_score",
	"deployment.required_grade",
	"deployment.max_high_priority_issues",
}

// Load reads the configuration. An empty path searches the working directory
// for propgate.yaml; a missing file is only an error when path is explicit.
// The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	defaults := Defaults()
	setDefaults(v, defaults)
	for _, key := range requiredKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Configuration(key, "bind environment", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Configuration("config", "read "+path, err)
		}
	} else {
		v.SetConfigName(DefaultName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) {
				return nil, errors.Configuration("config", "read config", err)
			}
		}
	}

	cfg := defaults
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Configuration("config", "decode config", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every scalar default so environment overrides apply
// to keys absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("paths.source", d.Paths.Source)
	v.SetDefault("paths.research", d.Paths.Research)
	v.SetDefault("paths.production", d.Paths.Production)
	v.SetDefault("paths.work", d.Paths.Work)

	v.SetDefault("deployment.min_critical_confidence", d.Deployment.MinCriticalConfidence)
	v.SetDefault("deployment.near_margin", d.Deployment.NearMargin)

	v.SetDefault("quality.weights.completeness", d.Quality.Weights.Completeness)
	v.SetDefault("quality.weights.accuracy", d.Quality.Weights.Accuracy)
	v.SetDefault("quality.weights.consistency", d.Quality.Weights.Consistency)
	v.SetDefault("quality.weights.research_validation", d.Quality.Weights.ResearchValidation)
	v.SetDefault("quality.weights.peer_agreement", d.Quality.Weights.PeerAgreement)
	v.SetDefault("quality.grades.excellent", d.Quality.Grades.Excellent)
	v.SetDefault("quality.grades.good", d.Quality.Grades.Good)
	v.SetDefault("quality.grades.acceptable", d.Quality.Grades.Acceptable)
	v.SetDefault("quality.grades.poor", d.Quality.Grades.Poor)
	v.SetDefault("quality.extra_property_bonus", d.Quality.ExtraPropertyBonus)
	v.SetDefault("quality.max_bonus", d.Quality.MaxBonus)

	v.SetDefault("cross_validation.z_threshold", d.CrossValidation.ZThreshold)
	v.SetDefault("cross_validation.percentile_low", d.CrossValidation.PercentileLow)
	v.SetDefault("cross_validation.percentile_high", d.CrossValidation.PercentileHigh)
	v.SetDefault("cross_validation.iqr_multiplier", d.CrossValidation.IQRMultiplier)
	v.SetDefault("cross_validation.min_peers", d.CrossValidation.MinPeers)
	v.SetDefault("cross_validation.max_peers", d.CrossValidation.MaxPeers)
	v.SetDefault("cross_validation.max_peer_deviation", d.CrossValidation.MaxPeerDeviation)
	v.SetDefault("cross_validation.workers", d.CrossValidation.Workers)

	v.SetDefault("peers.threshold", d.Peers.Threshold)

	v.SetDefault("release.batch_size", d.Release.BatchSize)
	v.SetDefault("release.auto_rollback_on_failure", d.Release.AutoRollbackOnFailure)
	v.SetDefault("release.stop_on_item_failure", d.Release.StopOnItemFailure)
	v.SetDefault("release.keep_staging", d.Release.KeepStaging)
	v.SetDefault("release.gates.schema_completeness", d.Release.Gates.SchemaCompleteness)
	v.SetDefault("release.gates.cross_reference", d.Release.Gates.CrossReference)
	v.SetDefault("release.gates.range_validity", d.Release.Gates.RangeValidity)
	v.SetDefault("release.gates.unit_plausibility", d.Release.Gates.UnitPlausibility)

	v.SetDefault("monitoring.dir", d.Monitoring.Dir)
	for kind, spec := range d.Monitoring.Schedules {
		v.SetDefault("monitoring.schedules."+kind, spec)
	}
	v.SetDefault("monitoring.thresholds.quality_drop", d.Monitoring.Thresholds.QualityDrop)
	v.SetDefault("monitoring.thresholds.variance_increase", d.Monitoring.Thresholds.VarianceIncrease)
	v.SetDefault("monitoring.thresholds.completeness_drop", d.Monitoring.Thresholds.CompletenessDrop)
	v.SetDefault("monitoring.thresholds.anomaly_warning", d.Monitoring.Thresholds.AnomalyWarning)
	v.SetDefault("monitoring.thresholds.anomaly_critical", d.Monitoring.Thresholds.AnomalyCritical)

	v.SetDefault("report.dir", d.Report.Dir)
	v.SetDefault("report.format", d.Report.Format)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
}

// MonitoringDir returns the monitor state directory.
func (c *Config) MonitoringDir() string {
	if c.Monitoring.Dir != "" {
		return c.Monitoring.Dir
	}
	return filepath.Join(c.Paths.Work, constants.MonitoringDir)
}

// ReportsDir returns the report directory.
func (c *Config) ReportsDir() string {
	if c.Report.Dir != "" {
		return c.Report.Dir
	}
	return filepath.Join(c.Paths.Work, constants.ReportsDir)
}

// HistoryPath returns the history database path.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.Paths.Work, constants.HistoryDB)
}
