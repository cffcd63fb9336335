// Package config loads the propgate configuration.
//
// Settings come from a YAML file, PROPGATE_ environment variables and
// defaults, in that order of precedence (environment first). The three
// deployment thresholds have no defaults and must be set explicitly.
package config

import (
	"github.com/propgate/propgate/pkg/constants"
	"github.com/propgate/propgate/pkg/crossval"
	"github.com/propgate/propgate/pkg/gatekeeper"
	"github.com/propgate/propgate/pkg/monitor"
	"github.com/propgate/propgate/pkg/peers"
	"github.com/propgate/propgate/pkg/quality"
	"github.com/propgate/propgate/pkg/release"
	"github.com/propgate/propgate/pkg/stats"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROPGATE"

// Config is the full tunable set.
type Config struct {
	Paths           Paths                            `mapstructure:"paths" yaml:"paths"`
	Deployment      Deployment                       `mapstructure:"deployment" yaml:"deployment"`
	Quality         Quality                          `mapstructure:"quality" yaml:"quality"`
	CrossValidation CrossValidation                  `mapstructure:"cross_validation" yaml:"cross_validation"`
	Peers           Peers                            `mapstructure:"peers" yaml:"peers"`
	Release         Release                          `mapstructure:"release" yaml:"release"`
	Monitoring      Monitoring                       `mapstructure:"monitoring" yaml:"monitoring"`
	Report          Report                           `mapstructure:"report" yaml:"report"`
	History         History                          `mapstructure:"history" yaml:"history"`
	Categories      map[string]quality.CategoryRules `mapstructure:"categories" yaml:"categories"`
	Units           map[string][]string              `mapstructure:"units" yaml:"units"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

// Paths locate the stores propgate reads and writes.
type Paths struct {
	// Source holds the candidate item records.
	Source     string `mapstructure:"source" yaml:"source"`
	Research   string `mapstructure:"research" yaml:"research"`
	Production string `mapstructure:"production" yaml:"production"`
	// Work holds backups, staging, reports, monitoring state and history.
	Work string `mapstructure:"work" yaml:"work"`
}

// Deployment holds the gatekeeper thresholds. The pointer fields are
// required.
type Deployment struct {
	MinQualityScore       *float64 `mapstructure:"min_quality_score" yaml:"min_quality_score"`
	RequiredGrade         *string  `mapstructure:"required_grade" yaml:"required_grade"`
	MaxHighPriorityIssues *int     `mapstructure:"max_high_priority_issues" yaml:"max_high_priority_issues"`
	AcceptedGrades        []string `mapstructure:"accepted_grades" yaml:"accepted_grades"`
	MinCriticalConfidence float64  `mapstructure:"min_critical_confidence" yaml:"min_critical_confidence"`
	NearMargin            float64  `mapstructure:"near_margin" yaml:"near_margin"`
}

// Quality tunes the scorer.
type Quality struct {
	Weights            quality.Weights         `mapstructure:"weights" yaml:"weights"`
	Grades             quality.GradeThresholds `mapstructure:"grades" yaml:"grades"`
	ExtraPropertyBonus float64                 `mapstructure:"extra_property_bonus" yaml:"extra_property_bonus"`
	MaxBonus           float64                 `mapstructure:"max_bonus" yaml:"max_bonus"`
}

// CrossValidation tunes outlier detection.
type CrossValidation struct {
	ZThreshold       float64 `mapstructure:"z_threshold" yaml:"z_threshold"`
	PercentileLow    float64 `mapstructure:"percentile_low" yaml:"percentile_low"`
	PercentileHigh   float64 `mapstructure:"percentile_high" yaml:"percentile_high"`
	IQRMultiplier    float64 `mapstructure:"iqr_multiplier" yaml:"iqr_multiplier"`
	MinPeers         int     `mapstructure:"min_peers" yaml:"min_peers"`
	MaxPeers         int     `mapstructure:"max_peers" yaml:"max_peers"`
	MaxPeerDeviation float64 `mapstructure:"max_peer_deviation" yaml:"max_peer_deviation"`
	Workers          int     `mapstructure:"workers" yaml:"workers"`
}

// Peers tunes peer similarity.
type Peers struct {
	Threshold float64            `mapstructure:"threshold" yaml:"threshold"`
	Weights   map[string]float64 `mapstructure:"weights" yaml:"weights"`
}

// Gates toggles the release validation gates.
type Gates struct {
	SchemaCompleteness bool `mapstructure:"schema_completeness" yaml:"schema_completeness"`
	CrossReference     bool `mapstructure:"cross_reference" yaml:"cross_reference"`
	RangeValidity      bool `mapstructure:"range_validity" yaml:"range_validity"`
	UnitPlausibility   bool `mapstructure:"unit_plausibility" yaml:"unit_plausibility"`
}

// Release tunes the release manager.
type Release struct {
	BatchSize             int   `mapstructure:"batch_size" yaml:"batch_size"`
	AutoRollbackOnFailure bool  `mapstructure:"auto_rollback_on_failure" yaml:"auto_rollback_on_failure"`
	StopOnItemFailure     bool  `mapstructure:"stop_on_item_failure" yaml:"stop_on_item_failure"`
	KeepStaging           bool  `mapstructure:"keep_staging" yaml:"keep_staging"`
	Gates                 Gates `mapstructure:"gates" yaml:"gates"`
}

// Monitoring tunes the continuous monitor.
type Monitoring struct {
	// Dir defaults to <work>/monitoring.
	Dir        string             `mapstructure:"dir" yaml:"dir"`
	Schedules  map[string]string  `mapstructure:"schedules" yaml:"schedules"`
	Thresholds monitor.Thresholds `mapstructure:"thresholds" yaml:"thresholds"`
}

// Report selects where and how reports are written.
type Report struct {
	// Dir defaults to <work>/reports.
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Format string `mapstructure:"format" yaml:"format"`
}

// History configures the run ledger.
type History struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Path defaults to <work>/history.db.
	Path string `mapstructure:"path" yaml:"path"`
}

// Defaults returns every tunable at its default. Deployment thresholds are
// left unset.
func Defaults() *Config {
	gates := release.DefaultGateOptions()
	return &Config{
		Paths: Paths{
			Source:     "data/items",
			Research:   "data/research",
			Production: "data/production",
			Work:       ".propgate",
		},
		Deployment: Deployment{
			NearMargin: gatekeeper.DefaultNearMargin,
		},
		Quality: Quality{
			Weights:            quality.DefaultWeights(),
			Grades:             quality.DefaultGradeThresholds(),
			ExtraPropertyBonus: quality.DefaultExtraPropertyBonus,
			MaxBonus:           quality.DefaultMaxCompletenessBonus,
		},
		CrossValidation: CrossValidation{
			ZThreshold:       crossval.DefaultZThreshold,
			PercentileLow:    crossval.DefaultPercentileLow,
			PercentileHigh:   crossval.DefaultPercentileHigh,
			IQRMultiplier:    stats.DefaultIQRMultiplier,
			MinPeers:         crossval.DefaultMinPeers,
			MaxPeers:         crossval.DefaultMaxPeers,
			MaxPeerDeviation: crossval.DefaultMaxPeerDeviation,
			Workers:          1,
		},
		Peers: Peers{
			Threshold: peers.DefaultThreshold,
		},
		Release: Release{
			BatchSize: release.DefaultBatchSize,
			Gates: Gates{
				SchemaCompleteness: gates.SchemaCompleteness,
				CrossReference:     gates.CrossReference,
				RangeValidity:      gates.RangeValidity,
				UnitPlausibility:   gates.UnitPlausibility,
			},
		},
		Monitoring: Monitoring{
			Schedules: map[string]string{
				string(monitor.KindQuick):   constants.DefaultQuickSchedule,
				string(monitor.KindFull):    constants.DefaultFullSchedule,
				string(monitor.KindQuality): constants.DefaultQualitySchedule,
				string(monitor.KindTrend):   constants.DefaultTrendSchedule,
			},
			Thresholds: monitor.DefaultThresholds(),
		},
		Report: Report{
			Format: "yaml",
		},
		History: History{
			Enabled: true,
		},
	}
}
