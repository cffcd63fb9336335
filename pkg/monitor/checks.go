package monitor

import (
	"fmt"
	"math"
	"sort"
)

// Check names a comparison against the baseline.
type Check string

// Checks.
const (
	CheckQualityRegression Check = "quality_regression"
	CheckDrift             Check = "data_drift"
	CheckCompleteness      Check = "completeness_loss"
	CheckAnomaly           Check = "anomaly"
)

// Severity of an alert.
type Severity string

// Alert severities.
const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Thresholds tune the checks.
type Thresholds struct {
	// QualityDrop is the relative mean quality drop that raises an alert.
	QualityDrop float64 `mapstructure:"quality_drop" yaml:"quality_drop" json:"quality_drop"`
	// VarianceIncrease is the relative variance increase counted as drift.
	VarianceIncrease float64 `mapstructure:"variance_increase" yaml:"variance_increase" json:"variance_increase"`
	// CompletenessDrop is the relative completeness rate drop that raises an alert.
	CompletenessDrop float64 `mapstructure:"completeness_drop" yaml:"completeness_drop" json:"completeness_drop"`
	AnomalyWarning   float64 `mapstructure:"anomaly_warning" yaml:"anomaly_warning" json:"anomaly_warning"`
	AnomalyCritical  float64 `mapstructure:"anomaly_critical" yaml:"anomaly_critical" json:"anomaly_critical"`
}

// DefaultThresholds returns the default check thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		QualityDrop:      0.05,
		VarianceIncrease: 0.5,
		CompletenessDrop: 0.05,
		AnomalyWarning:   3,
		AnomalyCritical:  4,
	}
}

// relativeDrop returns (base - cur) / base, or 0 when base is not positive.
func relativeDrop(base, cur float64) float64 {
	if base <= 0 {
		return 0
	}
	return (base - cur) / base
}

// runCheck compares current metrics against the baseline.
func runCheck(check Check, base, cur *Metrics, th Thresholds) []Alert {
	switch check {
	case CheckQualityRegression:
		return qualityRegression(base, cur, th)
	case CheckDrift:
		return drift(base, cur, th)
	case CheckCompleteness:
		return completenessLoss(base, cur, th)
	case CheckAnomaly:
		return anomalies(base, cur, th)
	default:
		return nil
	}
}

func qualityRegression(base, cur *Metrics, th Thresholds) []Alert {
	drop := relativeDrop(base.MeanQuality, cur.MeanQuality)
	if drop <= th.QualityDrop {
		return nil
	}
	sev := SeverityWarning
	if drop > 2*th.QualityDrop {
		sev = SeverityCritical
	}
	return []Alert{{
		Type:          CheckQualityRegression,
		Severity:      sev,
		Metric:        "mean_quality",
		BaselineValue: base.MeanQuality,
		CurrentValue:  cur.MeanQuality,
		Delta:         cur.MeanQuality - base.MeanQuality,
		Message:       fmt.Sprintf("mean quality dropped %.1f%% (%.3f -> %.3f)", drop*100, base.MeanQuality, cur.MeanQuality),
	}}
}

func drift(base, cur *Metrics, th Thresholds) []Alert {
	var alerts []Alert
	for _, key := range sharedKeys(base, cur) {
		b, c := base.Distributions[key], cur.Distributions[key]
		if b.Variance == 0 {
			continue
		}
		increase := (c.Variance - b.Variance) / b.Variance
		if increase <= th.VarianceIncrease {
			continue
		}
		alerts = append(alerts, Alert{
			Type:          CheckDrift,
			Severity:      SeverityWarning,
			Metric:        "variance:" + key,
			BaselineValue: b.Variance,
			CurrentValue:  c.Variance,
			Delta:         c.Variance - b.Variance,
			Message:       fmt.Sprintf("variance of %s grew %.0f%%", key, increase*100),
		})
	}
	return alerts
}

func completenessLoss(base, cur *Metrics, th Thresholds) []Alert {
	var alerts []Alert
	if cur.FileCount < base.FileCount {
		alerts = append(alerts, Alert{
			Type:          CheckCompleteness,
			Severity:      SeverityCritical,
			Metric:        "file_count",
			BaselineValue: float64(base.FileCount),
			CurrentValue:  float64(cur.FileCount),
			Delta:         float64(cur.FileCount - base.FileCount),
			Message:       fmt.Sprintf("production file count fell from %d to %d", base.FileCount, cur.FileCount),
		})
	}
	if drop := relativeDrop(base.CompletenessRate, cur.CompletenessRate); drop > th.CompletenessDrop {
		alerts = append(alerts, Alert{
			Type:          CheckCompleteness,
			Severity:      SeverityWarning,
			Metric:        "completeness_rate",
			BaselineValue: base.CompletenessRate,
			CurrentValue:  cur.CompletenessRate,
			Delta:         cur.CompletenessRate - base.CompletenessRate,
			Message:       fmt.Sprintf("completeness rate dropped %.1f%%", drop*100),
		})
	}
	return alerts
}

func anomalies(base, cur *Metrics, th Thresholds) []Alert {
	var alerts []Alert
	for _, key := range sharedKeys(base, cur) {
		b, c := base.Distributions[key], cur.Distributions[key]
		if b.Stdev == 0 {
			continue
		}
		z := math.Abs(c.Mean-b.Mean) / b.Stdev
		var sev Severity
		switch {
		case z > th.AnomalyCritical:
			sev = SeverityCritical
		case z > th.AnomalyWarning:
			sev = SeverityWarning
		default:
			continue
		}
		alerts = append(alerts, Alert{
			Type:          CheckAnomaly,
			Severity:      sev,
			Metric:        "mean:" + key,
			BaselineValue: b.Mean,
			CurrentValue:  c.Mean,
			Delta:         c.Mean - b.Mean,
			Message:       fmt.Sprintf("mean of %s moved %.1f baseline standard deviations", key, z),
		})
	}
	return alerts
}

func sharedKeys(base, cur *Metrics) []string {
	var keys []string
	for key := range cur.Distributions {
		if _, ok := base.Distributions[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
