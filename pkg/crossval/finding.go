package crossval

import (
	"github.com/propgate/propgate/pkg/catalog"
)

// Flag names one piece of evidence about a property value.
type Flag string

// Statistical flags.
const (
	FlagZScoreOutlier     Flag = "z_score_outlier"
	FlagExtremePercentile Flag = "extreme_percentile"
	FlagIQROutlier        Flag = "iqr_outlier"
)

// Peer flags.
const (
	FlagHighPeerDeviation Flag = "high_peer_deviation"
)

// Minor flags.
const (
	FlagRangeViolation Flag = "range_violation"
)

// No-data flags.
const (
	FlagNoDistribution         Flag = "no_property_distribution"
	FlagInsufficientIQR        Flag = "insufficient_samples_for_iqr"
	FlagInsufficientPercentile Flag = "insufficient_samples_for_percentile"
	FlagInsufficientPeers      Flag = "insufficient_peers"
	FlagZeroPeerMean           Flag = "zero_peer_mean"
)

// IsStatistical reports whether f comes from the category distribution.
func (f Flag) IsStatistical() bool {
	switch f {
	case FlagZScoreOutlier, FlagExtremePercentile, FlagIQROutlier:
		return true
	}
	return false
}

// IsPeer reports whether f comes from the peer comparison.
func (f Flag) IsPeer() bool {
	return f == FlagHighPeerDeviation
}

// IsNoData reports whether f only records missing evidence.
func (f Flag) IsNoData() bool {
	switch f {
	case FlagNoDistribution, FlagInsufficientIQR, FlagInsufficientPercentile, FlagInsufficientPeers, FlagZeroPeerMean:
		return true
	}
	return false
}

// Severity ranks the combined evidence.
type Severity string

// Severities.
const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities from none (0) to high (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// Impact returns the confidence penalty for a severity.
func (s Severity) Impact() float64 {
	switch s {
	case SeverityHigh:
		return -0.30
	case SeverityMedium:
		return -0.15
	case SeverityLow:
		return -0.05
	default:
		return 0
	}
}

// Finding is the cross-validation result for one item property.
type Finding struct {
	Item             catalog.ItemID `json:"item" yaml:"item"`
	Property         string         `json:"property" yaml:"property"`
	Value            float64        `json:"value" yaml:"value"`
	Flags            []Flag         `json:"flags,omitempty" yaml:"flags,omitempty"`
	ZScore           *float64       `json:"z_score,omitempty" yaml:"z_score,omitempty"`
	Percentile       *float64       `json:"percentile,omitempty" yaml:"percentile,omitempty"`
	PeerMean         *float64       `json:"peer_mean,omitempty" yaml:"peer_mean,omitempty"`
	PeerCount        int            `json:"peer_count" yaml:"peer_count"`
	PeerDeviation    *float64       `json:"peer_deviation,omitempty" yaml:"peer_deviation,omitempty"`
	Severity         Severity       `json:"severity" yaml:"severity"`
	ConfidenceImpact float64        `json:"confidence_impact" yaml:"confidence_impact"`
}

// Has reports whether the finding carries flag.
func (f Finding) Has(flag Flag) bool {
	for _, got := range f.Flags {
		if got == flag {
			return true
		}
	}
	return false
}

// NoDataOnly reports whether every flag records missing evidence.
func (f Finding) NoDataOnly() bool {
	if len(f.Flags) == 0 {
		return false
	}
	for _, flag := range f.Flags {
		if !flag.IsNoData() {
			return false
		}
	}
	return true
}

// HasPeerComparison reports whether a peer deviation was computed.
func (f Finding) HasPeerComparison() bool {
	return f.PeerDeviation != nil
}

// IsOutlier reports whether statistical or peer evidence fired.
func (f Finding) IsOutlier() bool {
	return f.Severity == SeverityMedium || f.Severity == SeverityHigh
}
