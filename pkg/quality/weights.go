package quality

import (
	"fmt"
	"math"
)

// weightTolerance is how far the weight sum may stray from 1.
const weightTolerance = 1e-6

// Dimensions holds the five dimension scores of an item.
type Dimensions struct {
	Completeness       float64 `json:"completeness" yaml:"completeness"`
	Accuracy           float64 `json:"accuracy" yaml:"accuracy"`
	Consistency        float64 `json:"consistency" yaml:"consistency"`
	ResearchValidation float64 `json:"research_validation" yaml:"research_validation"`
	PeerAgreement      float64 `json:"peer_agreement" yaml:"peer_agreement"`
}

// Weights are the contributions of each dimension to the overall score.
type Weights struct {
	Completeness       float64 `mapstructure:"completeness" yaml:"completeness" json:"completeness"`
	Accuracy           float64 `mapstructure:"accuracy" yaml:"accuracy" json:"accuracy"`
	Consistency        float64 `mapstructure:"consistency" yaml:"consistency" json:"consistency"`
	ResearchValidation float64 `mapstructure:"research_validation" yaml:"research_validation" json:"research_validation"`
	PeerAgreement      float64 `mapstructure:"peer_agreement" yaml:"peer_agreement" json:"peer_agreement"`
}

// DefaultWeights returns the default dimension weights.
func DefaultWeights() Weights {
	return Weights{
		Completeness:       0.20,
		Accuracy:           0.30,
		Consistency:        0.25,
		ResearchValidation: 0.15,
		PeerAgreement:      0.10,
	}
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Completeness + w.Accuracy + w.Consistency + w.ResearchValidation + w.PeerAgreement
}

// Validate checks every weight is non-negative and that they sum to 1.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"completeness":        w.Completeness,
		"accuracy":            w.Accuracy,
		"consistency":         w.Consistency,
		"research_validation": w.ResearchValidation,
		"peer_agreement":      w.PeerAgreement,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s is negative: %v", name, v)
		}
	}
	if math.Abs(w.Sum()-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %.6f", w.Sum())
	}
	return nil
}

// Overall returns the weighted score clamped to [0,1].
func (w Weights) Overall(d Dimensions) float64 {
	score := w.Completeness*d.Completeness +
		w.Accuracy*d.Accuracy +
		w.Consistency*d.Consistency +
		w.ResearchValidation*d.ResearchValidation +
		w.PeerAgreement*d.PeerAgreement
	return clamp(score)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
