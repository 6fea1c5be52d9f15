// Package quality holds the quality-record arithmetic: weighted overall
// computation, weight validation, degradation and outlier detection.
// Dimension scoring itself happens in an external collaborator; this
// package validates and applies its output and emits the quality events.
package quality

import (
	"math"

	"github.com/neo-alexandria/neoalex/internal/errors"
	"github.com/neo-alexandria/neoalex/internal/model"
)

const (
	// weightTolerance is the allowed deviation of a weight sum from 1.
	weightTolerance = 1e-6

	// DegradationThreshold is the minimum drop in overall quality that
	// counts as degradation.
	DegradationThreshold = 0.2

	// DefaultOutlierThreshold flags resources whose outlier score falls
	// below it.
	DefaultOutlierThreshold = 0.3
)

// DefaultWeights returns the standard dimension weights.
func DefaultWeights() model.QualityWeights {
	return model.QualityWeights{
		Accuracy:     0.30,
		Completeness: 0.25,
		Consistency:  0.20,
		Timeliness:   0.15,
		Relevance:    0.10,
	}
}

// ValidateWeights checks that all weights are non-negative and sum to 1
// within tolerance.
func ValidateWeights(w model.QualityWeights) error {
	for _, v := range []float64{w.Accuracy, w.Completeness, w.Consistency, w.Timeliness, w.Relevance} {
		if v < 0 {
			return errors.InvalidArgument("quality weights must be non-negative, got %v", v)
		}
	}
	if math.Abs(w.Sum()-1) > weightTolerance {
		return errors.InvalidArgument("quality weights must sum to 1, got %v", w.Sum())
	}
	return nil
}

// ValidateRecord checks dimension ranges and weights.
func ValidateRecord(rec model.QualityRecord) error {
	dims := map[string]float64{
		"accuracy":     rec.Accuracy,
		"completeness": rec.Completeness,
		"consistency":  rec.Consistency,
		"timeliness":   rec.Timeliness,
		"relevance":    rec.Relevance,
	}
	for name, v := range dims {
		if v < 0 || v > 1 {
			return errors.InvalidArgument("quality %s must be in [0,1], got %v", name, v)
		}
	}
	return ValidateWeights(rec.Weights)
}

// Overall computes the weighted overall score of a record. Zero weights
// fall back to the defaults.
func Overall(rec model.QualityRecord) float64 {
	w := rec.Weights
	if w.Sum() == 0 {
		w = DefaultWeights()
	}
	return w.Accuracy*rec.Accuracy +
		w.Completeness*rec.Completeness +
		w.Consistency*rec.Consistency +
		w.Timeliness*rec.Timeliness +
		w.Relevance*rec.Relevance
}

// Degradation returns the drop between two overall scores, clamped at 0.
func Degradation(oldOverall, newOverall float64) float64 {
	return math.Max(0, oldOverall-newOverall)
}

// IsDegraded reports whether the drop crosses the degradation threshold.
func IsDegraded(oldOverall, newOverall float64) bool {
	return Degradation(oldOverall, newOverall) >= DegradationThreshold
}

// IsOutlier reports whether a stored outlier score falls below threshold.
// A threshold of 0 uses the default.
func IsOutlier(outlierScore, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultOutlierThreshold
	}
	return outlierScore < threshold
}
