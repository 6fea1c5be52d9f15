package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weightsSum(w []float64) float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum
}

func TestAdaptiveWeightsShortQuery(t *testing.T) {
	w := AdaptiveWeights("ML AI")
	require.Len(t, w, 3)

	// Short keyword queries lean lexical.
	assert.Greater(t, w[0], w[1])
	assert.Greater(t, w[0], w[2])
	assert.InDelta(t, 1.0, weightsSum(w), 1e-9)
}

func TestAdaptiveWeightsCodeQuery(t *testing.T) {
	w := AdaptiveWeights("def fibonacci(n): return n")

	assert.GreaterOrEqual(t, w[2], w[0])
	assert.GreaterOrEqual(t, w[2], w[1])
	assert.InDelta(t, 1.0, weightsSum(w), 1e-9)
}

func TestAdaptiveWeightsLongQuery(t *testing.T) {
	w := AdaptiveWeights("find resources that explain how raft handles leader election when the network partitions")

	// Long natural-language queries lean dense.
	assert.Greater(t, w[1], w[0])
	assert.InDelta(t, 1.0, weightsSum(w), 1e-9)
}

func TestAdaptiveWeightsQuestion(t *testing.T) {
	base := AdaptiveWeights("raft consensus algorithms basics")
	question := AdaptiveWeights("what are raft consensus algorithms")

	// The question starter boosts the dense share.
	assert.Greater(t, question[1], base[1])
}

func TestAdaptiveWeightsMathQuery(t *testing.T) {
	w := AdaptiveWeights("derivative of x^2 + 3x")

	assert.GreaterOrEqual(t, w[2], w[0])
	assert.GreaterOrEqual(t, w[2], w[1])
}

func TestDashBetweenOperands(t *testing.T) {
	assert.True(t, dashBetweenOperands("10 - 4"))
	assert.True(t, dashBetweenOperands("10-4"))
	assert.False(t, dashBetweenOperands("state-of-the-art"))
	assert.False(t, dashBetweenOperands("run with -v enabled"))
	assert.False(t, dashBetweenOperands("-v"))
}

func TestAdaptiveWeightsSubtractionQuery(t *testing.T) {
	w := AdaptiveWeights("difference between 10 - 4 and 7")

	assert.GreaterOrEqual(t, w[2], w[1])

	// Hyphenated words alone do not read as math: the short-query lexical
	// boost stays ahead of an unboosted sparse leg.
	hy := AdaptiveWeights("state-of-the-art retrieval methods")
	assert.Greater(t, hy[0], hy[2])
}

func TestAdaptiveWeightsEmptyQuery(t *testing.T) {
	w := AdaptiveWeights("")
	require.Len(t, w, 3)
	for _, v := range w {
		assert.InDelta(t, 1.0/3, v, 1e-9)
	}
}

func TestAdaptiveWeightsAlwaysNormalized(t *testing.T) {
	queries := []string{
		"a", "two words", "what time", "import numpy as np",
		"sum of squares formula", "plain medium length query here",
		"   ", "c++ templates", "who wrote this",
	}

	for _, q := range queries {
		w := AdaptiveWeights(q)
		require.Len(t, w, 3, "query: %q", q)
		assert.InDelta(t, 1.0, weightsSum(w), 1e-9, "query: %q", q)
		for _, v := range w {
			assert.GreaterOrEqual(t, v, 0.0, "query: %q", q)
		}
	}
}

func TestMinMaxNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    []float64
		expected []float64
	}{
		{"spread", []float64{1, 3, 2}, []float64{0, 1, 0.5}},
		{"all equal", []float64{5, 5, 5}, []float64{1, 1, 1}},
		{"single", []float64{42}, []float64{1}},
		{"empty", nil, nil},
		{"negative range", []float64{-2, 0}, []float64{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := minMaxNormalize(tt.input)
			require.Len(t, got, len(tt.expected))
			for i := range got {
				assert.InDelta(t, tt.expected[i], got[i], 1e-9)
				assert.GreaterOrEqual(t, got[i], 0.0)
				assert.LessOrEqual(t, got[i], 1.0)
			}
		})
	}
}
