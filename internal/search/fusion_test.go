package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuseRRFBasic(t *testing.T) {
	lists := [][]string{
		{"d1", "d2", "d3"},
		{"d2", "d1", "d4"},
		{"d3", "d1", "d2"},
	}

	fused := FuseRRF(lists, nil, 60)
	require.Len(t, fused, 4)

	// d1 ranks 0,1,1; d2 ranks 1,0,2; d3 ranks 2,-,0; d4 ranks -,2,-.
	assert.Equal(t, "d1", fused[0].ID)
	assert.Equal(t, "d2", fused[1].ID)
	assert.Equal(t, "d3", fused[2].ID)
	assert.Equal(t, "d4", fused[3].ID)

	for i := 1; i < len(fused); i++ {
		assert.GreaterOrEqual(t, fused[i-1].Score, fused[i].Score)
	}
}

func TestFuseRRFScoreFormula(t *testing.T) {
	fused := FuseRRF([][]string{{"a", "b"}}, []float64{1}, 60)
	require.Len(t, fused, 2)

	// Single list with weight 1: a at rank 0, b at rank 1.
	assert.InDelta(t, 1.0/60.0, fused[0].Score, 1e-12)
	assert.InDelta(t, 1.0/61.0, fused[1].Score, 1e-12)
}

func TestFuseRRFAbsentSummandOmitted(t *testing.T) {
	fused := FuseRRF([][]string{{"a"}, {"b"}}, []float64{0.5, 0.5}, 60)
	require.Len(t, fused, 2)

	// Each document appears in exactly one list at rank 0.
	assert.InDelta(t, 0.5/60.0, fused[0].Score, 1e-12)
	assert.InDelta(t, 0.5/60.0, fused[1].Score, 1e-12)
	// Equal scores: id ascending.
	assert.Equal(t, "a", fused[0].ID)
}

func TestFuseRRFWeightedLegsDiffer(t *testing.T) {
	lists := [][]string{{"lex"}, {"dense"}}

	fused := FuseRRF(lists, []float64{0.9, 0.1}, 60)
	require.Len(t, fused, 2)
	assert.Equal(t, "lex", fused[0].ID)

	fused = FuseRRF(lists, []float64{0.1, 0.9}, 60)
	assert.Equal(t, "dense", fused[0].ID)
}

func TestFuseRRFEmptyLists(t *testing.T) {
	assert.Empty(t, FuseRRF([][]string{{}, {}, {}}, nil, 60))
	assert.Empty(t, FuseRRF(nil, nil, 60))
}

func TestSanitizeWeights(t *testing.T) {
	tests := []struct {
		name     string
		weights  []float64
		n        int
		expected []float64
	}{
		{"missing", nil, 2, []float64{0.5, 0.5}},
		{"mismatch", []float64{1, 2}, 3, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}},
		{"all zero", []float64{0, 0}, 2, []float64{0.5, 0.5}},
		{"negative", []float64{-1, 2}, 2, []float64{0.5, 0.5}},
		{"normalized", []float64{1, 3}, 2, []float64{0.25, 0.75}},
		{"already normalized", []float64{0.25, 0.75}, 2, []float64{0.25, 0.75}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeWeights(tt.weights, tt.n)
			require.Len(t, got, tt.n)

			var sum float64
			for i, w := range got {
				assert.InDelta(t, tt.expected[i], w, 1e-9)
				sum += w
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		})
	}
}
