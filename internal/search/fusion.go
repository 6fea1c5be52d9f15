package search

import (
	"log/slog"
	"sort"
)

// FusedResult is one document after rank fusion.
type FusedResult struct {
	ID    string
	Score float64
}

// FuseRRF merges ranked id lists with weighted reciprocal rank fusion:
//
//	RRF(d) = sum_j w_j / (k + rank_j(d))
//
// with rank_j(d) the 0-based rank of d in list j and the summand omitted when
// d is absent from a list. The per-leg scores are deliberately discarded;
// only ranks matter. Ties are broken by id ascending for determinism.
func FuseRRF(lists [][]string, weights []float64, k int) []FusedResult {
	if k <= 0 {
		k = 60
	}

	weights = sanitizeWeights(weights, len(lists))

	scores := make(map[string]float64)
	for j, list := range lists {
		w := weights[j]
		for rank, id := range list {
			scores[id] += w / float64(k+rank)
		}
	}

	fused := make([]FusedResult, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, FusedResult{ID: id, Score: score})
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})

	return fused
}

// sanitizeWeights validates fusion weights against the list count: missing,
// mismatched or all-zero weights fall back to equal weights; anything else is
// normalized to sum 1.
func sanitizeWeights(weights []float64, n int) []float64 {
	if n == 0 {
		return nil
	}

	equal := func() []float64 {
		w := make([]float64, n)
		for i := range w {
			w[i] = 1.0 / float64(n)
		}
		return w
	}

	if len(weights) == 0 {
		return equal()
	}
	if len(weights) != n {
		slog.Warn("fusion weight count mismatch, using equal weights",
			"weights", len(weights), "lists", n)
		return equal()
	}

	var sum float64
	for _, w := range weights {
		if w < 0 {
			slog.Warn("negative fusion weight, using equal weights")
			return equal()
		}
		sum += w
	}
	if sum == 0 {
		return equal()
	}

	normalized := make([]float64, n)
	for i, w := range weights {
		normalized[i] = w / sum
	}
	return normalized
}
