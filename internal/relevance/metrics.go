// Package relevance implements offline search-quality metrics: DCG, nDCG,
// recall, precision and MRR over graded relevance judgments.
package relevance

import (
	"math"
	"sort"
)

// Judgments maps doc ids to graded relevance in [0,3]. Ids absent from the
// map are treated as grade 0.
type Judgments map[string]int

// DCG computes discounted cumulative gain at k over a ranked id list:
// sum of (2^rel - 1) / log2(i + 2) for 0-based position i.
func DCG(ranked []string, judgments Judgments, k int) float64 {
	if k > len(ranked) {
		k = len(ranked)
	}

	var dcg float64
	for i := 0; i < k; i++ {
		rel := judgments[ranked[i]]
		if rel <= 0 {
			continue
		}
		dcg += (math.Pow(2, float64(rel)) - 1) / math.Log2(float64(i)+2)
	}
	return dcg
}

// NDCG computes normalized DCG at k. The ideal ordering ranks the judgment
// grades descending. Returns 0 when the ideal DCG is 0.
func NDCG(ranked []string, judgments Judgments, k int) float64 {
	idcg := idealDCG(judgments, k)
	if idcg == 0 {
		return 0
	}
	return DCG(ranked, judgments, k) / idcg
}

func idealDCG(judgments Judgments, k int) float64 {
	grades := make([]int, 0, len(judgments))
	for _, g := range judgments {
		if g > 0 {
			grades = append(grades, g)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(grades)))

	if k > len(grades) {
		k = len(grades)
	}

	var idcg float64
	for i := 0; i < k; i++ {
		idcg += (math.Pow(2, float64(grades[i])) - 1) / math.Log2(float64(i)+2)
	}
	return idcg
}

// Recall computes |top_k intersect relevant| / |relevant|, where relevant is
// every id judged greater than 0. Returns 0 when nothing is relevant.
func Recall(ranked []string, judgments Judgments, k int) float64 {
	var relevant int
	for _, g := range judgments {
		if g > 0 {
			relevant++
		}
	}
	if relevant == 0 {
		return 0
	}

	return float64(hitsAt(ranked, judgments, k)) / float64(relevant)
}

// Precision computes |top_k intersect relevant| / k. Returns 0 when k is 0.
func Precision(ranked []string, judgments Judgments, k int) float64 {
	if k <= 0 {
		return 0
	}
	return float64(hitsAt(ranked, judgments, k)) / float64(k)
}

func hitsAt(ranked []string, judgments Judgments, k int) int {
	if k > len(ranked) {
		k = len(ranked)
	}
	var hits int
	for i := 0; i < k; i++ {
		if judgments[ranked[i]] > 0 {
			hits++
		}
	}
	return hits
}

// MRR computes the reciprocal rank of the first relevant result, 1-based.
// Returns 0 when no ranked id is relevant.
func MRR(ranked []string, judgments Judgments) float64 {
	for i, id := range ranked {
		if judgments[id] > 0 {
			return 1 / float64(i+1)
		}
	}
	return 0
}
