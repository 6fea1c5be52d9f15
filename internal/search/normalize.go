package search

// minMaxNormalize maps raw scores into [0,1] via min-max scaling. When every
// score is equal (including a single-element list) all outputs are 1, so a
// degenerate leg still contributes full weight to items it retrieved.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	out := make([]float64, len(scores))
	if max == min {
		for i := range out {
			out[i] = 1
		}
		return out
	}

	span := max - min
	for i, s := range scores {
		out[i] = (s - min) / span
	}
	return out
}
