package search

import (
	"regexp"
	"strings"
)

var questionStarters = map[string]bool{
	"who": true, "what": true, "when": true,
	"where": true, "why": true, "how": true,
}

var codeKeywords = map[string]bool{
	"def": true, "class": true, "function": true,
	"return": true, "import": true,
}

var mathKeywords = map[string]bool{
	"sum": true, "integral": true, "derivative": true,
	"equation": true, "formula": true,
}

var (
	// name() style calls and dotted member access.
	callPattern   = regexp.MustCompile(`\w+\(`)
	memberPattern = regexp.MustCompile(`\w\.\w`)
)

// AdaptiveWeights derives [w_lexical, w_dense, w_sparse] from query features.
// Starting from [1,1,1], multiplicative adjustments favor the lexical leg for
// short keyword queries, the dense leg for long natural-language questions,
// and the sparse leg for code- or math-flavored text. The result is
// normalized to sum 1. An empty query yields equal weights.
func AdaptiveWeights(text string) []float64 {
	weights := []float64{1, 1, 1}

	words := strings.Fields(text)
	if len(words) == 0 {
		return normalizeWeights(weights)
	}

	if len(words) <= 3 {
		weights[0] *= 1.5
		weights[1] *= 0.8
	} else if len(words) > 10 {
		weights[1] *= 1.5
		weights[0] *= 0.8
	}

	if questionStarters[strings.ToLower(words[0])] {
		weights[1] *= 1.3
	}

	if hasCodeMarkers(text, words) {
		weights[2] *= 1.5
		weights[1] *= 0.9
	}

	if hasMathMarkers(text, words) {
		weights[2] *= 1.5
		weights[1] *= 0.9
	}

	return normalizeWeights(weights)
}

func normalizeWeights(weights []float64) []float64 {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum == 0 {
		return []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}
	}
	out := make([]float64, len(weights))
	for i, w := range weights {
		out[i] = w / sum
	}
	return out
}

func hasCodeMarkers(text string, words []string) bool {
	if strings.ContainsAny(text, "[]{}") {
		return true
	}
	for _, w := range words {
		if codeKeywords[strings.ToLower(strings.Trim(w, "():;,"))] {
			return true
		}
	}
	for _, op := range []string{"==", "!=", "->", "=>", "::", "&&", "||"} {
		if strings.Contains(text, op) {
			return true
		}
	}
	return callPattern.MatchString(text) || memberPattern.MatchString(text)
}

func hasMathMarkers(text string, words []string) bool {
	for _, w := range words {
		if mathKeywords[strings.ToLower(strings.Trim(w, ".,;:"))] {
			return true
		}
	}
	if strings.ContainsAny(text, "+*/^=") {
		return true
	}
	if dashBetweenOperands(text) {
		return true
	}
	return strings.ContainsAny(text, "∑∫√π≈≠≤≥")
}

// dashBetweenOperands reports a '-' used as an operator: both neighbors are
// spaces or digits. Hyphens inside words carry no math signal.
func dashBetweenOperands(text string) bool {
	for i := 0; i < len(text); i++ {
		if text[i] != '-' {
			continue
		}
		if operandByte(text, i-1) && operandByte(text, i+1) {
			return true
		}
	}
	return false
}

func operandByte(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return false
	}
	b := text[i]
	return b == ' ' || ('0' <= b && b <= '9')
}
