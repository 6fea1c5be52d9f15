package authority

import (
	"regexp"
	"strings"
	"unicode"
)

// Source weights for keyword hits.
const (
	weightTitle       = 3
	weightTags        = 2
	weightDescription = 1
)

// yearPattern boosts the history code when a plausible year token appears.
// Covers 1000-1999 and 2000-2019.
var yearPattern = regexp.MustCompile(`\b(1[0-9]{3}|20[01][0-9])\b`)

// classCodes in precedence order: ties resolve to the earliest code.
var classCodes = []string{"000", "400", "500", "900"}

// classKeywords are the rule sets for the four top-level personal codes.
var classKeywords = map[string][]string{
	// Computer science, information and general works.
	"000": {
		"computer", "software", "programming", "algorithm", "algorithms",
		"data", "database", "internet", "web", "code", "coding",
		"artificial intelligence", "machine learning", "network",
		"information", "technology", "encyclopedia",
	},
	// Language.
	"400": {
		"language", "languages", "linguistics", "grammar", "vocabulary",
		"translation", "dictionary", "syntax", "phonetics", "semantics",
		"english", "spanish", "french", "german", "etymology",
	},
	// Natural sciences and mathematics.
	"500": {
		"science", "physics", "chemistry", "biology", "mathematics",
		"math", "astronomy", "geology", "evolution", "quantum",
		"experiment", "theorem", "calculus", "genetics", "ecology",
	},
	// History and geography.
	"900": {
		"history", "historical", "war", "ancient", "century", "empire",
		"civilization", "revolution", "medieval", "geography",
		"archaeology", "dynasty", "colonial", "biography",
	},
}

// ClassifyText scores the four top-level codes by weighted keyword hits over
// title, tags and description and returns the winner. Ties resolve in code
// precedence order 000, 400, 500, 900; if nothing matches the result is
// "000".
func ClassifyText(title string, tags []string, description string) string {
	scores := make(map[string]int, len(classCodes))

	titleLower := strings.ToLower(title)
	descLower := strings.ToLower(description)
	tagsLower := strings.ToLower(strings.Join(tags, " "))

	sources := []struct {
		text   string
		tokens map[string]int
		weight int
	}{
		{titleLower, tokenCounts(titleLower), weightTitle},
		{tagsLower, tokenCounts(tagsLower), weightTags},
		{descLower, tokenCounts(descLower), weightDescription},
	}

	for code, keywords := range classKeywords {
		for _, kw := range keywords {
			for _, src := range sources {
				if strings.ContainsRune(kw, ' ') {
					// Multi-word keywords match as phrases.
					scores[code] += src.weight * strings.Count(src.text, kw)
				} else {
					scores[code] += src.weight * src.tokens[kw]
				}
			}
		}
	}

	// Year tokens suggest historical material.
	scores["900"] += weightTitle * len(yearPattern.FindAllString(titleLower, -1))
	scores["900"] += weightDescription * len(yearPattern.FindAllString(descLower, -1))

	best := "000"
	bestScore := 0
	for _, code := range classCodes {
		if scores[code] > bestScore {
			best = code
			bestScore = scores[code]
		}
	}
	return best
}

// tokenCounts splits lowercased text on non-alphanumeric runes and counts
// each token once per occurrence.
func tokenCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		counts[tok]++
	}
	return counts
}
