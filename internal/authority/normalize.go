// Package authority maintains canonical forms for subjects, creators and
// publishers, subject suggestions, and the rule-based personal
// classification scheme.
package authority

import (
	"strings"
	"unicode"
)

// builtinSynonyms maps common abbreviations to canonical subject labels.
// The table is immutable after startup.
var builtinSynonyms = map[string]string{
	"ml":   "Machine Learning",
	"ai":   "Artificial Intelligence",
	"py":   "Python",
	"js":   "JavaScript",
	"nlp":  "Natural Language Processing",
	"db":   "Databases",
	"k8s":  "Kubernetes",
	"cv":   "Computer Vision",
	"math": "Mathematics",
}

// smallWords stay lowercase in title case unless first or last.
var smallWords = map[string]bool{
	"of": true, "and": true, "in": true, "on": true,
	"for": true, "to": true, "the": true, "a": true, "an": true,
}

// cleanLabel strips and collapses whitespace and replaces the separator
// characters ",;|" with spaces.
func cleanLabel(raw string) string {
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case ',', ';', '|':
			return ' '
		}
		return r
	}, raw)
	return strings.Join(strings.Fields(replaced), " ")
}

// lookupSynonym resolves a cleaned label through the built-in table.
func lookupSynonym(cleaned string) (string, bool) {
	canonical, ok := builtinSynonyms[strings.ToLower(cleaned)]
	return canonical, ok
}

// titleCase title-cases a label keeping small words lowercase except in
// first or last position. Tokens already containing an uppercase letter
// after the first rune (acronyms, camelCase names) are left untouched.
func titleCase(label string) string {
	words := strings.Fields(label)
	for i, w := range words {
		lower := strings.ToLower(w)
		if smallWords[lower] && i != 0 && i != len(words)-1 {
			words[i] = lower
			continue
		}
		words[i] = capitalizeWord(w)
	}
	return strings.Join(words, " ")
}

func capitalizeWord(w string) string {
	runes := []rune(w)
	if len(runes) == 0 {
		return w
	}
	for _, r := range runes[1:] {
		if unicode.IsUpper(r) {
			// Mixed or all caps: assume intentional.
			return w
		}
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// NormalizeCreator canonicalizes a person or organization name: trim and
// collapse whitespace, flip "Last, First" to "First Last", then smart
// title-case where all-caps tokens of up to four letters (acronyms like
// IBM, NASA) keep their case.
func NormalizeCreator(raw string) string {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return ""
	}

	if i := strings.Index(name, ","); i > 0 {
		last := strings.TrimSpace(name[:i])
		first := strings.TrimSpace(name[i+1:])
		if first != "" {
			name = first + " " + last
		} else {
			name = last
		}
	}

	words := strings.Fields(name)
	for i, w := range words {
		if isShortAcronym(w) {
			continue
		}
		words[i] = capitalizeWord(strings.ToLower(w))
	}
	return strings.Join(words, " ")
}

// NormalizePublisher applies the same rules as NormalizeCreator.
func NormalizePublisher(raw string) string {
	return NormalizeCreator(raw)
}

// isShortAcronym reports whether w is an all-caps token of 2 to 4 letters.
func isShortAcronym(w string) bool {
	letters := 0
	for _, r := range w {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
		letters++
	}
	return letters >= 2 && letters <= 4
}
