package search

import (
	"strings"
)

const snippetMaxLen = 200

// buildSnippet returns a window of at most 200 characters around the first
// matched term, with every matched term wrapped in <mark> tags. Returns ""
// when no term matches.
func buildSnippet(text string, terms []string) string {
	if text == "" || len(terms) == 0 {
		return ""
	}

	lower := strings.ToLower(text)

	first := -1
	firstLen := 0
	for _, term := range terms {
		if term == "" {
			continue
		}
		if i := strings.Index(lower, term); i >= 0 && (first == -1 || i < first) {
			first = i
			firstLen = len(term)
		}
	}
	if first == -1 {
		return ""
	}

	// Center the window on the first match, then snap to word boundaries.
	start := first - (snippetMaxLen-firstLen)/2
	if start < 0 {
		start = 0
	}
	end := start + snippetMaxLen
	if end > len(text) {
		end = len(text)
		if start = end - snippetMaxLen; start < 0 {
			start = 0
		}
	}

	if start > 0 {
		if i := strings.IndexByte(text[start:end], ' '); i >= 0 && start+i+1 < first {
			start += i + 1
		}
	}
	if end < len(text) {
		if i := strings.LastIndexByte(text[start:end], ' '); i >= 0 && start+i > first+firstLen {
			end = start + i
		}
	}

	return highlightTerms(text[start:end], terms)
}

// highlightTerms wraps case-insensitive occurrences of each term in
// <mark>...</mark>, preserving the original casing of the text.
func highlightTerms(window string, terms []string) string {
	var b strings.Builder
	lower := strings.ToLower(window)
	n := len(window)

	// marked[i] is the match length starting at i, 0 if none. Longer terms
	// win so "learning" is not broken by a nested "earn".
	marked := make([]int, n)
	for _, term := range terms {
		if term == "" {
			continue
		}
		for off := 0; ; {
			i := strings.Index(lower[off:], term)
			if i < 0 {
				break
			}
			pos := off + i
			if len(term) > marked[pos] {
				marked[pos] = len(term)
			}
			off = pos + len(term)
		}
	}

	for i := 0; i < n; {
		if l := marked[i]; l > 0 {
			b.WriteString("<mark>")
			b.WriteString(window[i : i+l])
			b.WriteString("</mark>")
			i += l
			continue
		}
		b.WriteByte(window[i])
		i++
	}

	return b.String()
}

// snippetSource is the text snippets are drawn from: the title, then the
// description.
func snippetSource(title, description string) string {
	switch {
	case title == "":
		return description
	case description == "":
		return title
	default:
		return title + ". " + description
	}
}
