package store

import (
	"strings"
	"unicode"
)

// Fields accepted in field:term query syntax.
var queryFields = map[string]bool{
	"title":       true,
	"description": true,
	"subject":     true,
}

// Clause is one unit of a parsed lexical query.
type Clause struct {
	Field  string // "", "title", "description", "subject"
	Term   string
	Phrase bool // quoted phrase
	Prefix bool // trailing wildcard
	Not    bool // negated
	Or     bool // joined to the previous clause with OR instead of AND
}

// ParsedQuery is a lexical query reduced to boolean clauses. Bare tokens are
// AND-combined; explicit AND, OR and NOT are honored case-insensitively.
type ParsedQuery struct {
	Clauses []Clause
}

// Empty reports whether the query has no usable clauses.
func (p ParsedQuery) Empty() bool {
	return len(p.Clauses) == 0
}

// Terms returns the positive search terms, lowercased, for snippet
// highlighting and the contains-scan fallback. Phrases contribute their
// individual words.
func (p ParsedQuery) Terms() []string {
	var terms []string
	seen := make(map[string]bool)
	for _, c := range p.Clauses {
		if c.Not {
			continue
		}
		if c.Phrase {
			for _, w := range strings.Fields(strings.ToLower(c.Term)) {
				if !seen[w] {
					seen[w] = true
					terms = append(terms, w)
				}
			}
			continue
		}
		t := strings.ToLower(c.Term)
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	return terms
}

// ParseQuery turns raw user text into a ParsedQuery. Characters meaningless
// to the index are stripped, but tokens like "C++" or "C#" survive intact.
func ParseQuery(text string) ParsedQuery {
	var parsed ParsedQuery

	nextNot := false
	nextOr := false

	for _, tok := range splitQuery(text) {
		if tok.phrase {
			term := strings.TrimSpace(tok.text)
			if term == "" {
				continue
			}
			parsed.Clauses = append(parsed.Clauses, Clause{
				Term: term, Phrase: true, Not: nextNot, Or: nextOr,
			})
			nextNot, nextOr = false, false
			continue
		}

		switch strings.ToUpper(tok.text) {
		case "AND":
			continue
		case "OR":
			nextOr = true
			continue
		case "NOT":
			nextNot = true
			continue
		}

		var field string
		term := tok.text
		if i := strings.Index(term, ":"); i > 0 {
			name := strings.ToLower(term[:i])
			if queryFields[name] {
				field = name
				term = term[i+1:]
			}
		}

		prefix := strings.HasSuffix(term, "*")
		term = sanitizeTerm(strings.TrimSuffix(term, "*"))
		if term == "" {
			nextNot, nextOr = false, false
			continue
		}

		parsed.Clauses = append(parsed.Clauses, Clause{
			Field: field, Term: term, Prefix: prefix, Not: nextNot, Or: nextOr,
		})
		nextNot, nextOr = false, false
	}

	// A leading negation has nothing to subtract from; promote the first
	// positive clause to the front so boolean rendering stays valid.
	for i, c := range parsed.Clauses {
		if !c.Not {
			if i > 0 {
				first := parsed.Clauses[i]
				copy(parsed.Clauses[1:i+1], parsed.Clauses[:i])
				parsed.Clauses[0] = first
				parsed.Clauses[0].Or = false
			}
			return parsed
		}
	}
	if len(parsed.Clauses) > 0 {
		// All clauses negative: no positive basis, treat as empty.
		return ParsedQuery{}
	}
	return parsed
}

type queryToken struct {
	text   string
	phrase bool
}

// splitQuery splits on whitespace while keeping quoted phrases together.
func splitQuery(text string) []queryToken {
	var tokens []queryToken
	var current strings.Builder
	inQuote := false

	flush := func(phrase bool) {
		if current.Len() > 0 || phrase {
			tokens = append(tokens, queryToken{text: current.String(), phrase: phrase})
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case r == '"':
			if inQuote {
				flush(true)
				inQuote = false
			} else {
				flush(false)
				inQuote = true
			}
		case unicode.IsSpace(r) && !inQuote:
			flush(false)
		default:
			current.WriteRune(r)
		}
	}
	flush(inQuote)

	return tokens
}

// sanitizeTerm strips characters the index cannot match while preserving
// language-name style tokens ("c++", "c#", "node.js").
func sanitizeTerm(term string) string {
	var b strings.Builder
	for _, r := range term {
		if unicode.IsLetter(r) || unicode.IsDigit(r) ||
			r == '+' || r == '#' || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), ".-_")
}

// FTS5 renders the query in SQLite FTS5 MATCH syntax.
func (p ParsedQuery) FTS5() string {
	var b strings.Builder

	for i, c := range p.Clauses {
		if i > 0 {
			switch {
			case c.Not:
				b.WriteString(" NOT ")
			case c.Or:
				b.WriteString(" OR ")
			default:
				b.WriteString(" AND ")
			}
		}

		if c.Field != "" {
			b.WriteString(c.Field)
			b.WriteString(": ")
		}

		term := strings.ReplaceAll(c.Term, `"`, `""`)
		b.WriteString(`"`)
		b.WriteString(term)
		b.WriteString(`"`)
		if c.Prefix {
			b.WriteString("*")
		}
	}

	return b.String()
}

// hasSpecialTerms reports whether any positive term contains characters the
// FTS5 tokenizer would strip, in which case the contains scan is the only
// path that can match them.
func (p ParsedQuery) hasSpecialTerms() bool {
	for _, c := range p.Clauses {
		if c.Not {
			continue
		}
		for _, r := range c.Term {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
				return true
			}
		}
	}
	return false
}
