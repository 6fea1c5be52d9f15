package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryBareTerms(t *testing.T) {
	p := ParseQuery("golang concurrency patterns")

	require.Len(t, p.Clauses, 3)
	for _, c := range p.Clauses {
		assert.False(t, c.Not)
		assert.False(t, c.Or)
		assert.Empty(t, c.Field)
	}
	assert.Equal(t, "golang", p.Clauses[0].Term)
	assert.Equal(t, "concurrency", p.Clauses[1].Term)
	assert.Equal(t, "patterns", p.Clauses[2].Term)
}

func TestParseQueryOperators(t *testing.T) {
	p := ParseQuery("cats OR dogs NOT birds")

	require.Len(t, p.Clauses, 3)
	assert.Equal(t, "cats", p.Clauses[0].Term)
	assert.Equal(t, "dogs", p.Clauses[1].Term)
	assert.True(t, p.Clauses[1].Or)
	assert.Equal(t, "birds", p.Clauses[2].Term)
	assert.True(t, p.Clauses[2].Not)
}

func TestParseQueryExplicitAND(t *testing.T) {
	p := ParseQuery("cats AND dogs")

	require.Len(t, p.Clauses, 2)
	assert.False(t, p.Clauses[1].Or)
	assert.False(t, p.Clauses[1].Not)
}

func TestParseQueryPhrase(t *testing.T) {
	p := ParseQuery(`"machine learning" basics`)

	require.Len(t, p.Clauses, 2)
	assert.Equal(t, "machine learning", p.Clauses[0].Term)
	assert.True(t, p.Clauses[0].Phrase)
	assert.Equal(t, "basics", p.Clauses[1].Term)
	assert.False(t, p.Clauses[1].Phrase)
}

func TestParseQueryFieldScoped(t *testing.T) {
	p := ParseQuery("title:rust description:async")

	require.Len(t, p.Clauses, 2)
	assert.Equal(t, "title", p.Clauses[0].Field)
	assert.Equal(t, "rust", p.Clauses[0].Term)
	assert.Equal(t, "description", p.Clauses[1].Field)
	assert.Equal(t, "async", p.Clauses[1].Term)

	// Unknown field names stay part of the term.
	p = ParseQuery("author:king")
	require.Len(t, p.Clauses, 1)
	assert.Empty(t, p.Clauses[0].Field)
	assert.Equal(t, "authorking", p.Clauses[0].Term)
}

func TestParseQueryPrefix(t *testing.T) {
	p := ParseQuery("program*")

	require.Len(t, p.Clauses, 1)
	assert.Equal(t, "program", p.Clauses[0].Term)
	assert.True(t, p.Clauses[0].Prefix)
}

func TestParseQueryPreservesLanguageNames(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"c++", "c++"},
		{"c#", "c#"},
		{"node.js", "node.js"},
		{".hidden.", "hidden"},
	}

	for _, tt := range tests {
		p := ParseQuery(tt.input)
		require.Len(t, p.Clauses, 1, "input: %q", tt.input)
		assert.Equal(t, tt.expected, p.Clauses[0].Term, "input: %q", tt.input)
	}
}

func TestParseQueryLeadingNegation(t *testing.T) {
	p := ParseQuery("NOT birds cats")

	// The positive clause moves to the front so boolean rendering stays valid.
	require.Len(t, p.Clauses, 2)
	assert.Equal(t, "cats", p.Clauses[0].Term)
	assert.False(t, p.Clauses[0].Not)
	assert.Equal(t, "birds", p.Clauses[1].Term)
	assert.True(t, p.Clauses[1].Not)
}

func TestParseQueryAllNegative(t *testing.T) {
	p := ParseQuery("NOT birds NOT cats")
	assert.True(t, p.Empty())
}

func TestParsedQueryTerms(t *testing.T) {
	p := ParseQuery(`"Machine Learning" Python NOT java python`)

	// Lowercased, deduplicated, negatives excluded, phrases split.
	assert.Equal(t, []string{"machine", "learning", "python"}, p.Terms())
}

func TestParsedQueryFTS5(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare terms", "cats dogs", `"cats" AND "dogs"`},
		{"or", "cats OR dogs", `"cats" OR "dogs"`},
		{"not", "cats NOT dogs", `"cats" NOT "dogs"`},
		{"field", "title:rust", `title: "rust"`},
		{"prefix", "prog*", `"prog"*`},
		{"phrase", `"hello world"`, `"hello world"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseQuery(tt.input).FTS5())
		})
	}
}

func TestHasSpecialTerms(t *testing.T) {
	assert.True(t, ParseQuery("c++").hasSpecialTerms())
	assert.True(t, ParseQuery("node.js tutorial").hasSpecialTerms())
	assert.False(t, ParseQuery("plain words").hasSpecialTerms())
	// Negative clauses don't force the fallback path.
	assert.False(t, ParseQuery("plain NOT c++").hasSpecialTerms())
}
