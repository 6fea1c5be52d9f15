package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lexicalBackends runs the same behavioral suite against both index
// implementations.
var lexicalBackends = []struct {
	name string
	new  func(t *testing.T) LexicalIndex
}{
	{
		name: "sqlite",
		new: func(t *testing.T) LexicalIndex {
			idx, err := NewSQLiteLexicalIndex("", DefaultLexicalConfig())
			require.NoError(t, err)
			t.Cleanup(func() { _ = idx.Close() })
			return idx
		},
	},
	{
		name: "bleve",
		new: func(t *testing.T) LexicalIndex {
			idx, err := NewBleveLexicalIndex("", DefaultLexicalConfig())
			require.NoError(t, err)
			t.Cleanup(func() { _ = idx.Close() })
			return idx
		},
	},
}

func seedLexical(t *testing.T, idx LexicalIndex) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{
		{
			ID:          "go-book",
			Title:       "The Go Programming Language",
			Description: "A comprehensive guide to writing idiomatic Go code",
			Subject:     []string{"programming", "golang"},
			Creator:     "Donovan",
		},
		{
			ID:          "py-book",
			Title:       "Fluent Python",
			Description: "Clear, concise, and effective programming in Python",
			Subject:     []string{"programming", "python"},
			Creator:     "Ramalho",
		},
		{
			ID:          "cook-book",
			Title:       "The Joy of Cooking",
			Description: "Classic recipes for the home kitchen",
			Subject:     []string{"cooking"},
			Creator:     "Rombauer",
		},
	}))
}

func TestLexicalIndexSearch(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend.name, func(t *testing.T) {
			ctx := context.Background()
			idx := backend.new(t)
			seedLexical(t, idx)

			results, err := idx.Search(ctx, "python", 10)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "py-book", results[0].DocID)
			assert.Greater(t, results[0].Score, 0.0)

			results, err = idx.Search(ctx, "programming", 10)
			require.NoError(t, err)
			assert.Len(t, results, 2)
		})
	}
}

func TestLexicalIndexTitleOutranksDescription(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend.name, func(t *testing.T) {
			ctx := context.Background()
			idx := backend.new(t)

			require.NoError(t, idx.Index(ctx, []*Document{
				{ID: "in-title", Title: "Kubernetes Operators", Description: "Building controllers"},
				{ID: "in-desc", Title: "Cloud Infrastructure", Description: "Includes a chapter on kubernetes"},
			}))

			results, err := idx.Search(ctx, "kubernetes", 10)
			require.NoError(t, err)
			require.Len(t, results, 2)
			assert.Equal(t, "in-title", results[0].DocID)
		})
	}
}

func TestLexicalIndexBooleanOperators(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend.name, func(t *testing.T) {
			ctx := context.Background()
			idx := backend.new(t)
			seedLexical(t, idx)

			results, err := idx.Search(ctx, "programming NOT python", 10)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "go-book", results[0].DocID)

			results, err = idx.Search(ctx, "python OR cooking", 10)
			require.NoError(t, err)
			assert.Len(t, results, 2)
		})
	}
}

func TestLexicalIndexIdentifierQuery(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend.name, func(t *testing.T) {
			ctx := context.Background()
			idx := backend.new(t)

			require.NoError(t, idx.Index(ctx, []*Document{
				{ID: "api-doc", Title: "getUserById reference", Description: "Endpoint documentation"},
			}))

			// Identifier-aware tokenization lets plain words hit camelCase.
			results, err := idx.Search(ctx, "user", 10)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "api-doc", results[0].DocID)
		})
	}
}

func TestLexicalIndexDelete(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend.name, func(t *testing.T) {
			ctx := context.Background()
			idx := backend.new(t)
			seedLexical(t, idx)

			require.NoError(t, idx.Delete(ctx, []string{"py-book"}))
			assert.Equal(t, 2, idx.Count())

			results, err := idx.Search(ctx, "python", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestLexicalIndexReindexReplaces(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend.name, func(t *testing.T) {
			ctx := context.Background()
			idx := backend.new(t)

			require.NoError(t, idx.Index(ctx, []*Document{
				{ID: "doc", Title: "Original title"},
			}))
			require.NoError(t, idx.Index(ctx, []*Document{
				{ID: "doc", Title: "Replacement heading"},
			}))
			assert.Equal(t, 1, idx.Count())

			results, err := idx.Search(ctx, "original", 10)
			require.NoError(t, err)
			assert.Empty(t, results)

			results, err = idx.Search(ctx, "replacement", 10)
			require.NoError(t, err)
			assert.Len(t, results, 1)
		})
	}
}

func TestLexicalIndexEmptyQuery(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend.name, func(t *testing.T) {
			ctx := context.Background()
			idx := backend.new(t)
			seedLexical(t, idx)

			results, err := idx.Search(ctx, "   ", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestLexicalIndexAllIDs(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend.name, func(t *testing.T) {
			idx := backend.new(t)
			seedLexical(t, idx)

			ids, err := idx.AllIDs()
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"go-book", "py-book", "cook-book"}, ids)
		})
	}
}

func TestSQLiteLexicalIndexSpecialTermFallback(t *testing.T) {
	ctx := context.Background()
	idx, err := NewSQLiteLexicalIndex("", DefaultLexicalConfig())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "cpp-book", Title: "Effective C++", Description: "55 specific ways to improve your programs"},
		{ID: "c-book", Title: "The C Programming Language", Description: "The classic reference"},
	}))

	// "c++" would be destroyed by the FTS tokenizer; the contains scan
	// matches it against the raw fields.
	results, err := idx.Search(ctx, "c++", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cpp-book", results[0].DocID)
}

func TestNewLexicalIndexFactory(t *testing.T) {
	idx, err := NewLexicalIndex("", DefaultLexicalConfig(), "sqlite")
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	idx, err = NewLexicalIndex("", DefaultLexicalConfig(), "")
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = NewLexicalIndex("", DefaultLexicalConfig(), "elastic")
	assert.Error(t, err)
}
