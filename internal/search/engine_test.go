package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo-alexandria/neoalex/internal/ai"
	"github.com/neo-alexandria/neoalex/internal/errors"
	"github.com/neo-alexandria/neoalex/internal/model"
	"github.com/neo-alexandria/neoalex/internal/store"
)

const testDims = 64

type engineEnv struct {
	engine    *Engine
	resources store.ResourceStore
	lexical   store.LexicalIndex
	client    *ai.StaticClient
}

// newEngineEnv wires an engine over in-memory stores and the deterministic
// hash embedder.
func newEngineEnv(t *testing.T) *engineEnv {
	t.Helper()

	resources, err := store.NewSQLiteResourceStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resources.Close() })

	lexical, err := store.NewSQLiteLexicalIndex("", store.DefaultLexicalConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	dense, err := store.NewHNSWDenseIndex(store.DenseConfig{Dimensions: testDims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dense.Close() })

	sparse := store.NewMemSparseIndex()
	t.Cleanup(func() { _ = sparse.Close() })

	client := ai.NewStaticClient(testDims)

	cfg := DefaultEngineConfig()
	cfg.LegTimeout = time.Second

	return &engineEnv{
		engine:    NewEngine(cfg, resources, lexical, dense, sparse, client),
		resources: resources,
		lexical:   lexical,
		client:    client,
	}
}

// add persists a resource and indexes it in every leg.
func (env *engineEnv) add(t *testing.T, r *model.Resource) {
	t.Helper()
	ctx := context.Background()

	if r.IngestionStatus == "" {
		r.IngestionStatus = model.IngestionCompleted
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	require.NoError(t, env.resources.Save(ctx, r))

	require.NoError(t, env.lexical.Index(ctx, []*store.Document{{
		ID:                 r.ID,
		Title:              r.Title,
		Description:        r.Description,
		Subject:            r.Subject,
		Creator:            r.Creator,
		ClassificationCode: r.ClassificationCode,
	}}))

	text := r.Title + " " + r.Description
	vec, err := env.client.Embed(ctx, text)
	require.NoError(t, err)
	require.NoError(t, env.engine.dense.Add(ctx, []string{r.ID}, [][]float32{vec}))

	sv, err := env.client.SparseEmbed(ctx, text)
	require.NoError(t, err)
	require.NoError(t, env.engine.sparse.Add(ctx, r.ID, sv))
}

func (env *engineEnv) seedCorpus(t *testing.T) {
	t.Helper()
	docs := []struct {
		id, title, desc string
		subject         []string
	}{
		{"ml-intro", "Machine Learning Fundamentals", "Supervised and unsupervised learning basics", []string{"machine-learning"}},
		{"ml-deep", "Deep Learning with Neural Networks", "Backpropagation and gradient descent for machine learning", []string{"machine-learning", "neural-networks"}},
		{"go-conc", "Go Concurrency Patterns", "Goroutines, channels and pipelines", []string{"golang"}},
		{"db-index", "Database Indexing Strategies", "B-trees and hash indexes for query performance", []string{"databases"}},
		{"cook-pasta", "Fresh Pasta at Home", "Flour, eggs and a rolling pin", []string{"cooking"}},
	}
	for _, d := range docs {
		env.add(t, &model.Resource{
			ID: d.id, Title: d.title, Description: d.desc,
			Subject: d.subject, Language: "en", Type: "article",
		})
	}
}

func TestEngineThreeWaySearch(t *testing.T) {
	ctx := context.Background()
	env := newEngineEnv(t)
	env.seedCorpus(t)

	res, err := env.engine.Search(ctx, Query{Text: "machine learning"})
	require.NoError(t, err)

	require.NotZero(t, res.Total)
	require.NotEmpty(t, res.Items)
	assert.Equal(t, res.Total, len(resIDs(res)))

	// The two ML documents should lead.
	top2 := resIDs(res)[:2]
	assert.ElementsMatch(t, []string{"ml-intro", "ml-deep"}, top2)

	assert.InDelta(t, 1.0, weightsSum(res.WeightsUsed), 1e-9)
	assert.Greater(t, res.LatencyMS, 0.0)
	assert.NotZero(t, res.MethodContributions.FTS5)

	// Snippets highlight matched terms for page items.
	require.Contains(t, res.Snippets, "ml-intro")
	assert.Contains(t, res.Snippets["ml-intro"], "<mark>")
}

func TestEngineInvalidArguments(t *testing.T) {
	ctx := context.Background()
	env := newEngineEnv(t)

	bad := 1.5
	tests := []struct {
		name string
		q    Query
	}{
		{"limit too large", Query{Text: "q", Limit: 101}},
		{"negative offset", Query{Text: "q", Offset: -1}},
		{"hybrid weight out of range", Query{Text: "q", HybridWeight: &bad}},
		{"bad sort", Query{Text: "q", SortBy: "popularity"}},
		{"bad dir", Query{Text: "q", SortDir: "sideways"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.Search(ctx, tt.q)
			require.Error(t, err)
			assert.Equal(t, errors.KindInvalidArgument, errors.KindOf(err))
		})
	}
}

func TestEngineStructuredMode(t *testing.T) {
	ctx := context.Background()
	env := newEngineEnv(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		env.add(t, &model.Resource{
			ID:        fmt.Sprintf("en-%02d", i),
			Title:     fmt.Sprintf("English doc %d", i),
			Language:  "en",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	env.add(t, &model.Resource{ID: "fr-0", Title: "Document francais", Language: "fr", CreatedAt: base})

	res, err := env.engine.Search(ctx, Query{
		Filters: store.Filters{Language: []string{"en"}},
		SortBy:  store.SortCreatedAt,
		SortDir: "desc",
		Limit:   10,
	})
	require.NoError(t, err)

	// The 10 most recent English resources, newest first.
	assert.Equal(t, 12, res.Total)
	require.Len(t, res.Items, 10)
	assert.Equal(t, "en-11", res.Items[0].ID)
	assert.Equal(t, "en-02", res.Items[9].ID)

	// No snippets in structured mode; facets cover the whole filtered set.
	assert.Empty(t, res.Snippets)
	require.NotNil(t, res.Facets)
	require.NotEmpty(t, res.Facets.Language)
	assert.Equal(t, store.FacetCount{Value: "en", Count: 12}, res.Facets.Language[0])
}

func TestEngineTwoWayPureKeyword(t *testing.T) {
	ctx := context.Background()
	env := newEngineEnv(t)
	env.seedCorpus(t)

	w := 0.0
	res, err := env.engine.Search(ctx, Query{
		Text:         "machine learning",
		HybridWeight: &w,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Items)

	// With weight 0 the head of the ranking must equal the lexical leg's
	// order; dense-only documents score 0 and sink below it.
	lexResults, err := env.lexical.Search(ctx, "machine learning", 100)
	require.NoError(t, err)
	require.NotEmpty(t, lexResults)
	require.GreaterOrEqual(t, len(res.Items), len(lexResults))

	for i, lex := range lexResults {
		assert.Equal(t, lex.DocID, res.Items[i].ID, "position %d", i)
	}

	assert.Equal(t, []float64{1, 0, 0}, res.WeightsUsed)
	assert.Zero(t, res.MethodContributions.Sparse)
}

func TestEngineAdaptiveWeightsReported(t *testing.T) {
	ctx := context.Background()
	env := newEngineEnv(t)
	env.seedCorpus(t)

	res, err := env.engine.Search(ctx, Query{Text: "ML AI", AdaptiveWeighting: true})
	require.NoError(t, err)

	require.Len(t, res.WeightsUsed, 3)
	// Short query: lexical weight leads.
	assert.Greater(t, res.WeightsUsed[0], res.WeightsUsed[1])
	assert.InDelta(t, 1.0, weightsSum(res.WeightsUsed), 1e-9)
}

func TestEngineFiltersRestrictResults(t *testing.T) {
	ctx := context.Background()
	env := newEngineEnv(t)
	env.seedCorpus(t)

	res, err := env.engine.Search(ctx, Query{
		Text:    "learning",
		Filters: store.Filters{SubjectAny: []string{"neural-networks"}},
	})
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	assert.Equal(t, "ml-deep", res.Items[0].ID)
}

func TestEngineExcludesUningested(t *testing.T) {
	ctx := context.Background()
	env := newEngineEnv(t)
	env.seedCorpus(t)
	env.add(t, &model.Resource{
		ID: "ml-pending", Title: "Machine Learning Draft",
		IngestionStatus: model.IngestionPending,
	})

	res, err := env.engine.Search(ctx, Query{Text: "machine learning"})
	require.NoError(t, err)
	assert.NotContains(t, resIDs(res), "ml-pending")
}

func TestEnginePagination(t *testing.T) {
	ctx := context.Background()
	env := newEngineEnv(t)
	env.seedCorpus(t)

	full, err := env.engine.Search(ctx, Query{Text: "learning patterns indexing pasta", Limit: 10})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(full.Items), 4)

	page1, err := env.engine.Search(ctx, Query{Text: "learning patterns indexing pasta", Limit: 2})
	require.NoError(t, err)
	page2, err := env.engine.Search(ctx, Query{Text: "learning patterns indexing pasta", Limit: 2, Offset: 2})
	require.NoError(t, err)

	union := append(resIDs(page1), resIDs(page2)...)
	assert.Equal(t, resIDs(full)[:len(union)], union)

	for _, id := range resIDs(page1) {
		assert.NotContains(t, resIDs(page2), id)
	}
}

func TestEngineNoMatches(t *testing.T) {
	ctx := context.Background()
	env := newEngineEnv(t)
	env.seedCorpus(t)

	res, err := env.engine.Search(ctx, Query{Text: "zzzzqqqq"})
	require.NoError(t, err)

	assert.Zero(t, res.Total)
	assert.Empty(t, res.Items)
	assert.Greater(t, res.LatencyMS, 0.0)
}

func TestEngineDegradesWithoutModels(t *testing.T) {
	ctx := context.Background()
	env := newEngineEnv(t)
	env.seedCorpus(t)

	// An engine with no model client still answers over the lexical leg.
	bare := NewEngine(env.engine.cfg, env.resources, env.lexical, nil, nil, nil)

	res, err := bare.Search(ctx, Query{Text: "machine learning"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Items)
	assert.Zero(t, res.MethodContributions.Dense)
	assert.Zero(t, res.MethodContributions.Sparse)
}

func TestEngineRerankingKeepsOrderOnFailure(t *testing.T) {
	ctx := context.Background()
	env := newEngineEnv(t)
	env.seedCorpus(t)

	plain, err := env.engine.Search(ctx, Query{Text: "machine learning"})
	require.NoError(t, err)

	// The static client's cross-encoder works; with a rerank-capable engine
	// the result set stays the same set of documents.
	reranked, err := env.engine.Search(ctx, Query{Text: "machine learning", EnableReranking: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, resIDs(plain), resIDs(reranked))
}

func TestEngineCompareMethods(t *testing.T) {
	ctx := context.Background()
	env := newEngineEnv(t)
	env.seedCorpus(t)

	cmp, err := env.engine.CompareMethods(ctx, "machine learning", 10)
	require.NoError(t, err)

	assert.Equal(t, "machine learning", cmp.Query)
	assert.NotEmpty(t, cmp.FTS5.IDs)
	assert.Len(t, cmp.FTS5.Scores, len(cmp.FTS5.IDs))
	assert.GreaterOrEqual(t, cmp.FTS5.LatencyMS, 0.0)
	assert.NotEmpty(t, cmp.Dense.IDs)
	assert.NotEmpty(t, cmp.Sparse.IDs)
}

func resIDs(res *SearchResults) []string {
	ids := make([]string, len(res.Items))
	for i, r := range res.Items {
		ids[i] = r.ID
	}
	return ids
}
