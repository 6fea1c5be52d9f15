package search

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo-alexandria/neoalex/internal/ai"
	"github.com/neo-alexandria/neoalex/internal/model"
	"github.com/neo-alexandria/neoalex/internal/store"
)

// fakeCrossEncoder scores documents by token overlap with the query and
// counts calls, so tests can observe cache hits.
type fakeCrossEncoder struct {
	calls int
	fail  bool
	slow  time.Duration
}

func (f *fakeCrossEncoder) ScorePairs(ctx context.Context, query string, docs []string) ([]ai.ScoredPair, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("model unavailable")
	}
	if f.slow > 0 {
		select {
		case <-time.After(f.slow):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	qTokens := strings.Fields(strings.ToLower(query))
	pairs := make([]ai.ScoredPair, len(docs))
	for i, doc := range docs {
		lower := strings.ToLower(doc)
		var score float64
		for _, tok := range qTokens {
			if strings.Contains(lower, tok) {
				score++
			}
		}
		pairs[i] = ai.ScoredPair{Index: i, Score: score}
	}
	return pairs, nil
}

func (f *fakeCrossEncoder) Available(ctx context.Context) bool { return !f.fail }

func newRerankStore(t *testing.T) store.ResourceStore {
	t.Helper()
	s, err := store.NewSQLiteResourceStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	now := time.Now().UTC()
	for id, doc := range map[string][2]string{
		"r1": {"Rust ownership explained", "Memory safety without garbage collection"},
		"r2": {"Cooking with cast iron", "Searing steak at high heat"},
		"r3": {"Ownership transfer in distributed systems", "Lease protocols and fencing"},
	} {
		require.NoError(t, s.Save(ctx, &model.Resource{
			ID: id, Title: doc[0], Description: doc[1],
			IngestionStatus: model.IngestionCompleted,
			CreatedAt:       now, UpdatedAt: now,
		}))
	}
	return s
}

func TestRerankerOrdersByRelevance(t *testing.T) {
	ctx := context.Background()
	enc := &fakeCrossEncoder{}
	r := NewReranker(enc, newRerankStore(t), time.Second)

	ranked := r.Rerank(ctx, "ownership explained", []string{"r2", "r1", "r3"}, 3, nil)
	require.Len(t, ranked, 3)
	assert.Equal(t, "r1", ranked[0].ID)
	assert.Equal(t, "r3", ranked[1].ID)
	assert.Equal(t, "r2", ranked[2].ID)
}

func TestRerankerTruncatesToTopK(t *testing.T) {
	ctx := context.Background()
	r := NewReranker(&fakeCrossEncoder{}, newRerankStore(t), time.Second)

	ranked := r.Rerank(ctx, "ownership", []string{"r1", "r2", "r3"}, 2, nil)
	assert.Len(t, ranked, 2)
}

func TestRerankerFailureReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	r := NewReranker(&fakeCrossEncoder{fail: true}, newRerankStore(t), time.Second)

	ranked := r.Rerank(ctx, "ownership", []string{"r1", "r2"}, 2, nil)
	assert.Empty(t, ranked)
}

func TestRerankerTimeoutReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	r := NewReranker(&fakeCrossEncoder{slow: time.Second}, newRerankStore(t), 20*time.Millisecond)

	ranked := r.Rerank(ctx, "ownership", []string{"r1", "r2"}, 2, nil)
	assert.Empty(t, ranked)
}

func TestRerankerCache(t *testing.T) {
	ctx := context.Background()
	enc := &fakeCrossEncoder{}
	r := NewReranker(enc, newRerankStore(t), time.Second)

	cache, err := NewRerankCache(16)
	require.NoError(t, err)

	first := r.Rerank(ctx, "ownership", []string{"r1", "r3"}, 2, cache)
	require.NotEmpty(t, first)
	assert.Equal(t, 1, enc.calls)

	// Same candidate set in a different order hits the cache.
	second := r.Rerank(ctx, "ownership", []string{"r3", "r1"}, 2, cache)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, enc.calls)

	// A different top_k is a different key.
	r.Rerank(ctx, "ownership", []string{"r1", "r3"}, 1, cache)
	assert.Equal(t, 2, enc.calls)
}

func TestRerankerEmptyInputs(t *testing.T) {
	ctx := context.Background()
	r := NewReranker(&fakeCrossEncoder{}, newRerankStore(t), time.Second)

	assert.Empty(t, r.Rerank(ctx, "q", nil, 5, nil))
	assert.Empty(t, r.Rerank(ctx, "q", []string{"r1"}, 0, nil))
	assert.Empty(t, r.Rerank(ctx, "", []string{"r1"}, 5, nil))
}
