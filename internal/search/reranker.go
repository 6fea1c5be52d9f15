package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/neo-alexandria/neoalex/internal/ai"
	"github.com/neo-alexandria/neoalex/internal/store"
)

// rerankDescriptionLimit bounds the document text fed to the cross-encoder.
const rerankDescriptionLimit = 500

// RankedID is one reranked candidate.
type RankedID struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// RerankCache memoizes rerank results per (query, candidate set, top_k). It
// is owned by the caller and handed to Rerank per request; the engine never
// shares one implicitly.
type RerankCache struct {
	cache *lru.Cache[string, []RankedID]
}

// NewRerankCache creates an LRU rerank cache.
func NewRerankCache(size int) (*RerankCache, error) {
	c, err := lru.New[string, []RankedID](size)
	if err != nil {
		return nil, err
	}
	return &RerankCache{cache: c}, nil
}

// rerankCacheKey hashes query, sorted candidate ids and top_k. Sorting makes
// the key insensitive to fused order, which changes run to run under timing.
func rerankCacheKey(query string, ids []string, topK int) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, "\x00")))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(topK)))
	return hex.EncodeToString(h.Sum(nil))
}

// Reranker rescores fused candidates with a cross-encoder.
type Reranker struct {
	encoder   ai.CrossEncoder
	resources store.ResourceStore
	timeout   time.Duration
}

// NewReranker creates a reranker over the given cross-encoder and resource
// store.
func NewReranker(encoder ai.CrossEncoder, resources store.ResourceStore, timeout time.Duration) *Reranker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Reranker{encoder: encoder, resources: resources, timeout: timeout}
}

// Rerank scores the candidates against the query and returns at most topK
// results sorted by score descending. Any failure (model unavailable,
// timeout, load error) returns an empty slice; the caller keeps the fused
// order. The cache may be nil.
func (r *Reranker) Rerank(ctx context.Context, query string, candidateIDs []string, topK int, cache *RerankCache) []RankedID {
	if len(candidateIDs) == 0 || topK <= 0 || query == "" {
		return []RankedID{}
	}
	if topK > len(candidateIDs) {
		topK = len(candidateIDs)
	}

	var key string
	if cache != nil {
		key = rerankCacheKey(query, candidateIDs, topK)
		if cached, ok := cache.cache.Get(key); ok {
			return cached
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resources, err := r.resources.GetMany(ctx, candidateIDs)
	if err != nil {
		slog.Warn("rerank candidate load failed, keeping fused order", "error", err)
		return []RankedID{}
	}

	ids := make([]string, 0, len(resources))
	docs := make([]string, 0, len(resources))
	for _, res := range resources {
		desc := res.Description
		if len(desc) > rerankDescriptionLimit {
			desc = desc[:rerankDescriptionLimit]
		}
		ids = append(ids, res.ID)
		docs = append(docs, strings.TrimSpace(res.Title+" "+desc))
	}
	if len(docs) == 0 {
		return []RankedID{}
	}

	pairs, err := r.encoder.ScorePairs(ctx, query, docs)
	if err != nil {
		slog.Warn("rerank scoring failed, keeping fused order", "error", err)
		return []RankedID{}
	}

	ranked := make([]RankedID, 0, len(pairs))
	for _, p := range pairs {
		if p.Index < 0 || p.Index >= len(ids) {
			continue
		}
		ranked = append(ranked, RankedID{ID: ids[p.Index], Score: p.Score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	if cache != nil {
		cache.cache.Add(key, ranked)
	}
	return ranked
}
