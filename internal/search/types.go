// Package search implements the hybrid retrieval engine: lexical, dense and
// sparse legs fused by weighted reciprocal rank fusion, with optional
// cross-encoder reranking, adaptive weighting, facets and snippets.
package search

import (
	"time"

	"github.com/neo-alexandria/neoalex/internal/errors"
	"github.com/neo-alexandria/neoalex/internal/model"
	"github.com/neo-alexandria/neoalex/internal/store"
)

// Query is a single search request.
type Query struct {
	// Text is the query text. Empty text selects structured mode: filters,
	// sorting and facets only, no relevance scoring and no snippets.
	Text string `json:"text"`

	Filters store.Filters `json:"filters"`

	// Limit is the page size, in [1, MaxLimit]. Zero means the default.
	Limit  int `json:"limit"`
	Offset int `json:"offset"`

	// SortBy is one of relevance, updated_at, created_at, quality_score,
	// title. Empty means relevance.
	SortBy  string `json:"sort_by"`
	SortDir string `json:"sort_dir"`

	// HybridWeight, when set with EnableReranking false, selects two-way
	// mode: final = (1-w)*lexical + w*dense over min-max normalized scores.
	HybridWeight *float64 `json:"hybrid_weight,omitempty"`

	EnableReranking   bool `json:"enable_reranking"`
	AdaptiveWeighting bool `json:"adaptive_weighting"`
}

// MethodContributions counts the candidates each retrieval leg supplied.
type MethodContributions struct {
	FTS5   int `json:"fts5"`
	Dense  int `json:"dense"`
	Sparse int `json:"sparse"`
}

// SearchResults is the engine response.
type SearchResults struct {
	Total    int               `json:"total"`
	Items    []*model.Resource `json:"items"`
	Facets   *store.Facets     `json:"facets"`
	Snippets map[string]string `json:"snippets"`

	LatencyMS           float64             `json:"latency_ms"`
	MethodContributions MethodContributions `json:"method_contributions"`

	// WeightsUsed is [w_lexical, w_dense, w_sparse] after normalization.
	WeightsUsed []float64 `json:"weights_used"`
}

// MethodRun is one leg's raw output for method comparison.
type MethodRun struct {
	IDs       []string  `json:"ids"`
	Scores    []float64 `json:"scores"`
	LatencyMS float64   `json:"latency_ms"`
}

// Comparison holds the per-method result sets returned by CompareMethods.
type Comparison struct {
	Query  string    `json:"query"`
	FTS5   MethodRun `json:"fts5"`
	Dense  MethodRun `json:"dense"`
	Sparse MethodRun `json:"sparse"`
}

// Config carries the engine tunables, typically sourced from the service
// configuration.
type Config struct {
	// LexicalWeight, DenseWeight and SparseWeight are the default three-way
	// fusion weights, normalized to sum 1 at use.
	LexicalWeight float64
	DenseWeight   float64
	SparseWeight  float64

	// RRFConstant is the fusion smoothing parameter k.
	RRFConstant int

	DefaultLimit int
	MaxLimit     int

	// RerankTopKCap bounds rerank candidates: top_k = min(limit, cap).
	RerankTopKCap int
	RerankTimeout time.Duration

	// LegTimeout is the per-leg retrieval budget.
	LegTimeout time.Duration
}

// DefaultEngineConfig returns the engine defaults.
func DefaultEngineConfig() Config {
	return Config{
		LexicalWeight: 1.0 / 3,
		DenseWeight:   1.0 / 3,
		SparseWeight:  1.0 / 3,
		RRFConstant:   60,
		DefaultLimit:  25,
		MaxLimit:      100,
		RerankTopKCap: 100,
		RerankTimeout: 2 * time.Second,
		LegTimeout:    3 * time.Second,
	}
}

// validate applies defaults and range checks to the query in place.
func (q *Query) validate(cfg Config) error {
	if q.Limit == 0 {
		q.Limit = cfg.DefaultLimit
	}
	if q.Limit < 1 || q.Limit > cfg.MaxLimit {
		return errors.InvalidArgument("limit %d out of range [1,%d]", q.Limit, cfg.MaxLimit)
	}
	if q.Offset < 0 {
		return errors.InvalidArgument("offset must be non-negative, got %d", q.Offset)
	}
	if q.HybridWeight != nil && (*q.HybridWeight < 0 || *q.HybridWeight > 1) {
		return errors.InvalidArgument("hybrid_weight %g out of range [0,1]", *q.HybridWeight)
	}

	if q.SortBy == "" {
		q.SortBy = store.SortRelevance
	}
	switch q.SortBy {
	case store.SortRelevance, store.SortUpdatedAt, store.SortCreatedAt, store.SortQuality, store.SortTitle:
	default:
		return errors.InvalidArgument("unknown sort_by %q", q.SortBy)
	}

	if q.SortDir == "" {
		q.SortDir = "desc"
	}
	switch q.SortDir {
	case "asc", "desc":
	default:
		return errors.InvalidArgument("sort_dir must be \"asc\" or \"desc\", got %q", q.SortDir)
	}

	return nil
}
