// Package ai provides the facade over the model runtime: dense and sparse
// embedding and cross-encoder scoring. All model access in the service goes
// through this package.
package ai

import (
	"context"
	"math"
	"time"

	"github.com/neo-alexandria/neoalex/internal/model"
)

// Common model access constants
const (
	// DefaultDimensions is the dense embedding dimension.
	DefaultDimensions = 768

	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// MaxBatchSize is the maximum allowed batch size.
	MaxBatchSize = 256

	// DefaultTimeout is the default timeout for model requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3
)

// Embedder generates dense vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// SparseEmbedder generates sparse term-weight embeddings for text.
type SparseEmbedder interface {
	// SparseEmbed generates the sparse embedding for a single text.
	SparseEmbed(ctx context.Context, text string) (model.SparseVector, error)

	// ModelName returns the model identifier.
	ModelName() string
}

// ScoredPair is a cross-encoder relevance judgment for one document.
type ScoredPair struct {
	// Index is the position of the document in the request slice.
	Index int `json:"index"`
	// Score is the raw relevance score; higher is more relevant.
	Score float64 `json:"score"`
}

// CrossEncoder scores query/document pairs jointly.
type CrossEncoder interface {
	// ScorePairs scores each document against the query. The result has one
	// entry per document, in arbitrary order, addressed by Index.
	ScorePairs(ctx context.Context, query string, docs []string) ([]ScoredPair, error)

	// Available checks if the cross-encoder is ready.
	Available(ctx context.Context) bool
}

// Client bundles every model capability the service consumes.
type Client interface {
	Embedder
	SparseEmbedder
	CrossEncoder
}

// normalizeVector normalizes a vector to unit length. Zero vectors are
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
