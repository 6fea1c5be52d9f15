// Package store provides persistence for the retrieval core: resource rows
// and facets in SQLite, the lexical full-text index (SQLite FTS5 or Bleve),
// the dense vector index (HNSW), and the sparse term-weight index.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/neo-alexandria/neoalex/internal/model"
)

// Document is the text projection of a resource fed to the lexical index.
type Document struct {
	ID                 string
	Title              string
	Description        string
	Subject            []string
	Creator            string
	ClassificationCode string
}

// LexicalResult is a single lexical search result.
type LexicalResult struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// LexicalConfig configures the lexical index.
type LexicalConfig struct {
	// StopWords is a list of words to filter out during tokenization.
	StopWords []string

	// MinTokenLength is the minimum token length to index (default: 2).
	MinTokenLength int
}

// DefaultLexicalConfig returns default lexical index configuration.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords contains high-frequency words excluded from the index.
var DefaultStopWords = []string{
	"the", "a", "an", "and", "or", "of", "to", "in", "on", "for",
	"with", "is", "are", "was", "be", "this", "that", "it", "as", "at",
}

// LexicalIndex provides keyword search with BM25 scoring.
type LexicalIndex interface {
	// Index adds documents to the index, replacing existing entries.
	Index(ctx context.Context, docs []*Document) error

	// Search returns documents matching the parsed query, best first.
	Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error)

	// Delete removes documents from the index.
	Delete(ctx context.Context, docIDs []string) error

	// AllIDs returns all document IDs in the index.
	AllIDs() ([]string, error)

	// Count returns the number of indexed documents.
	Count() int

	Close() error
}

// DenseResult is a single dense vector search result.
type DenseResult struct {
	ID       string
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// DenseConfig configures the dense vector index.
type DenseConfig struct {
	// Dimensions is the vector dimension D.
	Dimensions int

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 20).
	EfSearch int
}

// DefaultDenseConfig returns sensible defaults for the dense index.
func DefaultDenseConfig(dimensions int) DenseConfig {
	return DenseConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   20,
	}
}

// DenseIndex provides nearest-neighbor search over resource embeddings.
type DenseIndex interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors to the query vector. A query of
	// the wrong dimension yields no results rather than an error.
	Search(ctx context.Context, query []float32, k int) ([]*DenseResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// Contains checks if an ID exists.
	Contains(id string) bool

	// Count returns the number of vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// SparseResult is a single sparse retrieval result.
type SparseResult struct {
	ID    string
	Score float64 // Dot product with the query vector
}

// SparseIndex provides learned-keyword retrieval via term-weight vectors.
type SparseIndex interface {
	// Add inserts a sparse vector for an ID, replacing any existing one.
	Add(ctx context.Context, id string, vec model.SparseVector) error

	// Search scores documents by dot product with the query vector.
	Search(ctx context.Context, query model.SparseVector, k int) ([]*SparseResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of indexed vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// Filters is the structured filter set applied to every retrieval leg.
type Filters struct {
	ClassificationCode []string `json:"classification_code,omitempty"`
	Type               []string `json:"type,omitempty"`
	Language           []string `json:"language,omitempty"`
	ReadStatus         []string `json:"read_status,omitempty"`

	CreatedFrom *time.Time `json:"created_from,omitempty"`
	CreatedTo   *time.Time `json:"created_to,omitempty"`
	UpdatedFrom *time.Time `json:"updated_from,omitempty"`
	UpdatedTo   *time.Time `json:"updated_to,omitempty"`

	// SubjectAny matches resources carrying at least one of the labels.
	SubjectAny []string `json:"subject_any,omitempty"`
	// SubjectAll matches resources carrying every label.
	SubjectAll []string `json:"subject_all,omitempty"`

	MinQuality *float64 `json:"min_quality,omitempty"`
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return len(f.ClassificationCode) == 0 && len(f.Type) == 0 &&
		len(f.Language) == 0 && len(f.ReadStatus) == 0 &&
		f.CreatedFrom == nil && f.CreatedTo == nil &&
		f.UpdatedFrom == nil && f.UpdatedTo == nil &&
		len(f.SubjectAny) == 0 && len(f.SubjectAll) == 0 &&
		f.MinQuality == nil
}

// FacetCount is one (value, count) bucket.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Facets are bucket counts over the filtered set before pagination.
type Facets struct {
	ClassificationCode []FacetCount `json:"classification_code"`
	Type               []FacetCount `json:"type"`
	Language           []FacetCount `json:"language"`
	ReadStatus         []FacetCount `json:"read_status"`
	Subject            []FacetCount `json:"subject"`
}

// RankMeta carries per-resource fields used for tie-breaks and boosts.
type RankMeta struct {
	QualityOverall     float64
	UpdatedAt          time.Time
	ClassificationCode string
}

// Sort columns accepted by List.
const (
	SortRelevance = "relevance"
	SortUpdatedAt = "updated_at"
	SortCreatedAt = "created_at"
	SortQuality   = "quality_score"
	SortTitle     = "title"
)

// ResourceStore persists resource rows and answers filter queries. Searches
// only see resources whose ingestion completed.
type ResourceStore interface {
	// Save inserts or replaces a resource row.
	Save(ctx context.Context, r *model.Resource) error

	// Get returns the resource or a NotFound error.
	Get(ctx context.Context, id string) (*model.Resource, error)

	// GetMany returns the named resources preserving input order. Missing
	// IDs are skipped.
	GetMany(ctx context.Context, ids []string) ([]*model.Resource, error)

	// Delete removes a resource row.
	Delete(ctx context.Context, id string) error

	// List returns searchable resources matching the filters sorted by the
	// given column.
	List(ctx context.Context, f Filters, sortBy, sortDir string, limit, offset int) ([]*model.Resource, error)

	// Count returns the number of searchable resources matching the filters.
	Count(ctx context.Context, f Filters) (int, error)

	// FilterIDs returns the searchable ID set matching the filters, used to
	// constrain the retrieval legs.
	FilterIDs(ctx context.Context, f Filters) (map[string]struct{}, error)

	// Facets computes facet buckets over the searchable set matching the
	// filters.
	Facets(ctx context.Context, f Filters) (*Facets, error)

	// FacetsForIDs computes facet buckets over an explicit ID set.
	FacetsForIDs(ctx context.Context, ids []string) (*Facets, error)

	// GetRankMeta returns tie-break metadata for the given IDs.
	GetRankMeta(ctx context.Context, ids []string) (map[string]RankMeta, error)

	// SetIngestionStatus flips the lifecycle status, recording an error
	// message for failed.
	SetIngestionStatus(ctx context.Context, id string, status model.IngestionStatus, errMsg string) error

	// SaveEmbedding stores the dense embedding for a resource.
	SaveEmbedding(ctx context.Context, id string, vec []float32, modelName string) error

	// SaveSparseEmbedding stores the sparse embedding for a resource.
	SaveSparseEmbedding(ctx context.Context, id string, vec model.SparseVector, modelName string) error

	// AllEmbeddings returns every stored dense embedding, for index rebuild.
	AllEmbeddings(ctx context.Context) (map[string][]float32, error)

	// AllSparseEmbeddings returns every stored sparse embedding.
	AllSparseEmbeddings(ctx context.Context) (map[string]model.SparseVector, error)

	Close() error
}

// ErrDimensionMismatch indicates a vector dimension mismatch on write.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
