// Package model defines the persistent record types shared across the
// retrieval core: resources, taxonomy nodes, assignments, and quality records.
// All field names are stable wire names.
package model

import (
	"time"
)

// ReadStatus tracks where a resource sits in the reading workflow.
type ReadStatus string

const (
	ReadStatusUnread     ReadStatus = "unread"
	ReadStatusInProgress ReadStatus = "in_progress"
	ReadStatusCompleted  ReadStatus = "completed"
	ReadStatusArchived   ReadStatus = "archived"
)

// ValidReadStatus reports whether s is one of the known read states.
func ValidReadStatus(s ReadStatus) bool {
	switch s {
	case ReadStatusUnread, ReadStatusInProgress, ReadStatusCompleted, ReadStatusArchived:
		return true
	}
	return false
}

// IngestionStatus tracks the ingestion pipeline state of a resource.
// Only resources in IngestionCompleted are searchable.
type IngestionStatus string

const (
	IngestionPending    IngestionStatus = "pending"
	IngestionProcessing IngestionStatus = "processing"
	IngestionCompleted  IngestionStatus = "completed"
	IngestionFailed     IngestionStatus = "failed"
)

// SparseVector maps learned term ids to non-negative weights.
// Zero-weight entries must be absent.
type SparseVector map[int]float32

// Prune removes zero and negative weights in place and returns the vector.
func (v SparseVector) Prune() SparseVector {
	for term, w := range v {
		if w <= 0 {
			delete(v, term)
		}
	}
	return v
}

// Resource is the indexed unit of the knowledge base.
type Resource struct {
	ID          string `json:"id"` // UUID, stable
	Title       string `json:"title"`
	Description string `json:"description"`

	Subject   []string `json:"subject"`
	Creator   string   `json:"creator"`
	Publisher string   `json:"publisher"`
	Language  string   `json:"language"`
	Type      string   `json:"type"`

	ClassificationCode string     `json:"classification_code"`
	ReadStatus         ReadStatus `json:"read_status"`

	// Quality scores, all in [0,1]. QualityOverall equals the weighted sum
	// of the dimension scores under Weights (tolerance 1e-6, enforced at
	// write time by the quality package).
	QualityOverall float64        `json:"quality_overall"`
	Quality        QualityRecord  `json:"quality"`

	// Embedding is the dense vector of dimension D, nil when not yet embedded.
	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`

	// SparseEmbedding is the learned-keyword vector, nil when absent.
	SparseEmbedding          SparseVector `json:"sparse_embedding,omitempty"`
	SparseEmbeddingModel     string       `json:"sparse_embedding_model,omitempty"`
	SparseEmbeddingUpdatedAt *time.Time   `json:"sparse_embedding_updated_at,omitempty"`

	IngestionStatus IngestionStatus `json:"ingestion_status"`
	IngestionError  string          `json:"ingestion_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Searchable reports whether the resource may appear in search results.
func (r *Resource) Searchable() bool {
	return r.IngestionStatus == IngestionCompleted
}

// QualityRecord holds the five dimension scores and their weights.
type QualityRecord struct {
	Accuracy     float64 `json:"accuracy"`
	Completeness float64 `json:"completeness"`
	Consistency  float64 `json:"consistency"`
	Timeliness   float64 `json:"timeliness"`
	Relevance    float64 `json:"relevance"`

	Weights QualityWeights `json:"weights"`
}

// QualityWeights are per-resource dimension weights summing to 1.
type QualityWeights struct {
	Accuracy     float64 `json:"accuracy"`
	Completeness float64 `json:"completeness"`
	Consistency  float64 `json:"consistency"`
	Timeliness   float64 `json:"timeliness"`
	Relevance    float64 `json:"relevance"`
}

// Sum returns the total of all weights.
func (w QualityWeights) Sum() float64 {
	return w.Accuracy + w.Completeness + w.Consistency + w.Timeliness + w.Relevance
}
