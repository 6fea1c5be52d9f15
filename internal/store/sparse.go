package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/neo-alexandria/neoalex/internal/model"
)

// MemSparseIndex implements SparseIndex as an in-memory inverted index:
// term_id -> postings of (doc, weight). Scoring a query touches only the
// postings of its terms, so dot products stay cheap even on wide vocabularies.
type MemSparseIndex struct {
	mu sync.RWMutex

	// postings maps term_id to the documents carrying that term.
	postings map[int]map[string]float32
	// vectors keeps each document's full vector for deletion.
	vectors map[string]model.SparseVector

	closed bool
}

var _ SparseIndex = (*MemSparseIndex)(nil)

// sparseSnapshot is the persisted form.
type sparseSnapshot struct {
	Vectors map[string]model.SparseVector
}

// NewMemSparseIndex creates an empty sparse index.
func NewMemSparseIndex() *MemSparseIndex {
	return &MemSparseIndex{
		postings: make(map[int]map[string]float32),
		vectors:  make(map[string]model.SparseVector),
	}
}

// Add inserts a sparse vector for an ID, replacing any existing one.
// Zero-weight entries are dropped.
func (s *MemSparseIndex) Add(ctx context.Context, id string, vec model.SparseVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	s.removeLocked(id)

	pruned := vec.Prune()
	if len(pruned) == 0 {
		return nil
	}

	stored := make(model.SparseVector, len(pruned))
	for termID, weight := range pruned {
		stored[termID] = weight
		docs, ok := s.postings[termID]
		if !ok {
			docs = make(map[string]float32)
			s.postings[termID] = docs
		}
		docs[id] = weight
	}
	s.vectors[id] = stored

	return nil
}

// Search scores documents by dot product with the query vector and returns
// the top k, ties broken by ID ascending for stable ordering.
func (s *MemSparseIndex) Search(ctx context.Context, query model.SparseVector, k int) ([]*SparseResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if len(query) == 0 || k <= 0 {
		return []*SparseResult{}, nil
	}

	scores := make(map[string]float64)
	for termID, qw := range query {
		if qw <= 0 {
			continue
		}
		for docID, dw := range s.postings[termID] {
			scores[docID] += float64(qw) * float64(dw)
		}
	}

	results := make([]*SparseResult, 0, len(scores))
	for docID, score := range scores {
		if score > 0 {
			results = append(results, &SparseResult{ID: docID, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes vectors by ID.
func (s *MemSparseIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	for _, id := range ids {
		s.removeLocked(id)
	}
	return nil
}

// removeLocked drops a document's postings. Caller holds the write lock.
func (s *MemSparseIndex) removeLocked(id string) {
	vec, ok := s.vectors[id]
	if !ok {
		return
	}
	for termID := range vec {
		docs := s.postings[termID]
		delete(docs, id)
		if len(docs) == 0 {
			delete(s.postings, termID)
		}
	}
	delete(s.vectors, id)
}

// Count returns the number of indexed vectors.
func (s *MemSparseIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.vectors)
}

// Save persists the vectors atomically (temp file + rename). The postings
// are rebuilt on load.
func (s *MemSparseIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	if err := gob.NewEncoder(file).Encode(sparseSnapshot{Vectors: s.vectors}); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode sparse index: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load restores the vectors from disk and rebuilds the postings.
func (s *MemSparseIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var snap sparseSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("decode sparse index: %w", err)
	}

	s.vectors = make(map[string]model.SparseVector, len(snap.Vectors))
	s.postings = make(map[int]map[string]float32)
	for id, vec := range snap.Vectors {
		s.vectors[id] = vec
		for termID, weight := range vec {
			docs, ok := s.postings[termID]
			if !ok {
				docs = make(map[string]float32)
				s.postings[termID] = docs
			}
			docs[id] = weight
		}
	}

	return nil
}

// Close releases resources.
func (s *MemSparseIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.postings = nil
	s.vectors = nil
	return nil
}
