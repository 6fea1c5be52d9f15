package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/neo-alexandria/neoalex/internal/model"
)

// StaticClient generates embeddings using a hash-based approach. It works
// without the model runtime (no network, no model download) and produces
// deterministic vectors with reduced semantic quality, keeping the dense
// and sparse legs alive when the runtime is unreachable.
type StaticClient struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

var _ Client = (*StaticClient)(nil)

// commonStopWords contains high-frequency words filtered before hashing.
var commonStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true,
	"or": true, "of": true, "to": true, "in": true,
	"on": true, "for": true, "with": true, "is": true,
	"are": true, "was": true, "be": true, "this": true,
	"that": true, "it": true, "as": true, "at": true,
}

// Weights for vector generation
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3

	// sparseTermSpace bounds the hashed term id range for sparse vectors.
	sparseTermSpace = 30522
)

// tokenRegex matches alphanumeric sequences.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticClient creates a deterministic fallback client. dims <= 0 means
// DefaultDimensions.
func NewStaticClient(dims int) *StaticClient {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &StaticClient{dims: dims}
}

// Embed generates the embedding for a single text.
func (c *StaticClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, c.dims), nil
	}

	return normalizeVector(c.generateVector(trimmed)), nil
}

// generateVector creates a hash-based vector: tokens at weight 0.7 plus
// character trigrams at weight 0.3.
func (c *StaticClient) generateVector(text string) []float32 {
	vector := make([]float32, c.dims)

	tokens := filterStopWords(tokenize(text))
	for _, token := range tokens {
		vector[hashToIndex(token, c.dims)] += tokenWeight
	}

	normalized := normalizeForNgrams(text)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		vector[hashToIndex(ngram, c.dims)] += ngramWeight
	}

	return vector
}

// EmbedBatch generates embeddings for multiple texts.
func (c *StaticClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = emb
	}

	return results, nil
}

// SparseEmbed generates a sparse term-weight vector by hashing tokens into
// a fixed term-id space. Repeated tokens accumulate weight.
func (c *StaticClient) SparseEmbed(ctx context.Context, text string) (model.SparseVector, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	tokens := filterStopWords(tokenize(text))
	if len(tokens) == 0 {
		return model.SparseVector{}, nil
	}

	vec := make(model.SparseVector)
	for _, token := range tokens {
		vec[hashToIndex(token, sparseTermSpace)] += 1.0
	}

	// Scale to unit max weight so static vectors stay comparable across texts.
	var maxWeight float32
	for _, w := range vec {
		if w > maxWeight {
			maxWeight = w
		}
	}
	if maxWeight > 0 {
		for id, w := range vec {
			vec[id] = w / maxWeight
		}
	}
	return vec.Prune(), nil
}

// ScorePairs approximates cross-encoder scores with token overlap between
// the query and each document.
func (c *StaticClient) ScorePairs(ctx context.Context, query string, docs []string) ([]ScoredPair, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	queryTokens := make(map[string]bool)
	for _, t := range filterStopWords(tokenize(query)) {
		queryTokens[t] = true
	}

	pairs := make([]ScoredPair, len(docs))
	for i, doc := range docs {
		docTokens := filterStopWords(tokenize(doc))
		var overlap int
		for _, t := range docTokens {
			if queryTokens[t] {
				overlap++
			}
		}
		score := 0.0
		if len(docTokens) > 0 {
			score = float64(overlap) / float64(len(docTokens))
		}
		pairs[i] = ScoredPair{Index: i, Score: score}
	}
	return pairs, nil
}

// Dimensions returns the embedding dimension.
func (c *StaticClient) Dimensions() int {
	return c.dims
}

// ModelName returns the model identifier.
func (c *StaticClient) ModelName() string {
	return "static"
}

// Available checks if the client is ready (always true until closed).
func (c *StaticClient) Available(_ context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Close releases resources.
func (c *StaticClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *StaticClient) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("client is closed")
	}
	return nil
}

// tokenize splits text into lowercase tokens, splitting camelCase and
// snake_case identifiers so code-heavy titles hash consistently.
func tokenize(text string) []string {
	var tokens []string

	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range splitCodeToken(word) {
			lower := strings.ToLower(t)
			if lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}

	return tokens
}

// splitCodeToken splits camelCase and snake_case identifiers.
func splitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}

	return splitCamelCase(token)
}

// splitCamelCase splits camelCase identifiers, keeping acronym runs intact.
func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// filterStopWords removes common stop words.
func filterStopWords(tokens []string) []string {
	var filtered []string
	for _, t := range tokens {
		if !commonStopWords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// normalizeForNgrams prepares text for n-gram extraction.
func normalizeForNgrams(text string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// extractNgrams extracts n-character sliding windows.
func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return []string{}
	}

	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

// hashToIndex uses FNV-64 to map a string to an index.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}
