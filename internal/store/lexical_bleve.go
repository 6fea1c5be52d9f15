package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	// textTokenizerName is the name of the identifier-aware tokenizer.
	textTokenizerName = "resource_tokenizer"

	// textStopFilterName is the name of the stop word filter.
	textStopFilterName = "resource_stop"

	// textAnalyzerName is the name of the resource text analyzer.
	textAnalyzerName = "resource_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(textTokenizerName, resourceTokenizerConstructor)
	_ = registry.RegisterTokenFilter(textStopFilterName, resourceStopFilterConstructor)
}

// BleveLexicalIndex implements LexicalIndex on Bleve v2. BoltDB holds an
// exclusive file lock, so this backend is single-process only.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	config LexicalConfig
	closed bool
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)

// bleveResourceDoc is the document shape handed to Bleve.
type bleveResourceDoc struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Subject        string `json:"subject"`
	Creator        string `json:"creator"`
	Classification string `json:"classification"`
}

// NewBleveLexicalIndex creates a Bleve-backed lexical index. An empty path
// creates an in-memory index for testing.
func NewBleveLexicalIndex(path string, config LexicalConfig) (*BleveLexicalIndex, error) {
	indexMapping, err := createResourceMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveLexicalIndex{
		index:  idx,
		path:   path,
		config: config,
	}, nil
}

// createResourceMapping builds the index mapping with per-field boosts
// applied at query time, not index time.
func createResourceMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(textAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": textTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			textStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = textAnalyzerName

	return indexMapping, nil
}

// Index adds documents to the index.
func (b *BleveLexicalIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		bdoc := bleveResourceDoc{
			Title:          doc.Title,
			Description:    doc.Description,
			Subject:        strings.Join(doc.Subject, " "),
			Creator:        doc.Creator,
			Classification: doc.ClassificationCode,
		}
		if err := batch.Index(doc.ID, bdoc); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	return nil
}

// Search returns documents matching the query, best first.
func (b *BleveLexicalIndex) Search(ctx context.Context, queryStr string, limit int) ([]*LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalResult{}, nil
	}

	parsed := ParseQuery(queryStr)
	if parsed.Empty() {
		return []*LexicalResult{}, nil
	}

	searchRequest := bleve.NewSearchRequest(buildBleveQuery(parsed))
	searchRequest.Size = limit
	searchRequest.IncludeLocations = true

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &LexicalResult{
			DocID:        hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTermsFromHit(hit),
		})
	}

	return results, nil
}

// buildBleveQuery turns the parsed clauses into a boolean query: AND clauses
// are musts, OR clauses shoulds, NOT clauses must-nots. A clause followed by
// an OR clause joins the should group, so "a OR b" matches either.
func buildBleveQuery(p ParsedQuery) query.Query {
	boolQuery := bleve.NewBooleanQuery()

	should := make([]bool, len(p.Clauses))
	for i, c := range p.Clauses {
		if c.Or {
			should[i] = true
			if i > 0 && !p.Clauses[i-1].Not {
				should[i-1] = true
			}
		}
	}

	for i, c := range p.Clauses {
		var q query.Query
		switch {
		case c.Phrase:
			mq := bleve.NewMatchPhraseQuery(c.Term)
			if c.Field != "" {
				mq.SetField(c.Field)
			}
			q = mq
		case c.Prefix:
			pq := bleve.NewPrefixQuery(strings.ToLower(c.Term))
			if c.Field != "" {
				pq.SetField(c.Field)
			}
			q = pq
		default:
			mq := bleve.NewMatchQuery(c.Term)
			if c.Field != "" {
				mq.SetField(c.Field)
			}
			q = mq
		}

		switch {
		case c.Not:
			boolQuery.AddMustNot(q)
		case should[i]:
			boolQuery.AddShould(q)
		default:
			boolQuery.AddMust(q)
		}
	}

	return boolQuery
}

// Delete removes documents from the index.
func (b *BleveLexicalIndex) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range docIDs {
		batch.Delete(id)
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}

	return nil
}

// AllIDs returns all document IDs in the index.
func (b *BleveLexicalIndex) AllIDs() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	docCount, _ := b.index.DocCount()

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for all IDs: %w", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}

	return ids, nil
}

// Count returns the number of indexed documents.
func (b *BleveLexicalIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	docCount, _ := b.index.DocCount()
	return int(docCount)
}

// Close closes the index. Idempotent.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// matchedTermsFromHit extracts matched terms from a search hit.
func matchedTermsFromHit(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for _, locations := range hit.Locations {
		for term := range locations {
			terms[term] = struct{}{}
		}
	}

	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}

// resourceTokenizerConstructor creates the identifier-aware tokenizer.
func resourceTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveResourceTokenizer{}, nil
}

// bleveResourceTokenizer implements analysis.Tokenizer using Tokenize.
type bleveResourceTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *bleveResourceTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := Tokenize(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0

	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), strings.ToLower(token))
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}

	return result
}

// resourceStopFilterConstructor creates the stop word filter.
func resourceStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveResourceStopFilter{
		stopWords: BuildStopWordMap(DefaultStopWords),
	}, nil
}

// bleveResourceStopFilter implements analysis.TokenFilter.
type bleveResourceStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *bleveResourceStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
