package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// SQLiteLexicalIndex implements LexicalIndex using SQLite FTS5. WAL mode
// allows readers to proceed while a writer indexes.
type SQLiteLexicalIndex struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	config    LexicalConfig
	closed    bool
	stopWords map[string]struct{}
}

var _ LexicalIndex = (*SQLiteLexicalIndex)(nil)

// NewSQLiteLexicalIndex creates an FTS5-backed lexical index. An empty path
// creates an in-memory index for testing.
func NewSQLiteLexicalIndex(path string, config LexicalConfig) (*SQLiteLexicalIndex, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	idx := &SQLiteLexicalIndex{
		db:        db,
		path:      path,
		config:    config,
		stopWords: BuildStopWordMap(config.StopWords),
	}

	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return idx, nil
}

// initSchema creates the FTS5 virtual table and the raw-text shadow table
// used by the contains-scan fallback.
func (s *SQLiteLexicalIndex) initSchema() error {
	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_resources USING fts5(
		doc_id UNINDEXED,
		title,
		description,
		subject,
		creator,
		classification,
		tokenize='unicode61'
	);

	-- Raw fields for the contains-scan fallback and AllIDs.
	CREATE TABLE IF NOT EXISTS lex_docs (
		doc_id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		creator TEXT NOT NULL DEFAULT '',
		classification TEXT NOT NULL DEFAULT ''
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareText normalizes a field for indexing: identifier-aware tokens
// joined by spaces, stop words removed.
func (s *SQLiteLexicalIndex) prepareText(text string) string {
	tokens := Tokenize(text)
	tokens = FilterStopWords(tokens, s.stopWords)
	return strings.Join(tokens, " ")
}

// Index adds documents to the index. Existing entries are replaced.
func (s *SQLiteLexicalIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 virtual tables don't support REPLACE, so delete first.
	deleteStmt, err := tx.PrepareContext(ctx,
		`DELETE FROM fts_resources WHERE doc_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer func() { _ = deleteStmt.Close() }()

	insertStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fts_resources(doc_id, title, description, subject, creator, classification)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare FTS statement: %w", err)
	}
	defer func() { _ = insertStmt.Close() }()

	rawStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO lex_docs(doc_id, title, description, subject, creator, classification)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare raw statement: %w", err)
	}
	defer func() { _ = rawStmt.Close() }()

	for _, doc := range docs {
		subject := strings.Join(doc.Subject, " ")

		if _, err := deleteStmt.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to delete existing document %s: %w", doc.ID, err)
		}
		if _, err := insertStmt.ExecContext(ctx, doc.ID,
			s.prepareText(doc.Title),
			s.prepareText(doc.Description),
			s.prepareText(subject),
			s.prepareText(doc.Creator),
			strings.ToLower(doc.ClassificationCode)); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
		if _, err := rawStmt.ExecContext(ctx, doc.ID,
			doc.Title, doc.Description, subject, doc.Creator, doc.ClassificationCode); err != nil {
			return fmt.Errorf("failed to store document %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}

// Search returns documents matching the query, best first. Title matches
// weigh heaviest, then subject. Queries whose terms the FTS tokenizer would
// destroy (for example "c++") fall back to a contains scan over raw fields.
func (s *SQLiteLexicalIndex) Search(ctx context.Context, queryStr string, limit int) ([]*LexicalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalResult{}, nil
	}

	parsed := ParseQuery(queryStr)
	if parsed.Empty() {
		return []*LexicalResult{}, nil
	}

	if parsed.hasSpecialTerms() {
		return s.containsScan(ctx, parsed, limit)
	}

	matchExpr := s.renderFTS5(parsed)
	if matchExpr == "" {
		return []*LexicalResult{}, nil
	}

	// bm25() returns negative values, lower = better; column weights boost
	// title and subject matches.
	query := `
		SELECT doc_id, bm25(fts_resources, 0, 3.0, 1.0, 2.0, 1.0, 1.0) AS score
		FROM fts_resources
		WHERE fts_resources MATCH ?
		ORDER BY score
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, matchExpr, limit)
	if err != nil {
		// Invalid MATCH syntax: fall back to the contains scan rather than
		// surface a retrieval error.
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return s.containsScan(ctx, parsed, limit)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	terms := parsed.Terms()
	var results []*LexicalResult
	for rows.Next() {
		var docID string
		var score float64
		if err := rows.Scan(&docID, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, &LexicalResult{
			DocID:        docID,
			Score:        -score,
			MatchedTerms: terms,
		})
	}

	return results, rows.Err()
}

// renderFTS5 renders the parsed query, running each term through the same
// tokenization as indexing so identifier matches line up.
func (s *SQLiteLexicalIndex) renderFTS5(p ParsedQuery) string {
	prepared := ParsedQuery{Clauses: make([]Clause, 0, len(p.Clauses))}
	for _, c := range p.Clauses {
		tokens := FilterStopWords(Tokenize(c.Term), s.stopWords)
		if len(tokens) == 0 {
			continue
		}
		c.Term = strings.Join(tokens, " ")
		if len(tokens) > 1 {
			c.Phrase = true
		}
		prepared.Clauses = append(prepared.Clauses, c)
	}
	return prepared.FTS5()
}

// containsScan is the case-insensitive substring fallback. All positive
// terms must appear; occurrences are counted with title weighted 3x and
// subject 2x.
func (s *SQLiteLexicalIndex) containsScan(ctx context.Context, p ParsedQuery, limit int) ([]*LexicalResult, error) {
	terms := p.Terms()
	if len(terms) == 0 {
		return []*LexicalResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, title, description, subject, creator, classification FROM lex_docs`)
	if err != nil {
		return nil, fmt.Errorf("contains scan failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*LexicalResult
	for rows.Next() {
		var docID, title, description, subject, creator, classification string
		if err := rows.Scan(&docID, &title, &description, &subject, &creator, &classification); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		titleLower := strings.ToLower(title)
		restLower := strings.ToLower(description + " " + creator + " " + classification)
		subjectLower := strings.ToLower(subject)

		var score float64
		matched := true
		for _, term := range terms {
			n := strings.Count(titleLower, term)*3 +
				strings.Count(subjectLower, term)*2 +
				strings.Count(restLower, term)
			if n == 0 {
				matched = false
				break
			}
			score += float64(n)
		}
		if matched {
			results = append(results, &LexicalResult{
				DocID:        docID,
				Score:        score,
				MatchedTerms: terms,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes documents from the index.
func (s *SQLiteLexicalIndex) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := make([]string, len(docIDs))
	args := make([]any, len(docIDs))
	for i, id := range docIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM fts_resources WHERE doc_id IN (%s)", inClause), args...); err != nil {
		return fmt.Errorf("failed to delete from FTS: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM lex_docs WHERE doc_id IN (%s)", inClause), args...); err != nil {
		return fmt.Errorf("failed to delete raw rows: %w", err)
	}

	return tx.Commit()
}

// AllIDs returns all document IDs in the index.
func (s *SQLiteLexicalIndex) AllIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	rows, err := s.db.Query(`SELECT doc_id FROM lex_docs ORDER BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query IDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ID: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Count returns the number of indexed documents.
func (s *SQLiteLexicalIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM lex_docs`).Scan(&count); err != nil {
		return 0
	}
	return count
}

// Close checkpoints and closes the index. Idempotent.
func (s *SQLiteLexicalIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}
