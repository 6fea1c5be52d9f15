package authority

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// Store persists canonical subjects, their variants and usage counts in
// SQLite. Variant lookups are case-insensitive.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewStore creates the authority tables on an open database handle. The
// handle is shared with the resource store and not closed here.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize authority schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS authority_subjects (
		canonical TEXT PRIMARY KEY,
		usage_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS authority_variants (
		variant TEXT PRIMARY KEY COLLATE NOCASE,
		canonical TEXT NOT NULL REFERENCES authority_subjects(canonical) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_authority_variants_canonical
		ON authority_variants(canonical);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Lookup resolves a label to its stored canonical, matching the canonical
// itself or any variant, case-insensitively.
func (s *Store) Lookup(ctx context.Context, label string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, fmt.Errorf("store is closed")
	}

	var canonical string
	err := s.db.QueryRowContext(ctx, `
		SELECT canonical FROM authority_subjects WHERE canonical = ? COLLATE NOCASE
		UNION
		SELECT canonical FROM authority_variants WHERE variant = ?
		LIMIT 1`, label, label).Scan(&canonical)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("authority lookup: %w", err)
	}
	return canonical, true, nil
}

// Record persists a canonical, registers the raw form as a variant when it
// differs, and optionally increments the usage count.
func (s *Store) Record(ctx context.Context, canonical, raw string, countUse bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO authority_subjects (canonical, usage_count) VALUES (?, 0)
		ON CONFLICT(canonical) DO NOTHING`, canonical); err != nil {
		return fmt.Errorf("record canonical: %w", err)
	}
	if countUse {
		if _, err := tx.ExecContext(ctx, `
			UPDATE authority_subjects SET usage_count = usage_count + 1
			WHERE canonical = ?`, canonical); err != nil {
			return fmt.Errorf("bump usage: %w", err)
		}
	}
	if raw != "" && !strings.EqualFold(raw, canonical) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO authority_variants (variant, canonical) VALUES (?, ?)
			ON CONFLICT(variant) DO NOTHING`, raw, canonical); err != nil {
			return fmt.Errorf("record variant: %w", err)
		}
	}

	return tx.Commit()
}

// Suggestion is one canonical subject with its usage count.
type Suggestion struct {
	Canonical  string `json:"canonical"`
	UsageCount int    `json:"usage_count"`
}

// Search returns canonicals containing the substring, case-insensitively,
// ordered by usage count descending then canonical ascending.
func (s *Store) Search(ctx context.Context, substring string, limit int) ([]Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT canonical, usage_count FROM authority_subjects
		WHERE canonical LIKE '%' || ? || '%' COLLATE NOCASE
		ORDER BY usage_count DESC, canonical ASC
		LIMIT ?`, substring, limit)
	if err != nil {
		return nil, fmt.Errorf("authority search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Suggestion
	for rows.Next() {
		var sg Suggestion
		if err := rows.Scan(&sg.Canonical, &sg.UsageCount); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// UsageCount returns the stored usage count for a canonical, 0 if unknown.
func (s *Store) UsageCount(ctx context.Context, canonical string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT usage_count FROM authority_subjects WHERE canonical = ?`, canonical).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Close marks the store closed. The shared database handle is owned by the
// caller.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
