package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/neo-alexandria/neoalex/internal/errors"
	"github.com/neo-alexandria/neoalex/internal/model"
)

// Facet bucket caps.
const (
	facetBucketLimit  = 20
	subjectFacetLimit = 25
)

// SQLiteResourceStore implements ResourceStore on a SQLite database.
type SQLiteResourceStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ ResourceStore = (*SQLiteResourceStore)(nil)

// NewSQLiteResourceStore opens (or creates) the resource table at path. An
// empty path creates an in-memory store for testing.
func NewSQLiteResourceStore(path string) (*SQLiteResourceStore, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	s := &SQLiteResourceStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// NewSQLiteResourceStoreWithDB wraps an already opened database, letting the
// resource, authority and taxonomy tables share one file.
func NewSQLiteResourceStoreWithDB(db *sql.DB) (*SQLiteResourceStore, error) {
	s := &SQLiteResourceStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle so sibling stores can share it.
func (s *SQLiteResourceStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteResourceStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '[]',
		creator TEXT NOT NULL DEFAULT '',
		publisher TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT '',
		classification_code TEXT NOT NULL DEFAULT '',
		read_status TEXT NOT NULL DEFAULT 'unread',
		quality_overall REAL NOT NULL DEFAULT 0,
		quality_accuracy REAL NOT NULL DEFAULT 0,
		quality_completeness REAL NOT NULL DEFAULT 0,
		quality_consistency REAL NOT NULL DEFAULT 0,
		quality_timeliness REAL NOT NULL DEFAULT 0,
		quality_relevance REAL NOT NULL DEFAULT 0,
		qw_accuracy REAL NOT NULL DEFAULT 0.30,
		qw_completeness REAL NOT NULL DEFAULT 0.25,
		qw_consistency REAL NOT NULL DEFAULT 0.20,
		qw_timeliness REAL NOT NULL DEFAULT 0.15,
		qw_relevance REAL NOT NULL DEFAULT 0.10,
		embedding BLOB,
		embedding_model TEXT NOT NULL DEFAULT '',
		sparse_embedding TEXT,
		sparse_embedding_model TEXT NOT NULL DEFAULT '',
		sparse_embedding_updated_at TEXT,
		ingestion_status TEXT NOT NULL DEFAULT 'pending',
		ingestion_error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resources_status ON resources(ingestion_status);
	CREATE INDEX IF NOT EXISTS idx_resources_language ON resources(language);
	CREATE INDEX IF NOT EXISTS idx_resources_type ON resources(type);
	CREATE INDEX IF NOT EXISTS idx_resources_classification ON resources(classification_code);
	CREATE INDEX IF NOT EXISTS idx_resources_updated ON resources(updated_at);
	CREATE INDEX IF NOT EXISTS idx_resources_created ON resources(created_at);
	CREATE INDEX IF NOT EXISTS idx_resources_quality ON resources(quality_overall);
	`

	_, err := s.db.Exec(schema)
	return err
}

const resourceColumns = `id, title, description, subject, creator, publisher, language, type,
	classification_code, read_status,
	quality_overall, quality_accuracy, quality_completeness, quality_consistency,
	quality_timeliness, quality_relevance,
	qw_accuracy, qw_completeness, qw_consistency, qw_timeliness, qw_relevance,
	embedding, embedding_model, sparse_embedding, sparse_embedding_model,
	sparse_embedding_updated_at, ingestion_status, ingestion_error,
	created_at, updated_at`

// Save inserts or replaces a resource row.
func (s *SQLiteResourceStore) Save(ctx context.Context, r *model.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if r.ID == "" {
		return errors.InvalidArgument("resource id is required")
	}

	subject, err := json.Marshal(r.Subject)
	if err != nil {
		return fmt.Errorf("marshal subject: %w", err)
	}

	var sparse any
	if len(r.SparseEmbedding) > 0 {
		data, err := json.Marshal(r.SparseEmbedding)
		if err != nil {
			return fmt.Errorf("marshal sparse embedding: %w", err)
		}
		sparse = string(data)
	}

	var sparseUpdated any
	if r.SparseEmbeddingUpdatedAt != nil {
		sparseUpdated = r.SparseEmbeddingUpdatedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO resources (`+resourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.Description, string(subject), r.Creator, r.Publisher,
		r.Language, r.Type, r.ClassificationCode, string(r.ReadStatus),
		r.QualityOverall,
		r.Quality.Accuracy, r.Quality.Completeness, r.Quality.Consistency,
		r.Quality.Timeliness, r.Quality.Relevance,
		r.Quality.Weights.Accuracy, r.Quality.Weights.Completeness,
		r.Quality.Weights.Consistency, r.Quality.Weights.Timeliness,
		r.Quality.Weights.Relevance,
		encodeVector(r.Embedding), r.EmbeddingModel, sparse, r.SparseEmbeddingModel, sparseUpdated,
		string(r.IngestionStatus), r.IngestionError,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		r.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save resource %s: %w", r.ID, err)
	}
	return nil
}

// Get returns the resource or a NotFound error.
func (s *SQLiteResourceStore) Get(ctx context.Context, id string) (*model.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("resource %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get resource %s: %w", id, err)
	}
	return r, nil
}

// GetMany returns the named resources preserving input order.
func (s *SQLiteResourceStore) GetMany(ctx context.Context, ids []string) ([]*model.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(ids) == 0 {
		return []*model.Resource{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("get resources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*model.Resource, len(ids))
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ordered := make([]*model.Resource, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			ordered = append(ordered, r)
		}
	}
	return ordered, nil
}

// Delete removes a resource row.
func (s *SQLiteResourceStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete resource %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("resource %s not found", id)
	}
	return nil
}

// buildFilterWhere renders the filter set as a WHERE fragment. Every search
// path is restricted to completed resources.
func buildFilterWhere(f Filters) (string, []any) {
	conds := []string{`ingestion_status = 'completed'`}
	var args []any

	addIn := func(col string, values []string) {
		if len(values) == 0 {
			return
		}
		ph := make([]string, len(values))
		for i, v := range values {
			ph[i] = "?"
			args = append(args, v)
		}
		conds = append(conds, fmt.Sprintf("%s IN (%s)", col, strings.Join(ph, ",")))
	}

	addIn("classification_code", f.ClassificationCode)
	addIn("type", f.Type)
	addIn("language", f.Language)
	addIn("read_status", f.ReadStatus)

	addTime := func(col, op string, t *time.Time) {
		if t == nil {
			return
		}
		conds = append(conds, fmt.Sprintf("%s %s ?", col, op))
		args = append(args, t.UTC().Format(time.RFC3339Nano))
	}
	addTime("created_at", ">=", f.CreatedFrom)
	addTime("created_at", "<=", f.CreatedTo)
	addTime("updated_at", ">=", f.UpdatedFrom)
	addTime("updated_at", "<=", f.UpdatedTo)

	if len(f.SubjectAny) > 0 {
		ph := make([]string, len(f.SubjectAny))
		for i, v := range f.SubjectAny {
			ph[i] = "?"
			args = append(args, v)
		}
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM json_each(resources.subject) WHERE json_each.value IN (%s))",
			strings.Join(ph, ",")))
	}
	for _, label := range f.SubjectAll {
		conds = append(conds,
			"EXISTS (SELECT 1 FROM json_each(resources.subject) WHERE json_each.value = ?)")
		args = append(args, label)
	}

	if f.MinQuality != nil {
		conds = append(conds, "quality_overall >= ?")
		args = append(args, *f.MinQuality)
	}

	return strings.Join(conds, " AND "), args
}

// sortColumn maps the public sort name to a column expression.
func sortColumn(sortBy string) string {
	switch sortBy {
	case SortCreatedAt:
		return "created_at"
	case SortQuality:
		return "quality_overall"
	case SortTitle:
		return "title COLLATE NOCASE"
	default:
		return "updated_at"
	}
}

// List returns searchable resources matching the filters.
func (s *SQLiteResourceStore) List(ctx context.Context, f Filters, sortBy, sortDir string, limit, offset int) ([]*model.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	dir := "DESC"
	if strings.EqualFold(sortDir, "asc") {
		dir = "ASC"
	}

	where, args := buildFilterWhere(f)
	query := fmt.Sprintf(`SELECT %s FROM resources WHERE %s ORDER BY %s %s, id ASC LIMIT ? OFFSET ?`,
		resourceColumns, where, sortColumn(sortBy), dir)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*model.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Count returns the number of searchable resources matching the filters.
func (s *SQLiteResourceStore) Count(ctx context.Context, f Filters) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	where, args := buildFilterWhere(f)
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM resources WHERE `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count resources: %w", err)
	}
	return count, nil
}

// FilterIDs returns the searchable ID set matching the filters.
func (s *SQLiteResourceStore) FilterIDs(ctx context.Context, f Filters) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	where, args := buildFilterWhere(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM resources WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("filter ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// Facets computes facet buckets over the searchable set matching the filters.
func (s *SQLiteResourceStore) Facets(ctx context.Context, f Filters) (*Facets, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	where, args := buildFilterWhere(f)
	return s.facetsWhere(ctx, where, args)
}

// FacetsForIDs computes facet buckets over an explicit ID set.
func (s *SQLiteResourceStore) FacetsForIDs(ctx context.Context, ids []string) (*Facets, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(ids) == 0 {
		return &Facets{}, nil
	}

	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	where := "id IN (" + strings.Join(ph, ",") + ")"
	return s.facetsWhere(ctx, where, args)
}

func (s *SQLiteResourceStore) facetsWhere(ctx context.Context, where string, args []any) (*Facets, error) {
	facets := &Facets{}

	fieldFacet := func(col string) ([]FacetCount, error) {
		query := fmt.Sprintf(`
			SELECT %s, COUNT(*) AS n FROM resources
			WHERE %s AND %s != ''
			GROUP BY %s
			ORDER BY n DESC, %s ASC
			LIMIT %d`, col, where, col, col, col, facetBucketLimit)
		return s.queryFacet(ctx, query, args)
	}

	var err error
	if facets.ClassificationCode, err = fieldFacet("classification_code"); err != nil {
		return nil, err
	}
	if facets.Type, err = fieldFacet("type"); err != nil {
		return nil, err
	}
	if facets.Language, err = fieldFacet("language"); err != nil {
		return nil, err
	}
	if facets.ReadStatus, err = fieldFacet("read_status"); err != nil {
		return nil, err
	}

	subjectQuery := fmt.Sprintf(`
		SELECT json_each.value, COUNT(*) AS n
		FROM resources, json_each(resources.subject)
		WHERE %s
		GROUP BY json_each.value
		ORDER BY n DESC, json_each.value ASC
		LIMIT %d`, where, subjectFacetLimit)
	if facets.Subject, err = s.queryFacet(ctx, subjectQuery, args); err != nil {
		return nil, err
	}

	return facets, nil
}

func (s *SQLiteResourceStore) queryFacet(ctx context.Context, query string, args []any) ([]FacetCount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("facet query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var buckets []FacetCount
	for rows.Next() {
		var b FacetCount
		if err := rows.Scan(&b.Value, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// GetRankMeta returns tie-break metadata for the given IDs.
func (s *SQLiteResourceStore) GetRankMeta(ctx context.Context, ids []string) (map[string]RankMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(ids) == 0 {
		return map[string]RankMeta{}, nil
	}

	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, quality_overall, updated_at, classification_code
		FROM resources WHERE id IN (`+strings.Join(ph, ",")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("rank meta: %w", err)
	}
	defer func() { _ = rows.Close() }()

	meta := make(map[string]RankMeta, len(ids))
	for rows.Next() {
		var id, updated, code string
		var quality float64
		if err := rows.Scan(&id, &quality, &updated, &code); err != nil {
			return nil, err
		}
		t, _ := time.Parse(time.RFC3339Nano, updated)
		meta[id] = RankMeta{QualityOverall: quality, UpdatedAt: t, ClassificationCode: code}
	}
	return meta, rows.Err()
}

// SetIngestionStatus flips the lifecycle status.
func (s *SQLiteResourceStore) SetIngestionStatus(ctx context.Context, id string, status model.IngestionStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE resources SET ingestion_status = ?, ingestion_error = ?, updated_at = ?
		WHERE id = ?`,
		string(status), errMsg, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("set ingestion status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("resource %s not found", id)
	}
	return nil
}

// SaveEmbedding stores the dense embedding for a resource.
func (s *SQLiteResourceStore) SaveEmbedding(ctx context.Context, id string, vec []float32, modelName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE resources SET embedding = ?, embedding_model = ? WHERE id = ?`,
		encodeVector(vec), modelName, id)
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("resource %s not found", id)
	}
	return nil
}

// SaveSparseEmbedding stores the sparse embedding for a resource.
func (s *SQLiteResourceStore) SaveSparseEmbedding(ctx context.Context, id string, vec model.SparseVector, modelName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	data, err := json.Marshal(vec.Prune())
	if err != nil {
		return fmt.Errorf("marshal sparse embedding: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE resources
		SET sparse_embedding = ?, sparse_embedding_model = ?, sparse_embedding_updated_at = ?
		WHERE id = ?`,
		string(data), modelName, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("save sparse embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("resource %s not found", id)
	}
	return nil
}

// AllEmbeddings returns every stored dense embedding.
func (s *SQLiteResourceStore) AllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding FROM resources WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("all embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		if vec := decodeVector(blob); vec != nil {
			out[id] = vec
		}
	}
	return out, rows.Err()
}

// AllSparseEmbeddings returns every stored sparse embedding.
func (s *SQLiteResourceStore) AllSparseEmbeddings(ctx context.Context) (map[string]model.SparseVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sparse_embedding FROM resources WHERE sparse_embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("all sparse embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]model.SparseVector)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var vec model.SparseVector
		if err := json.Unmarshal([]byte(data), &vec); err != nil {
			continue
		}
		if len(vec) > 0 {
			out[id] = vec
		}
	}
	return out, rows.Err()
}

// Close checkpoints and closes the store. Idempotent.
func (s *SQLiteResourceStore) Close() error {
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

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*model.Resource, error) {
	var r model.Resource
	var subject, readStatus, ingestionStatus, createdAt, updatedAt string
	var embedding []byte
	var sparse, sparseUpdated sql.NullString

	err := row.Scan(
		&r.ID, &r.Title, &r.Description, &subject, &r.Creator, &r.Publisher,
		&r.Language, &r.Type, &r.ClassificationCode, &readStatus,
		&r.QualityOverall,
		&r.Quality.Accuracy, &r.Quality.Completeness, &r.Quality.Consistency,
		&r.Quality.Timeliness, &r.Quality.Relevance,
		&r.Quality.Weights.Accuracy, &r.Quality.Weights.Completeness,
		&r.Quality.Weights.Consistency, &r.Quality.Weights.Timeliness,
		&r.Quality.Weights.Relevance,
		&embedding, &r.EmbeddingModel, &sparse, &r.SparseEmbeddingModel,
		&sparseUpdated, &ingestionStatus, &r.IngestionError,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(subject), &r.Subject); err != nil {
		return nil, fmt.Errorf("unmarshal subject: %w", err)
	}
	r.ReadStatus = model.ReadStatus(readStatus)
	r.IngestionStatus = model.IngestionStatus(ingestionStatus)
	r.Embedding = decodeVector(embedding)

	if sparse.Valid && sparse.String != "" {
		var vec model.SparseVector
		if err := json.Unmarshal([]byte(sparse.String), &vec); err == nil && len(vec) > 0 {
			r.SparseEmbedding = vec
		}
	}
	if sparseUpdated.Valid && sparseUpdated.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, sparseUpdated.String); err == nil {
			r.SparseEmbeddingUpdatedAt = &t
		}
	}

	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &r, nil
}

// encodeVector packs float32 values little-endian. A nil or empty vector
// encodes as NULL.
func encodeVector(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
