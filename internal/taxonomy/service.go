// Package taxonomy maintains the materialized-path classification tree and
// resource assignments. All mutations that touch more than one row (move,
// cascade delete, assignment count updates) run inside a single transaction.
package taxonomy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neo-alexandria/neoalex/internal/errors"
	"github.com/neo-alexandria/neoalex/internal/model"
)

// Service is the taxonomy tree service over a shared SQLite handle.
type Service struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewService creates the taxonomy tables on an open database handle. The
// handle is shared with the resource store and not closed here.
func NewService(db *sql.DB) (*Service, error) {
	s := &Service{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize taxonomy schema: %w", err)
	}
	return s, nil
}

func (s *Service) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS taxonomy_nodes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		parent_id TEXT REFERENCES taxonomy_nodes(id),
		level INTEGER NOT NULL,
		path TEXT NOT NULL,
		keywords TEXT NOT NULL DEFAULT '[]',
		description TEXT NOT NULL DEFAULT '',
		resource_count INTEGER NOT NULL DEFAULT 0,
		descendant_resource_count INTEGER NOT NULL DEFAULT 0,
		allow_resources INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_taxonomy_nodes_parent ON taxonomy_nodes(parent_id);
	CREATE INDEX IF NOT EXISTS idx_taxonomy_nodes_path ON taxonomy_nodes(path);

	CREATE TABLE IF NOT EXISTS resource_taxonomy (
		resource_id TEXT NOT NULL,
		taxonomy_node_id TEXT NOT NULL REFERENCES taxonomy_nodes(id) ON DELETE CASCADE,
		confidence REAL NOT NULL,
		is_predicted INTEGER NOT NULL DEFAULT 0,
		predicted_by TEXT NOT NULL DEFAULT '',
		needs_review INTEGER NOT NULL DEFAULT 0,
		review_priority REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		PRIMARY KEY (resource_id, taxonomy_node_id)
	);

	CREATE INDEX IF NOT EXISTS idx_resource_taxonomy_node ON resource_taxonomy(taxonomy_node_id);
	CREATE INDEX IF NOT EXISTS idx_resource_taxonomy_review
		ON resource_taxonomy(needs_review, review_priority DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateInput carries the caller-settable fields of a new node.
type CreateInput struct {
	Name           string
	Slug           string
	ParentID       *string
	Keywords       []string
	Description    string
	AllowResources bool
}

// Create inserts a node under the given parent. Slug clashes and unknown
// parents fail without writing.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.TaxonomyNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, errors.InvalidArgument("taxonomy node name is required")
	}
	slug := normalizeSlug(in.Slug)
	if slug == "" {
		slug = normalizeSlug(in.Name)
	}
	if slug == "" {
		return nil, errors.InvalidArgument("taxonomy node slug is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	parentPath := ""
	if in.ParentID != nil {
		parent, err := getNodeTx(ctx, tx, *in.ParentID)
		if err != nil {
			return nil, err
		}
		parentPath = parent.Path
	}

	var clash int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM taxonomy_nodes WHERE slug = ?`, slug).Scan(&clash); err != nil {
		return nil, err
	}
	if clash > 0 {
		return nil, errors.Conflict("slug %q already exists", slug)
	}

	now := time.Now().UTC()
	node := &model.TaxonomyNode{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(in.Name),
		Slug:           slug,
		ParentID:       in.ParentID,
		Path:           parentPath + "/" + slug,
		Keywords:       in.Keywords,
		Description:    in.Description,
		AllowResources: in.AllowResources,
		IsLeaf:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	node.Level = strings.Count(node.Path, "/") - 1

	keywordsJSON, err := json.Marshal(node.Keywords)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO taxonomy_nodes
			(id, name, slug, parent_id, level, path, keywords, description,
			 allow_resources, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		node.ID, node.Name, node.Slug, node.ParentID, node.Level, node.Path,
		string(keywordsJSON), node.Description, boolToInt(node.AllowResources),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano)); err != nil {
		return nil, fmt.Errorf("insert taxonomy node: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return node, nil
}

// Get returns one node by id.
func (s *Service) Get(ctx context.Context, id string) (*model.TaxonomyNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	return getNodeTx(ctx, tx, id)
}

// UpdateInput carries the mutable node fields; nil pointers leave the field
// unchanged.
type UpdateInput struct {
	Name           *string
	Slug           *string
	Keywords       []string
	Description    *string
	AllowResources *bool
}

// Update renames or edits a node. A slug change rewrites the node's path
// and the path of every descendant.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*model.TaxonomyNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	node, err := getNodeTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil && strings.TrimSpace(*in.Name) != "" {
		node.Name = strings.TrimSpace(*in.Name)
	}
	if in.Keywords != nil {
		node.Keywords = in.Keywords
	}
	if in.Description != nil {
		node.Description = *in.Description
	}
	if in.AllowResources != nil {
		node.AllowResources = *in.AllowResources
	}

	oldPath := node.Path
	if in.Slug != nil {
		slug := normalizeSlug(*in.Slug)
		if slug == "" {
			return nil, errors.InvalidArgument("slug must not be empty")
		}
		if slug != node.Slug {
			var clash int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM taxonomy_nodes WHERE slug = ? AND id != ?`,
				slug, id).Scan(&clash); err != nil {
				return nil, err
			}
			if clash > 0 {
				return nil, errors.Conflict("slug %q already exists", slug)
			}
			node.Slug = slug
			node.Path = parentPrefix(oldPath) + "/" + slug
		}
	}

	node.UpdatedAt = time.Now().UTC()
	keywordsJSON, err := json.Marshal(node.Keywords)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE taxonomy_nodes
		SET name = ?, slug = ?, path = ?, keywords = ?, description = ?,
		    allow_resources = ?, updated_at = ?
		WHERE id = ?`,
		node.Name, node.Slug, node.Path, string(keywordsJSON), node.Description,
		boolToInt(node.AllowResources), node.UpdatedAt.Format(time.RFC3339Nano), id); err != nil {
		return nil, fmt.Errorf("update taxonomy node: %w", err)
	}

	if node.Path != oldPath {
		if err := rewriteDescendantPaths(ctx, tx, oldPath, node.Path); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return node, nil
}

// Move reparents a node. Moving under itself or any of its descendants
// fails with Conflict and leaves the tree untouched.
func (s *Service) Move(ctx context.Context, id string, newParentID *string) (*model.TaxonomyNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	node, err := getNodeTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	parentPath := ""
	if newParentID != nil {
		if *newParentID == id {
			return nil, errors.Conflict("cannot move node %s under itself", id)
		}
		parent, err := getNodeTx(ctx, tx, *newParentID)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(parent.Path, node.Path+"/") {
			return nil, errors.Conflict("cannot move node %s under its descendant %s", id, parent.ID)
		}
		parentPath = parent.Path
	}

	oldPath := node.Path
	node.ParentID = newParentID
	node.Path = parentPath + "/" + node.Slug
	node.Level = strings.Count(node.Path, "/") - 1
	node.UpdatedAt = time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `
		UPDATE taxonomy_nodes SET parent_id = ?, path = ?, level = ?, updated_at = ?
		WHERE id = ?`,
		node.ParentID, node.Path, node.Level,
		node.UpdatedAt.Format(time.RFC3339Nano), id); err != nil {
		return nil, fmt.Errorf("move taxonomy node: %w", err)
	}
	if err := rewriteDescendantPaths(ctx, tx, oldPath, node.Path); err != nil {
		return nil, err
	}
	if err := recomputeDescendantCounts(ctx, tx); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return node, nil
}

// Delete removes a node. Without cascade the node must have no direct
// assignments; its children are reparented to the node's parent. With
// cascade the whole subtree and all its assignments are removed.
func (s *Service) Delete(ctx context.Context, id string, cascade bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	node, err := getNodeTx(ctx, tx, id)
	if err != nil {
		return err
	}

	if cascade {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM resource_taxonomy WHERE taxonomy_node_id IN (
				SELECT id FROM taxonomy_nodes WHERE id = ? OR path LIKE ? || '/%')`,
			id, node.Path); err != nil {
			return fmt.Errorf("delete subtree assignments: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM taxonomy_nodes WHERE id = ? OR path LIKE ? || '/%'`,
			id, node.Path); err != nil {
			return fmt.Errorf("delete subtree: %w", err)
		}
	} else {
		if node.ResourceCount > 0 {
			return errors.Conflict("node %s has %d assigned resources", id, node.ResourceCount)
		}

		// Reparent direct children one level up; their subtrees follow via
		// path rewrites.
		children, err := childrenTx(ctx, tx, id)
		if err != nil {
			return err
		}
		newPrefix := parentPrefix(node.Path)
		for _, child := range children {
			if _, err := tx.ExecContext(ctx, `
				UPDATE taxonomy_nodes SET parent_id = ?, path = ?, level = level - 1
				WHERE id = ?`,
				node.ParentID, newPrefix+"/"+child.Slug, child.ID); err != nil {
				return fmt.Errorf("reparent child: %w", err)
			}
			if err := rewriteDescendantPaths(ctx, tx, child.Path, newPrefix+"/"+child.Slug); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM taxonomy_nodes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete node: %w", err)
		}
	}

	if err := recomputeDescendantCounts(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// GetAncestors returns the chain from root to the node's parent, using the
// materialized path.
func (s *Service) GetAncestors(ctx context.Context, id string) ([]*model.TaxonomyNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	node, err := getNodeTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	// "/a/b/c" yields ancestor paths "/a" and "/a/b".
	segments := strings.Split(strings.TrimPrefix(node.Path, "/"), "/")
	paths := make([]any, 0, len(segments)-1)
	prefix := ""
	for _, seg := range segments[:len(segments)-1] {
		prefix += "/" + seg
		paths = append(paths, prefix)
	}
	if len(paths) == 0 {
		return []*model.TaxonomyNode{}, nil
	}

	query := fmt.Sprintf(
		`SELECT %s FROM taxonomy_nodes WHERE path IN (%s) ORDER BY level ASC`,
		nodeColumns, placeholders(len(paths)))
	rows, err := tx.QueryContext(ctx, query, paths...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanNodes(rows)
}

// GetDescendants returns the node's whole subtree (excluding the node),
// ordered by path.
func (s *Service) GetDescendants(ctx context.Context, id string) ([]*model.TaxonomyNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	node, err := getNodeTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT %s FROM taxonomy_nodes WHERE path LIKE ? || '/%%' ORDER BY path ASC`,
		nodeColumns)
	rows, err := tx.QueryContext(ctx, query, node.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanNodes(rows)
}

// GetTree returns the nested tree rooted at rootID, or the whole forest
// when rootID is empty. maxDepth limits levels below each returned root;
// 0 means unlimited.
func (s *Service) GetTree(ctx context.Context, rootID string, maxDepth int) ([]*model.TaxonomyTreeNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`SELECT %s FROM taxonomy_nodes ORDER BY path ASC`, nodeColumns)
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	all, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*model.TaxonomyTreeNode, len(all))
	for _, n := range all {
		byID[n.ID] = &model.TaxonomyTreeNode{TaxonomyNode: *n}
	}

	var roots []*model.TaxonomyTreeNode
	for _, n := range all {
		tn := byID[n.ID]
		if n.ParentID == nil {
			roots = append(roots, tn)
			continue
		}
		if parent, ok := byID[*n.ParentID]; ok {
			parent.Children = append(parent.Children, tn)
		}
	}

	if rootID != "" {
		root, ok := byID[rootID]
		if !ok {
			return nil, errors.NotFound("taxonomy node %s not found", rootID)
		}
		roots = []*model.TaxonomyTreeNode{root}
	}
	if maxDepth > 0 {
		for _, r := range roots {
			pruneDepth(r, maxDepth)
		}
	}
	return roots, nil
}

// Assign attaches a resource to a node. The review-policy invariant is
// enforced here; node and ancestor counts are updated in the same
// transaction. Re-assigning the same pair overwrites the row without
// double-counting.
func (s *Service) Assign(ctx context.Context, a model.ResourceTaxonomy) (*model.ResourceTaxonomy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return nil, errors.InvalidArgument("confidence must be in [0,1], got %v", a.Confidence)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	node, err := getNodeTx(ctx, tx, a.TaxonomyNodeID)
	if err != nil {
		return nil, err
	}
	if !node.AllowResources {
		return nil, errors.Conflict("node %s does not allow direct assignments", node.ID)
	}

	a.ApplyReviewPolicy()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	var existing int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM resource_taxonomy
		WHERE resource_id = ? AND taxonomy_node_id = ?`,
		a.ResourceID, a.TaxonomyNodeID).Scan(&existing); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO resource_taxonomy
			(resource_id, taxonomy_node_id, confidence, is_predicted, predicted_by,
			 needs_review, review_priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(resource_id, taxonomy_node_id) DO UPDATE SET
			confidence = excluded.confidence,
			is_predicted = excluded.is_predicted,
			predicted_by = excluded.predicted_by,
			needs_review = excluded.needs_review,
			review_priority = excluded.review_priority`,
		a.ResourceID, a.TaxonomyNodeID, a.Confidence, boolToInt(a.IsPredicted),
		a.PredictedBy, boolToInt(a.NeedsReview), a.ReviewPriority,
		a.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return nil, fmt.Errorf("insert assignment: %w", err)
	}

	if existing == 0 {
		if err := bumpCounts(ctx, tx, node, +1); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Unassign detaches a resource from a node and adjusts counts. Unknown
// pairs are a no-op.
func (s *Service) Unassign(ctx context.Context, resourceID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM resource_taxonomy
		WHERE resource_id = ? AND taxonomy_node_id = ?`, resourceID, nodeID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		node, err := getNodeTx(ctx, tx, nodeID)
		if err != nil {
			return err
		}
		if err := bumpCounts(ctx, tx, node, -1); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Assignments returns the assignments of one resource, highest confidence
// first.
func (s *Service) Assignments(ctx context.Context, resourceID string) ([]model.ResourceTaxonomy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_id, taxonomy_node_id, confidence, is_predicted,
		       predicted_by, needs_review, review_priority, created_at
		FROM resource_taxonomy
		WHERE resource_id = ?
		ORDER BY confidence DESC, taxonomy_node_id ASC`, resourceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.ResourceTaxonomy
	for rows.Next() {
		var (
			a                 model.ResourceTaxonomy
			predicted, review int
			createdAt         string
		)
		if err := rows.Scan(&a.ResourceID, &a.TaxonomyNodeID, &a.Confidence,
			&predicted, &a.PredictedBy, &review, &a.ReviewPriority, &createdAt); err != nil {
			return nil, err
		}
		a.IsPredicted = predicted != 0
		a.NeedsReview = review != 0
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close marks the service closed. The shared database handle is owned by
// the caller.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Service) checkOpen() error {
	if s.closed {
		return fmt.Errorf("taxonomy service is closed")
	}
	return nil
}

const nodeColumns = `id, name, slug, parent_id, level, path, keywords, description,
	resource_count, descendant_resource_count, allow_resources, created_at, updated_at`

func getNodeTx(ctx context.Context, tx *sql.Tx, id string) (*model.TaxonomyNode, error) {
	query := fmt.Sprintf(`SELECT %s FROM taxonomy_nodes WHERE id = ?`, nodeColumns)
	node, err := scanNode(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("taxonomy node %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	var children int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM taxonomy_nodes WHERE parent_id = ?`, id).Scan(&children); err != nil {
		return nil, err
	}
	node.IsLeaf = children == 0
	return node, nil
}

func childrenTx(ctx context.Context, tx *sql.Tx, id string) ([]*model.TaxonomyNode, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM taxonomy_nodes WHERE parent_id = ? ORDER BY slug ASC`, nodeColumns)
	rows, err := tx.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanNodes(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*model.TaxonomyNode, error) {
	var (
		node                 model.TaxonomyNode
		parentID             sql.NullString
		keywordsJSON         string
		allow                int
		createdAt, updatedAt string
	)
	err := row.Scan(&node.ID, &node.Name, &node.Slug, &parentID, &node.Level,
		&node.Path, &keywordsJSON, &node.Description, &node.ResourceCount,
		&node.DescendantResourceCount, &allow, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		node.ParentID = &parentID.String
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &node.Keywords); err != nil {
		return nil, fmt.Errorf("decode keywords: %w", err)
	}
	node.AllowResources = allow != 0
	node.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	node.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &node, nil
}

func scanNodes(rows *sql.Rows) ([]*model.TaxonomyNode, error) {
	var out []*model.TaxonomyNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, rows.Err()
}

// rewriteDescendantPaths replaces the oldPrefix of every descendant path
// with newPrefix and recomputes levels from the rewritten paths.
func rewriteDescendantPaths(ctx context.Context, tx *sql.Tx, oldPrefix, newPrefix string) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, path FROM taxonomy_nodes WHERE path LIKE ? || '/%'`, oldPrefix)
	if err != nil {
		return err
	}
	type rewrite struct{ id, path string }
	var rewrites []rewrite
	for rows.Next() {
		var r rewrite
		if err := rows.Scan(&r.id, &r.path); err != nil {
			_ = rows.Close()
			return err
		}
		r.path = newPrefix + strings.TrimPrefix(r.path, oldPrefix)
		rewrites = append(rewrites, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, r := range rewrites {
		level := strings.Count(r.path, "/") - 1
		if _, err := tx.ExecContext(ctx,
			`UPDATE taxonomy_nodes SET path = ?, level = ? WHERE id = ?`,
			r.path, level, r.id); err != nil {
			return fmt.Errorf("rewrite descendant path: %w", err)
		}
	}
	return nil
}

// bumpCounts adjusts the node's direct count and every ancestor's
// descendant count by delta.
func bumpCounts(ctx context.Context, tx *sql.Tx, node *model.TaxonomyNode, delta int) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE taxonomy_nodes SET resource_count = resource_count + ? WHERE id = ?`,
		delta, node.ID); err != nil {
		return err
	}

	segments := strings.Split(strings.TrimPrefix(node.Path, "/"), "/")
	prefix := ""
	for _, seg := range segments[:len(segments)-1] {
		prefix += "/" + seg
		if _, err := tx.ExecContext(ctx, `
			UPDATE taxonomy_nodes
			SET descendant_resource_count = descendant_resource_count + ?
			WHERE path = ?`, delta, prefix); err != nil {
			return err
		}
	}
	return nil
}

// recomputeDescendantCounts rebuilds descendant_resource_count for the whole
// tree from direct counts. Subtree mutations change ancestor sets wholesale,
// so a rebuild is simpler than tracking deltas.
func recomputeDescendantCounts(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE taxonomy_nodes SET descendant_resource_count = (
			SELECT COALESCE(SUM(d.resource_count), 0)
			FROM taxonomy_nodes d
			WHERE d.path LIKE taxonomy_nodes.path || '/%'
		)`)
	return err
}

func pruneDepth(n *model.TaxonomyTreeNode, depth int) {
	if depth <= 1 {
		n.Children = nil
		return
	}
	for _, c := range n.Children {
		pruneDepth(c, depth-1)
	}
}

func parentPrefix(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return ""
	}
	return path[:i]
}

// normalizeSlug lowercases and hyphenates a candidate slug, dropping any
// rune that is not alphanumeric or '-'.
func normalizeSlug(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	lastHyphen := true
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
