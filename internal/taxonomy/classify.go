package taxonomy

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neo-alexandria/neoalex/internal/model"
)

// Source weights for keyword hits during classification.
const (
	classifyWeightTitle       = 3
	classifyWeightSubjects    = 2
	classifyWeightDescription = 1
)

// maxPredictions bounds how many nodes one classification may assign.
const maxPredictions = 3

// predictedByRules tags assignments produced by the keyword classifier.
const predictedByRules = "keyword-rules"

// ClassifyResource matches a resource against node keywords and replaces
// its predicted assignments with the top matches. Manual assignments are
// never touched. Nodes with allow_resources=false are scored but dropped
// from the result. Returns the new predicted assignments, best first.
func (s *Service) ClassifyResource(ctx context.Context, r *model.Resource) ([]model.ResourceTaxonomy, error) {
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

	query := fmt.Sprintf(`SELECT %s FROM taxonomy_nodes`, nodeColumns)
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	nodes, err := scanNodes(rows)
	_ = rows.Close()
	if err != nil {
		return nil, err
	}

	title := strings.ToLower(r.Title)
	desc := strings.ToLower(r.Description)
	subjects := strings.ToLower(strings.Join(r.Subject, " "))

	type match struct {
		node  *model.TaxonomyNode
		score int
	}
	var matches []match
	maxScore := 0
	for _, node := range nodes {
		score := 0
		for _, kw := range node.Keywords {
			kw = strings.ToLower(kw)
			if kw == "" {
				continue
			}
			score += classifyWeightTitle * strings.Count(title, kw)
			score += classifyWeightSubjects * strings.Count(subjects, kw)
			score += classifyWeightDescription * strings.Count(desc, kw)
		}
		if score == 0 {
			continue
		}
		if score > maxScore {
			maxScore = score
		}
		// Closed nodes still contribute to normalization but are never
		// assigned.
		if !node.AllowResources {
			continue
		}
		matches = append(matches, match{node: node, score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].node.ID < matches[j].node.ID
	})
	if len(matches) > maxPredictions {
		matches = matches[:maxPredictions]
	}

	if err := s.replacePredicted(ctx, tx, r.ID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]model.ResourceTaxonomy, 0, len(matches))
	for _, m := range matches {
		a := model.ResourceTaxonomy{
			ResourceID:     r.ID,
			TaxonomyNodeID: m.node.ID,
			Confidence:     float64(m.score) / float64(maxScore),
			IsPredicted:    true,
			PredictedBy:    predictedByRules,
			CreatedAt:      now,
		}
		a.ApplyReviewPolicy()

		// A surviving manual assignment on the same node wins; skip it.
		var existing int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM resource_taxonomy
			WHERE resource_id = ? AND taxonomy_node_id = ?`,
			a.ResourceID, a.TaxonomyNodeID).Scan(&existing); err != nil {
			return nil, err
		}
		if existing > 0 {
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO resource_taxonomy
				(resource_id, taxonomy_node_id, confidence, is_predicted, predicted_by,
				 needs_review, review_priority, created_at)
			VALUES (?, ?, ?, 1, ?, ?, ?, ?)`,
			a.ResourceID, a.TaxonomyNodeID, a.Confidence, a.PredictedBy,
			boolToInt(a.NeedsReview), a.ReviewPriority,
			now.Format(time.RFC3339Nano)); err != nil {
			return nil, fmt.Errorf("insert predicted assignment: %w", err)
		}
		if err := bumpCounts(ctx, tx, m.node, +1); err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// replacePredicted drops the resource's predicted assignments and rolls
// their counts back. Manual assignments survive reclassification.
func (s *Service) replacePredicted(ctx context.Context, tx *sql.Tx, resourceID string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT taxonomy_node_id FROM resource_taxonomy
		WHERE resource_id = ? AND is_predicted = 1`, resourceID)
	if err != nil {
		return err
	}
	var nodeIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		nodeIDs = append(nodeIDs, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, nodeID := range nodeIDs {
		node, err := getNodeTx(ctx, tx, nodeID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM resource_taxonomy
			WHERE resource_id = ? AND taxonomy_node_id = ?`, resourceID, nodeID); err != nil {
			return err
		}
		if err := bumpCounts(ctx, tx, node, -1); err != nil {
			return err
		}
	}
	return nil
}

// NeedsReview returns assignments flagged for human review, highest
// priority first, up to limit.
func (s *Service) NeedsReview(ctx context.Context, limit int) ([]model.ResourceTaxonomy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_id, taxonomy_node_id, confidence, is_predicted,
		       predicted_by, needs_review, review_priority, created_at
		FROM resource_taxonomy
		WHERE needs_review = 1
		ORDER BY review_priority DESC, resource_id ASC
		LIMIT ?`, limit)
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
