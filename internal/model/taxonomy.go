package model

import "time"

// TaxonomyNode is a node in the classification hierarchy.
//
// Path is the materialized root-to-node slug sequence ("/ai/ml/nlp").
// Level is 0 at roots and equals strings.Count(Path, "/") - 1. Both are
// maintained by the taxonomy service; callers never set them directly.
type TaxonomyNode struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Slug     string  `json:"slug"` // URL-safe, unique across the tree
	ParentID *string `json:"parent_id,omitempty"`

	Level int    `json:"level"`
	Path  string `json:"path"`

	Keywords    []string `json:"keywords,omitempty"`
	Description string   `json:"description,omitempty"`

	ResourceCount           int  `json:"resource_count"`
	DescendantResourceCount int  `json:"descendant_resource_count"`
	IsLeaf                  bool `json:"is_leaf"`
	AllowResources          bool `json:"allow_resources"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReviewThreshold is the prediction confidence below which an assignment
// must be flagged for human review.
const ReviewThreshold = 0.7

// ResourceTaxonomy assigns a resource to a taxonomy node.
//
// Invariant: Confidence < ReviewThreshold implies NeedsReview with
// ReviewPriority = 1 - Confidence.
type ResourceTaxonomy struct {
	ResourceID     string  `json:"resource_id"`
	TaxonomyNodeID string  `json:"taxonomy_node_id"`
	Confidence     float64 `json:"confidence"` // [0,1]; manual assignments use 1
	IsPredicted    bool    `json:"is_predicted"`
	PredictedBy    string  `json:"predicted_by,omitempty"`
	NeedsReview    bool    `json:"needs_review"`
	ReviewPriority float64 `json:"review_priority"`

	CreatedAt time.Time `json:"created_at"`
}

// ApplyReviewPolicy enforces the low-confidence review invariant.
func (a *ResourceTaxonomy) ApplyReviewPolicy() {
	if a.Confidence < ReviewThreshold {
		a.NeedsReview = true
		a.ReviewPriority = 1 - a.Confidence
	}
}

// TaxonomyTreeNode is a node plus its children, used for tree responses.
type TaxonomyTreeNode struct {
	TaxonomyNode
	Children []*TaxonomyTreeNode `json:"children,omitempty"`
}
