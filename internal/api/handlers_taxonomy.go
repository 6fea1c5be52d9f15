package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/neo-alexandria/neoalex/internal/model"
	"github.com/neo-alexandria/neoalex/internal/taxonomy"
)

// handleTaxonomyTree serves GET /taxonomy/tree?root_id=&max_depth=.
func (s *Server) handleTaxonomyTree(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	maxDepth := 0
	if v := params.Get("max_depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeSchemaError(w, err)
			return
		}
		maxDepth = n
	}

	tree, err := s.taxonomy.GetTree(r.Context(), params.Get("root_id"), maxDepth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tree": tree})
}

// taxonomyNodeRequest is the create/update body.
type taxonomyNodeRequest struct {
	Name           string   `json:"name"`
	Slug           string   `json:"slug"`
	ParentID       *string  `json:"parent_id"`
	Keywords       []string `json:"keywords"`
	Description    *string  `json:"description"`
	AllowResources *bool    `json:"allow_resources"`
}

// handleTaxonomyCreate serves POST /taxonomy/nodes.
func (s *Server) handleTaxonomyCreate(w http.ResponseWriter, r *http.Request) {
	var req taxonomyNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeSchemaError(w, err)
		return
	}

	in := taxonomy.CreateInput{
		Name:           req.Name,
		Slug:           req.Slug,
		ParentID:       req.ParentID,
		Keywords:       req.Keywords,
		AllowResources: true,
	}
	if req.Description != nil {
		in.Description = *req.Description
	}
	if req.AllowResources != nil {
		in.AllowResources = *req.AllowResources
	}

	node, err := s.taxonomy.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

// handleTaxonomyUpdate serves PUT /taxonomy/nodes/{id}.
func (s *Server) handleTaxonomyUpdate(w http.ResponseWriter, r *http.Request) {
	var req taxonomyNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeSchemaError(w, err)
		return
	}

	in := taxonomy.UpdateInput{
		Keywords:       req.Keywords,
		Description:    req.Description,
		AllowResources: req.AllowResources,
	}
	if req.Name != "" {
		in.Name = &req.Name
	}
	if req.Slug != "" {
		in.Slug = &req.Slug
	}

	node, err := s.taxonomy.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// handleTaxonomyDelete serves DELETE /taxonomy/nodes/{id}?cascade=true.
func (s *Server) handleTaxonomyDelete(w http.ResponseWriter, r *http.Request) {
	cascade := r.URL.Query().Get("cascade") == "true"
	if err := s.taxonomy.Delete(r.Context(), chi.URLParam(r, "id"), cascade); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// moveRequest is the POST /taxonomy/nodes/{id}/move body. A null parent
// moves the node to the root.
type moveRequest struct {
	NewParentID *string `json:"new_parent_id"`
}

// handleTaxonomyMove serves POST /taxonomy/nodes/{id}/move.
func (s *Server) handleTaxonomyMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeSchemaError(w, err)
		return
	}

	node, err := s.taxonomy.Move(r.Context(), chi.URLParam(r, "id"), req.NewParentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// assignRequest is the POST /taxonomy/nodes/{id}/assign body.
type assignRequest struct {
	ResourceID  string  `json:"resource_id"`
	Confidence  float64 `json:"confidence"`
	IsPredicted bool    `json:"is_predicted"`
	PredictedBy string  `json:"predicted_by"`
}

// handleTaxonomyAssign serves POST /taxonomy/nodes/{id}/assign.
func (s *Server) handleTaxonomyAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeSchemaError(w, err)
		return
	}

	a, err := s.taxonomy.Assign(r.Context(), model.ResourceTaxonomy{
		ResourceID:     req.ResourceID,
		TaxonomyNodeID: chi.URLParam(r, "id"),
		Confidence:     req.Confidence,
		IsPredicted:    req.IsPredicted,
		PredictedBy:    req.PredictedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}
