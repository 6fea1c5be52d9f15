package api

import (
	"net/http"

	"github.com/neo-alexandria/neoalex/internal/authority"
)

// handleSuggestSubjects serves GET /authority/subjects/suggest?q=prefix.
func (s *Server) handleSuggestSubjects(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.authority.SuggestSubjects(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"suggestions": suggestions})
}

// handleClassificationTree serves GET /authority/classification/tree.
func (s *Server) handleClassificationTree(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]authority.ClassNode{
		"tree": authority.ClassificationTree(),
	})
}
