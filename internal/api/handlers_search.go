package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/neo-alexandria/neoalex/internal/relevance"
	"github.com/neo-alexandria/neoalex/internal/search"
	"github.com/neo-alexandria/neoalex/internal/store"
	"github.com/neo-alexandria/neoalex/internal/telemetry"
)

// handleSearch serves POST /search with the full SearchQuery body.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var q search.Query
	if err := decodeJSON(r, &q); err != nil {
		writeSchemaError(w, err)
		return
	}

	start := time.Now()
	res, err := s.engine.SearchWithCache(r.Context(), q, s.rerankCache)
	if err != nil {
		writeError(w, err)
		return
	}

	s.telemetry.Record(queryKind(q), time.Since(start), res.Total)
	writeJSON(w, http.StatusOK, res)
}

// handleThreeWayHybrid serves GET /search/three-way-hybrid with query
// parameters only; always the three-way relevance path.
func (s *Server) handleThreeWayHybrid(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	q := search.Query{
		Text:              params.Get("query"),
		EnableReranking:   params.Get("enable_reranking") == "true",
		AdaptiveWeighting: params.Get("adaptive_weighting") == "true",
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeSchemaError(w, err)
			return
		}
		q.Limit = n
	}
	if v := params.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeSchemaError(w, err)
			return
		}
		q.Offset = n
	}

	start := time.Now()
	res, err := s.engine.SearchWithCache(r.Context(), q, s.rerankCache)
	if err != nil {
		writeError(w, err)
		return
	}

	s.telemetry.Record(telemetry.QueryThreeWay, time.Since(start), res.Total)
	writeJSON(w, http.StatusOK, res)
}

// handleCompareMethods serves GET /search/compare-methods.
func (s *Server) handleCompareMethods(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	limit := 0
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeSchemaError(w, err)
			return
		}
		limit = n
	}

	start := time.Now()
	cmp, err := s.engine.CompareMethods(r.Context(), params.Get("query"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	s.telemetry.Record(telemetry.QueryCompare, time.Since(start), len(cmp.FTS5.IDs))
	writeJSON(w, http.StatusOK, cmp)
}

// evaluateRequest is the POST /search/evaluate body.
type evaluateRequest struct {
	Query              string         `json:"query"`
	RelevanceJudgments map[string]int `json:"relevance_judgments"`
}

// handleEvaluate serves POST /search/evaluate.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeSchemaError(w, err)
		return
	}

	start := time.Now()
	metrics := s.evaluator.Evaluate(r.Context(), req.Query, relevance.Judgments(req.RelevanceJudgments))
	s.telemetry.Record(telemetry.QueryEvaluate, time.Since(start), len(req.RelevanceJudgments))
	writeJSON(w, http.StatusOK, metrics)
}

// statsResponse bundles the admin-facing counters.
type statsResponse struct {
	Search telemetry.Stats `json:"search"`
	Bus    any             `json:"bus"`
}

// handleStats serves GET /search/stats.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Search: s.telemetry.Snapshot(),
		Bus:    s.bus.GetMetrics(),
	})
}

// queryKind labels a POST /search request for telemetry.
func queryKind(q search.Query) telemetry.QueryKind {
	if strings.TrimSpace(q.Text) == "" || (q.SortBy != "" && q.SortBy != store.SortRelevance) {
		return telemetry.QueryStructured
	}
	if !q.EnableReranking && q.HybridWeight != nil {
		return telemetry.QueryTwoWay
	}
	return telemetry.QueryThreeWay
}
