package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo-alexandria/neoalex/internal/ai"
	"github.com/neo-alexandria/neoalex/internal/authority"
	"github.com/neo-alexandria/neoalex/internal/bus"
	"github.com/neo-alexandria/neoalex/internal/ingest"
	"github.com/neo-alexandria/neoalex/internal/model"
	"github.com/neo-alexandria/neoalex/internal/search"
	"github.com/neo-alexandria/neoalex/internal/store"
	"github.com/neo-alexandria/neoalex/internal/taxonomy"
	"github.com/neo-alexandria/neoalex/internal/telemetry"
)

const testDims = 64

type testServer struct {
	srv     *httptest.Server
	coord   *ingest.Coordinator
	tax     *taxonomy.Service
	metrics *telemetry.Collector
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	resources, err := store.NewSQLiteResourceStore(filepath.Join(dir, "resources.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resources.Close() })

	lexical, err := store.NewSQLiteLexicalIndex(filepath.Join(dir, "lexical.db"), store.DefaultLexicalConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	dense, err := store.NewHNSWDenseIndex(store.DefaultDenseConfig(testDims))
	require.NoError(t, err)
	sparse := store.NewMemSparseIndex()

	client := ai.NewStaticClient(testDims)

	authStore, err := authority.NewStore(resources.DB())
	require.NoError(t, err)
	auth := authority.NewService(authStore)

	tax, err := taxonomy.NewService(resources.DB())
	require.NoError(t, err)

	b := bus.New(bus.Options{})
	coord := ingest.New(resources, lexical, dense, sparse, client, auth, b)
	engine := search.NewEngine(search.DefaultEngineConfig(), resources, lexical, dense, sparse, client)
	metrics := telemetry.NewCollector()

	rerankCache, err := search.NewRerankCache(64)
	require.NoError(t, err)

	server := NewServer(Options{
		Engine:      engine,
		RerankCache: rerankCache,
		Authority:   auth,
		Taxonomy:    tax,
		Ingest:      coord,
		Telemetry:   metrics,
		Bus:         b,
	})

	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, coord: coord, tax: tax, metrics: metrics}
}

func (ts *testServer) seed(t *testing.T, title, description string, subjects ...string) *model.Resource {
	t.Helper()
	r, err := ts.coord.Ingest(context.Background(), &model.Resource{
		Title:       title,
		Description: description,
		Subject:     subjects,
		Language:    "en",
	})
	require.NoError(t, err)
	return r
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func TestPostSearch(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "Machine learning basics", "Gradient descent from scratch.")
	ts.seed(t, "Cooking pasta", "Boil water, add salt.")

	resp, body := ts.do(t, http.MethodPost, "/search", map[string]any{
		"text": "machine learning", "limit": 10,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res search.SearchResults
	require.NoError(t, json.Unmarshal(body, &res))
	require.NotEmpty(t, res.Items)
	assert.Equal(t, "Machine learning basics", res.Items[0].Title)
	assert.Len(t, res.WeightsUsed, 3)
	assert.NotEmpty(t, res.Snippets)

	assert.Equal(t, int64(1), ts.metrics.Snapshot().TotalQueries)
}

func TestPostSearchMalformedBody(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/search",
		bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPostSearchInvalidLimit(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/search", map[string]any{
		"text": "x", "limit": 5000,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var e map[string]string
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Contains(t, e["detail"], "limit")
}

func TestThreeWayHybridEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "Quantum physics", "Wave functions and operators.")

	resp, body := ts.do(t, http.MethodGet,
		"/search/three-way-hybrid?query=quantum+physics&limit=5&adaptive_weighting=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res search.SearchResults
	require.NoError(t, json.Unmarshal(body, &res))
	require.NotEmpty(t, res.Items)
	assert.Len(t, res.WeightsUsed, 3)
	assert.GreaterOrEqual(t, res.LatencyMS, 0.0)
}

func TestCompareMethodsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "Database indexing", "B-tree and hash indexes.")

	resp, body := ts.do(t, http.MethodGet, "/search/compare-methods?query=database&limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cmp search.Comparison
	require.NoError(t, json.Unmarshal(body, &cmp))
	assert.Equal(t, "database", cmp.Query)
	assert.NotEmpty(t, cmp.FTS5.IDs)
}

func TestEvaluateEndpoint(t *testing.T) {
	ts := newTestServer(t)
	r := ts.seed(t, "Machine learning", "Neural networks.")

	resp, body := ts.do(t, http.MethodPost, "/search/evaluate", map[string]any{
		"query":               "machine learning",
		"relevance_judgments": map[string]int{r.ID: 3},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var metrics map[string]float64
	require.NoError(t, json.Unmarshal(body, &metrics))
	assert.InDelta(t, 1.0, metrics["ndcg@20"], 1e-9)
	assert.InDelta(t, 1.0, metrics["mrr"], 1e-9)
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/search", map[string]any{"text": "anything"})

	resp, body := ts.do(t, http.MethodGet, "/search/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Contains(t, stats, "search")
	assert.Contains(t, stats, "bus")
}

func TestSuggestSubjectsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "Intro", "", "ml")

	resp, body := ts.do(t, http.MethodGet, "/authority/subjects/suggest?q=machine", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string][]string
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Contains(t, out["suggestions"], "Machine Learning")
}

func TestClassificationTreeEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/authority/classification/tree", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string][]authority.ClassNode
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out["tree"], 4)
	assert.Equal(t, "000", out["tree"][0].Code)
}

func TestTaxonomyLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/taxonomy/nodes", map[string]any{
		"name": "Artificial Intelligence",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var root model.TaxonomyNode
	require.NoError(t, json.Unmarshal(body, &root))
	assert.Equal(t, "/artificial-intelligence", root.Path)

	resp, body = ts.do(t, http.MethodPost, "/taxonomy/nodes", map[string]any{
		"name": "Machine Learning", "parent_id": root.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var child model.TaxonomyNode
	require.NoError(t, json.Unmarshal(body, &child))

	// Duplicate slug conflicts.
	resp, _ = ts.do(t, http.MethodPost, "/taxonomy/nodes", map[string]any{
		"name": "Machine Learning",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Cycle rejected.
	resp, _ = ts.do(t, http.MethodPost, "/taxonomy/nodes/"+root.ID+"/move", map[string]any{
		"new_parent_id": child.ID,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Tree renders nested.
	resp, body = ts.do(t, http.MethodGet, "/taxonomy/tree", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tree map[string][]model.TaxonomyTreeNode
	require.NoError(t, json.Unmarshal(body, &tree))
	require.Len(t, tree["tree"], 1)
	require.Len(t, tree["tree"][0].Children, 1)

	// Assign then non-cascade delete conflicts.
	r := ts.seed(t, "Paper", "")
	resp, _ = ts.do(t, http.MethodPost, "/taxonomy/nodes/"+child.ID+"/assign", map[string]any{
		"resource_id": r.ID, "confidence": 1.0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodDelete, "/taxonomy/nodes/"+child.ID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodDelete, "/taxonomy/nodes/"+child.ID+"?cascade=true", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestResourceLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/resources", map[string]any{
		"title":       "A note",
		"description": "About nothing in particular.",
		"creator":     "doe, jane",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created model.Resource
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "Jane Doe", created.Creator)
	assert.Equal(t, model.IngestionCompleted, created.IngestionStatus)

	resp, _ = ts.do(t, http.MethodGet, "/resources/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/resources/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var e map[string]string
	require.NoError(t, json.Unmarshal(body, &e))
	assert.NotEmpty(t, e["detail"])

	resp, _ = ts.do(t, http.MethodDelete, fmt.Sprintf("/resources/%s", created.ID), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestResourceInvalidReadStatus(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodPost, "/resources", map[string]any{
		"title": "x", "read_status": "someday",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
