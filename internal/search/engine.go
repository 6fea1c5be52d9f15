package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neo-alexandria/neoalex/internal/ai"
	"github.com/neo-alexandria/neoalex/internal/model"
	"github.com/neo-alexandria/neoalex/internal/store"
)

// legCandidateFloor is the minimum per-leg candidate pool. Legs always fetch
// at least this many so deep pages fuse over the same head of each list.
const legCandidateFloor = 100

// Engine is the hybrid search engine. It owns no storage; every dependency
// is injected so tests can swap legs freely.
type Engine struct {
	// mu guards the fusion weight fields of cfg, which config hot reload
	// may replace while searches run. The remaining fields are read-only.
	mu        sync.RWMutex
	cfg       Config
	resources store.ResourceStore
	lexical   store.LexicalIndex
	dense     store.DenseIndex
	sparse    store.SparseIndex
	ai        ai.Client
	reranker  *Reranker
}

// NewEngine creates a search engine over the given stores and model client.
func NewEngine(cfg Config, resources store.ResourceStore, lexical store.LexicalIndex,
	dense store.DenseIndex, sparse store.SparseIndex, client ai.Client) *Engine {

	e := &Engine{
		cfg:       cfg,
		resources: resources,
		lexical:   lexical,
		dense:     dense,
		sparse:    sparse,
		ai:        client,
	}
	if client != nil {
		e.reranker = NewReranker(client, resources, cfg.RerankTimeout)
	}
	return e
}

// Search routes and executes a query. Retrieval failures degrade to fewer
// legs; only invalid arguments produce an error.
func (e *Engine) Search(ctx context.Context, q Query) (*SearchResults, error) {
	return e.search(ctx, q, nil)
}

// SearchWithCache is Search with a caller-owned rerank cache.
func (e *Engine) SearchWithCache(ctx context.Context, q Query, cache *RerankCache) (*SearchResults, error) {
	return e.search(ctx, q, cache)
}

func (e *Engine) search(ctx context.Context, q Query, cache *RerankCache) (*SearchResults, error) {
	if err := q.validate(e.cfg); err != nil {
		return nil, err
	}

	start := time.Now()

	// Structured mode: no text means no relevance scoring and no snippets.
	// An explicit column sort likewise bypasses all scoring.
	if strings.TrimSpace(q.Text) == "" || q.SortBy != store.SortRelevance {
		return e.structuredSearch(ctx, q, start)
	}

	return e.relevanceSearch(ctx, q, cache, start)
}

// structuredSearch applies filters, sorts by the selected column and
// paginates. Facets cover the full filtered set.
func (e *Engine) structuredSearch(ctx context.Context, q Query, start time.Time) (*SearchResults, error) {
	results := &SearchResults{
		Items:       []*model.Resource{},
		Snippets:    map[string]string{},
		WeightsUsed: []float64{0, 0, 0},
	}

	sortBy := q.SortBy
	if sortBy == store.SortRelevance {
		sortBy = store.SortUpdatedAt
	}

	total, err := e.resources.Count(ctx, q.Filters)
	if err != nil {
		slog.Error("structured search count failed", "error", err)
		results.LatencyMS = msSince(start)
		return results, nil
	}
	results.Total = total

	items, err := e.resources.List(ctx, q.Filters, sortBy, q.SortDir, q.Limit, q.Offset)
	if err != nil {
		slog.Error("structured search list failed", "error", err)
		results.Total = 0
		results.LatencyMS = msSince(start)
		return results, nil
	}
	if items != nil {
		results.Items = items
	}

	if facets, err := e.resources.Facets(ctx, q.Filters); err == nil {
		results.Facets = facets
	} else {
		slog.Warn("facet computation failed", "error", err)
	}

	results.LatencyMS = msSince(start)
	return results, nil
}

// legOutput is one retrieval leg's ranked candidates after filtering.
type legOutput struct {
	ids    []string
	scores map[string]float64
}

// relevanceSearch runs the routed retrieval legs, fuses, optionally reranks,
// paginates and assembles the response.
func (e *Engine) relevanceSearch(ctx context.Context, q Query, cache *RerankCache, start time.Time) (*SearchResults, error) {
	results := &SearchResults{
		Items:    []*model.Resource{},
		Snippets: map[string]string{},
	}

	allowed, err := e.resources.FilterIDs(ctx, q.Filters)
	if err != nil {
		slog.Error("filter evaluation failed", "error", err)
		results.WeightsUsed = []float64{0, 0, 0}
		results.LatencyMS = msSince(start)
		return results, nil
	}

	legK := q.Offset + q.Limit
	if legK < legCandidateFloor {
		legK = legCandidateFloor
	}

	twoWay := !q.EnableReranking && q.HybridWeight != nil

	var lex, dense, sparse legOutput
	g, legCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lex = e.lexicalLeg(legCtx, q, allowed, legK)
		return nil
	})
	g.Go(func() error {
		dense = e.denseLeg(legCtx, q.Text, allowed, legK)
		return nil
	})
	if !twoWay {
		g.Go(func() error {
			sparse = e.sparseLeg(legCtx, q.Text, allowed, legK)
			return nil
		})
	}
	_ = g.Wait()

	results.MethodContributions = MethodContributions{
		FTS5:   len(lex.ids),
		Dense:  len(dense.ids),
		Sparse: len(sparse.ids),
	}

	var fused []FusedResult
	if twoWay {
		w := *q.HybridWeight
		fused = fuseTwoWay(lex, dense, w)
		results.WeightsUsed = []float64{1 - w, w, 0}
	} else {
		weights, rrfK := e.fusionDefaults()
		if q.AdaptiveWeighting {
			weights = AdaptiveWeights(q.Text)
		}
		weights = sanitizeWeights(weights, 3)
		fused = FuseRRF([][]string{lex.ids, dense.ids, sparse.ids}, weights, rrfK)
		results.WeightsUsed = weights
	}

	meta, err := e.resources.GetRankMeta(ctx, fusedIDs(fused))
	if err != nil {
		slog.Warn("rank metadata load failed", "error", err)
		meta = map[string]store.RankMeta{}
	}
	sortFused(fused, meta, q.Filters.ClassificationCode)

	if q.EnableReranking && e.reranker != nil {
		fused = e.applyRerank(ctx, q, fused, cache)
	}

	results.Total = len(fused)

	pageIDs := pageOf(fusedIDs(fused), q.Offset, q.Limit)
	if len(pageIDs) > 0 {
		items, err := e.resources.GetMany(ctx, pageIDs)
		if err != nil {
			slog.Error("page load failed", "error", err)
		} else {
			results.Items = items
		}
	}

	if facets, err := e.resources.FacetsForIDs(ctx, fusedIDs(fused)); err == nil {
		results.Facets = facets
	} else {
		slog.Warn("facet computation failed", "error", err)
	}

	terms := store.ParseQuery(q.Text).Terms()
	for _, item := range results.Items {
		if s := buildSnippet(snippetSource(item.Title, item.Description), terms); s != "" {
			results.Snippets[item.ID] = s
		}
	}

	results.LatencyMS = msSince(start)
	return results, nil
}

// lexicalLeg runs the full-text leg, restricts it to the allowed set and
// applies the quality and classification boosts to BM25 scores before any
// normalization.
func (e *Engine) lexicalLeg(ctx context.Context, q Query, allowed map[string]struct{}, k int) legOutput {
	ctx, cancel := context.WithTimeout(ctx, e.legTimeout())
	defer cancel()

	raw, err := e.lexical.Search(ctx, q.Text, k*2)
	if err != nil {
		slog.Warn("lexical leg failed, degrading", "error", err)
		return legOutput{}
	}

	out := legOutput{scores: make(map[string]float64)}
	for _, r := range raw {
		if _, ok := allowed[r.DocID]; !ok {
			continue
		}
		out.ids = append(out.ids, r.DocID)
		out.scores[r.DocID] = r.Score
	}

	e.boostLexical(ctx, &out, q.Filters.ClassificationCode)

	if len(out.ids) > k {
		out.ids = out.ids[:k]
	}
	return out
}

// boostLexical multiplies BM25 scores by quality and filter-match factors and
// re-sorts the leg. The factors are small so they reorder near-ties without
// drowning the text relevance signal.
func (e *Engine) boostLexical(ctx context.Context, leg *legOutput, classFilter []string) {
	if len(leg.ids) == 0 {
		return
	}

	meta, err := e.resources.GetRankMeta(ctx, leg.ids)
	if err != nil {
		return
	}

	classSet := make(map[string]struct{}, len(classFilter))
	for _, c := range classFilter {
		classSet[c] = struct{}{}
	}

	for id, score := range leg.scores {
		m, ok := meta[id]
		if !ok {
			continue
		}
		boost := 1 + 0.1*m.QualityOverall
		if _, match := classSet[m.ClassificationCode]; match {
			boost *= 1.05
		}
		leg.scores[id] = score * boost
	}

	sort.SliceStable(leg.ids, func(i, j int) bool {
		si, sj := leg.scores[leg.ids[i]], leg.scores[leg.ids[j]]
		if si != sj {
			return si > sj
		}
		return leg.ids[i] < leg.ids[j]
	})
}

// denseLeg embeds the query and searches the vector index. Any failure
// leaves the leg empty.
func (e *Engine) denseLeg(ctx context.Context, text string, allowed map[string]struct{}, k int) legOutput {
	if e.ai == nil || e.dense == nil || e.dense.Count() == 0 {
		return legOutput{}
	}

	ctx, cancel := context.WithTimeout(ctx, e.legTimeout())
	defer cancel()

	qv, err := e.ai.Embed(ctx, text)
	if err != nil {
		slog.Warn("query embedding failed, dense leg degrading", "error", err)
		return legOutput{}
	}

	raw, err := e.dense.Search(ctx, qv, k*2)
	if err != nil {
		slog.Warn("dense leg failed, degrading", "error", err)
		return legOutput{}
	}

	out := legOutput{scores: make(map[string]float64)}
	for _, r := range raw {
		if _, ok := allowed[r.ID]; !ok {
			continue
		}
		out.ids = append(out.ids, r.ID)
		out.scores[r.ID] = float64(r.Score)
		if len(out.ids) == k {
			break
		}
	}
	return out
}

// sparseLeg obtains the query's sparse vector and scores by dot product. A
// missing sparse model leaves the leg empty.
func (e *Engine) sparseLeg(ctx context.Context, text string, allowed map[string]struct{}, k int) legOutput {
	if e.ai == nil || e.sparse == nil {
		return legOutput{}
	}

	ctx, cancel := context.WithTimeout(ctx, e.legTimeout())
	defer cancel()

	sv, err := e.ai.SparseEmbed(ctx, text)
	if err != nil {
		slog.Warn("sparse query embedding failed, sparse leg degrading", "error", err)
		return legOutput{}
	}

	raw, err := e.sparse.Search(ctx, sv, k*2)
	if err != nil {
		slog.Warn("sparse leg failed, degrading", "error", err)
		return legOutput{}
	}

	out := legOutput{scores: make(map[string]float64)}
	for _, r := range raw {
		if _, ok := allowed[r.ID]; !ok {
			continue
		}
		out.ids = append(out.ids, r.ID)
		out.scores[r.ID] = r.Score
		if len(out.ids) == k {
			break
		}
	}
	return out
}

// UpdateWeights replaces the default fusion weights and RRF constant.
// Called by config hot reload; in-flight searches keep the weights they
// started with.
func (e *Engine) UpdateWeights(lexical, dense, sparse float64, rrfConstant int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.LexicalWeight = lexical
	e.cfg.DenseWeight = dense
	e.cfg.SparseWeight = sparse
	if rrfConstant > 0 {
		e.cfg.RRFConstant = rrfConstant
	}
}

func (e *Engine) fusionDefaults() ([]float64, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return []float64{e.cfg.LexicalWeight, e.cfg.DenseWeight, e.cfg.SparseWeight}, e.cfg.RRFConstant
}

func (e *Engine) legTimeout() time.Duration {
	if e.cfg.LegTimeout > 0 {
		return e.cfg.LegTimeout
	}
	return 3 * time.Second
}

// fuseTwoWay combines the lexical and dense legs with an explicit weight:
// (1-w)*lexical + w*dense over min-max normalized scores, 0 for a missing
// leg.
func fuseTwoWay(lex, dense legOutput, w float64) []FusedResult {
	lexNorm := normalizeLeg(lex)
	denseNorm := normalizeLeg(dense)

	ids := make(map[string]struct{}, len(lex.ids)+len(dense.ids))
	for _, id := range lex.ids {
		ids[id] = struct{}{}
	}
	for _, id := range dense.ids {
		ids[id] = struct{}{}
	}

	fused := make([]FusedResult, 0, len(ids))
	for id := range ids {
		fused = append(fused, FusedResult{
			ID:    id,
			Score: (1-w)*lexNorm[id] + w*denseNorm[id],
		})
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})
	return fused
}

// normalizeLeg min-max normalizes a leg's scores, keyed by id. Missing ids
// read as 0 from the returned map.
func normalizeLeg(leg legOutput) map[string]float64 {
	out := make(map[string]float64, len(leg.ids))
	if len(leg.ids) == 0 {
		return out
	}

	raw := make([]float64, len(leg.ids))
	for i, id := range leg.ids {
		raw[i] = leg.scores[id]
	}
	norm := minMaxNormalize(raw)
	for i, id := range leg.ids {
		out[id] = norm[i]
	}
	return out
}

// sortFused orders by score descending, then the tie-break chain: higher
// quality, more recent update, classification filter match, id ascending.
func sortFused(fused []FusedResult, meta map[string]store.RankMeta, classFilter []string) {
	classSet := make(map[string]struct{}, len(classFilter))
	for _, c := range classFilter {
		classSet[c] = struct{}{}
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}

		mi, mj := meta[fused[i].ID], meta[fused[j].ID]
		if mi.QualityOverall != mj.QualityOverall {
			return mi.QualityOverall > mj.QualityOverall
		}
		if !mi.UpdatedAt.Equal(mj.UpdatedAt) {
			return mi.UpdatedAt.After(mj.UpdatedAt)
		}
		_, iMatch := classSet[mi.ClassificationCode]
		_, jMatch := classSet[mj.ClassificationCode]
		if iMatch != jMatch {
			return iMatch
		}
		return fused[i].ID < fused[j].ID
	})
}

// applyRerank rescores the fused head with the cross-encoder. An empty
// rerank result keeps the fused order untouched.
func (e *Engine) applyRerank(ctx context.Context, q Query, fused []FusedResult, cache *RerankCache) []FusedResult {
	topK := q.Limit
	if c := e.cfg.RerankTopKCap; c > 0 && topK > c {
		topK = c
	}
	if topK > len(fused) {
		topK = len(fused)
	}
	if topK == 0 {
		return fused
	}

	candidates := make([]string, topK)
	for i := range candidates {
		candidates[i] = fused[i].ID
	}

	reranked := e.reranker.Rerank(ctx, q.Text, candidates, topK, cache)
	if len(reranked) == 0 {
		return fused
	}

	out := make([]FusedResult, 0, len(fused))
	seen := make(map[string]struct{}, len(reranked))
	for _, r := range reranked {
		out = append(out, FusedResult{ID: r.ID, Score: r.Score})
		seen[r.ID] = struct{}{}
	}
	for _, f := range fused {
		if _, ok := seen[f.ID]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// CompareMethods runs each retrieval leg independently and reports per-leg
// results and latencies, for relevance debugging.
func (e *Engine) CompareMethods(ctx context.Context, text string, limit int) (*Comparison, error) {
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}

	allowed, err := e.resources.FilterIDs(ctx, store.Filters{})
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{Query: text}

	run := func(leg func() legOutput) MethodRun {
		start := time.Now()
		out := leg()
		r := MethodRun{IDs: []string{}, Scores: []float64{}, LatencyMS: msSince(start)}
		for _, id := range out.ids {
			r.IDs = append(r.IDs, id)
			r.Scores = append(r.Scores, out.scores[id])
		}
		return r
	}

	q := Query{Text: text}
	cmp.FTS5 = run(func() legOutput { return e.lexicalLeg(ctx, q, allowed, limit) })
	cmp.Dense = run(func() legOutput { return e.denseLeg(ctx, text, allowed, limit) })
	cmp.Sparse = run(func() legOutput { return e.sparseLeg(ctx, text, allowed, limit) })

	return cmp, nil
}

func fusedIDs(fused []FusedResult) []string {
	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ID
	}
	return ids
}

func pageOf(ids []string, offset, limit int) []string {
	if offset >= len(ids) {
		return nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	return ids[offset:end]
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
