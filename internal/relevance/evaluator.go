package relevance

import (
	"context"
	"log/slog"

	"github.com/neo-alexandria/neoalex/internal/search"
)

// evalCutoff is the rank cutoff for the reported metrics.
const evalCutoff = 20

// EvaluationMetrics is the response of a single query evaluation.
type EvaluationMetrics struct {
	NDCG      float64 `json:"ndcg@20"`
	Recall    float64 `json:"recall@20"`
	Precision float64 `json:"precision@20"`
	MRR       float64 `json:"mrr"`
}

// Evaluator scores live engine rankings against relevance judgments.
type Evaluator struct {
	engine *search.Engine
}

// NewEvaluator creates an evaluator over the given engine.
func NewEvaluator(engine *search.Engine) *Evaluator {
	return &Evaluator{engine: engine}
}

// Evaluate runs the query and computes ranking metrics at the cutoff. A
// failed search yields zero metrics rather than an error.
func (e *Evaluator) Evaluate(ctx context.Context, query string, judgments Judgments) EvaluationMetrics {
	res, err := e.engine.Search(ctx, search.Query{Text: query, Limit: evalCutoff})
	if err != nil {
		slog.Warn("evaluation search failed, reporting zero metrics", "query", query, "error", err)
		return EvaluationMetrics{}
	}

	ranked := make([]string, len(res.Items))
	for i, item := range res.Items {
		ranked[i] = item.ID
	}

	return EvaluationMetrics{
		NDCG:      NDCG(ranked, judgments, evalCutoff),
		Recall:    Recall(ranked, judgments, evalCutoff),
		Precision: Precision(ranked, judgments, evalCutoff),
		MRR:       MRR(ranked, judgments),
	}
}
