package postprocess

import (
	"context"
	"fmt"

	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
)

// RerankScorer scores query/document pairs with a cross-encoder. One score
// per document, same order as the input.
type RerankScorer interface {
	Scores(ctx context.Context, query string, documents []string) ([]float64, error)
}

// Rerank replaces retrieval scores with cross-encoder relevance and re-sorts.
// Failure is fatal for the request: a half-reranked list is worse than none.
type Rerank struct {
	scorer RerankScorer
	topN   int
}

// NewRerank creates the rerank processor. topN <= 0 keeps all nodes.
func NewRerank(scorer RerankScorer, topN int) *Rerank {
	return &Rerank{scorer: scorer, topN: topN}
}

// Name implements Processor.
func (*Rerank) Name() string { return "rerank" }

// Process implements Processor.
func (p *Rerank) Process(ctx context.Context, query string, nodes []node.Node) ([]node.Node, error) {
	if len(nodes) == 0 {
		return nodes, nil
	}

	docs := make([]string, len(nodes))
	for i, n := range nodes {
		docs[i] = n.Content()
	}

	scores, err := p.scorer.Scores(ctx, query, docs)
	if err != nil {
		return nil, fmt.Errorf("rerank scores: %w", err)
	}
	if len(scores) != len(nodes) {
		return nil, fmt.Errorf("rerank returned %d scores for %d documents", len(scores), len(nodes))
	}

	out := make([]node.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.WithScore(scores[i])
	}
	sortByScore(out)

	if p.topN > 0 && len(out) > p.topN {
		out = out[:p.topN]
	}
	return out, nil
}
