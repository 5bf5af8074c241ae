package repository

import (
	"context"
	"fmt"

	"github.com/lumenkb/ragd/internal/db"
	"github.com/lumenkb/ragd/internal/domain"
	"github.com/lumenkb/ragd/internal/domain/retrieval/filter"
	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
)

// VectorRetriever searches one vector index: the query is embedded and
// matched with KNN over the index's vector field.
type VectorRetriever struct {
	name      string
	embedder  domain.Embedder
	store     db.Searcher
	indexName string
	keyPrefix string
}

// NewVectorRetriever creates a retriever over a named vector index.
func NewVectorRetriever(name string, embedder domain.Embedder, store db.Searcher, indexName, keyPrefix string) *VectorRetriever {
	return &VectorRetriever{
		name:      name,
		embedder:  embedder,
		store:     store,
		indexName: indexName,
		keyPrefix: keyPrefix,
	}
}

// Name identifies this retriever in logs and fusion diagnostics.
func (r *VectorRetriever) Name() string { return r.name }

// Source reports the index family.
func (r *VectorRetriever) Source() node.Source { return node.SourceVector }

// Retrieve embeds the query and returns up to topK nodes ordered by
// similarity descending. The cutoff is inclusive.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, filters filter.Filters, topK int, scoreCutoff float64) ([]node.Node, error) {
	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query for %s: %w", r.name, err)
	}

	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName,
		Vector:       emb.Embedding,
		Filters:      filters,
		K:            topK,
		ReturnFields: returnFields(),
	})
	if err != nil {
		return nil, fmt.Errorf("knn search %s: %w", r.indexName, err)
	}

	nodes := make([]node.Node, 0, len(res.Entries))
	for _, e := range res.Entries {
		nodes = append(nodes, entryToNode(e, r.keyPrefix, node.SourceVector))
	}
	sortNodesDesc(nodes)
	return applyCutoff(nodes, scoreCutoff), nil
}

// KeywordRetriever searches one full-text index with BM25 scoring.
type KeywordRetriever struct {
	name      string
	store     db.Searcher
	indexName string
	keyPrefix string
}

// NewKeywordRetriever creates a retriever over a named full-text index.
func NewKeywordRetriever(name string, store db.Searcher, indexName, keyPrefix string) *KeywordRetriever {
	return &KeywordRetriever{
		name:      name,
		store:     store,
		indexName: indexName,
		keyPrefix: keyPrefix,
	}
}

// Name identifies this retriever in logs and fusion diagnostics.
func (r *KeywordRetriever) Name() string { return r.name }

// Source reports the index family.
func (r *KeywordRetriever) Source() node.Source { return node.SourceKeyword }

// Retrieve returns up to topK nodes ordered by BM25 score descending.
// The cutoff is inclusive and interpreted on the BM25 scale.
func (r *KeywordRetriever) Retrieve(ctx context.Context, query string, filters filter.Filters, topK int, scoreCutoff float64) ([]node.Node, error) {
	res, err := r.store.SearchBM25(ctx, &db.TextQuery{
		IndexName:    r.indexName,
		Query:        query,
		Filters:      filters,
		TopK:         topK,
		ReturnFields: returnFields(),
	})
	if err != nil {
		return nil, fmt.Errorf("bm25 search %s: %w", r.indexName, err)
	}

	nodes := make([]node.Node, 0, len(res.Entries))
	for _, e := range res.Entries {
		nodes = append(nodes, entryToNode(e, r.keyPrefix, node.SourceKeyword))
	}
	sortNodesDesc(nodes)
	return applyCutoff(nodes, scoreCutoff), nil
}
