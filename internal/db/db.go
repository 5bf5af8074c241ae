package db

import (
	"context"
	"time"

	"github.com/lumenkb/ragd/internal/domain/retrieval/filter"
)

// Store is the main database facade combining all sub-interfaces.
// Consumers depend on the narrow sub-interfaces.
type Store interface {
	Pinger
	NodeReader
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NodeReader reads stored node hashes.
type NodeReader interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SupportsTextSearch(ctx context.Context) bool
}

// KNNQuery is a vector similarity search request.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	Filters      filter.Filters
	K            int
	ReturnFields []string
}

// TextQuery is a BM25 full-text search request.
type TextQuery struct {
	IndexName    string
	Query        string
	Filters      filter.Filters
	TopK         int
	ReturnFields []string
}

// SearchEntry is one hit: the storage key, the backend score, and the
// returned hash fields.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// SearchResult is a parsed FT.SEARCH reply.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// Searcher provides search operations over FT indexes.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	SearchBM25(ctx context.Context, q *TextQuery) (*SearchResult, error)
}
