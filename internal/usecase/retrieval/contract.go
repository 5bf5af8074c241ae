package retrieval

import (
	"context"

	"github.com/lumenkb/ragd/internal/domain"
	"github.com/lumenkb/ragd/internal/domain/retrieval/filter"
	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
)

// Retriever is one ranked-list source: a single index queried under a
// merged filter set. Results come back ordered by score descending with
// the cutoff already applied.
type Retriever interface {
	Name() string
	Source() node.Source
	Retrieve(ctx context.Context, query string, filters filter.Filters, topK int, scoreCutoff float64) ([]node.Node, error)
}

// AccessRecorder accepts audit entries. Implementations must not block the
// request path; dropping entries under load is acceptable.
type AccessRecorder interface {
	Record(entry domain.AccessEntry)
}
