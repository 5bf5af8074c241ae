package answer

import (
	"context"

	"github.com/lumenkb/ragd/internal/domain"
	"github.com/lumenkb/ragd/internal/domain/retrieval/request"
	"github.com/lumenkb/ragd/internal/sensitive"
	"github.com/lumenkb/ragd/internal/usecase/retrieval"
)

// Retriever produces the ranked, post-processed node list for a request.
type Retriever interface {
	Retrieve(ctx context.Context, req *request.Request) (*retrieval.Result, error)
}

// ChatClient calls the language model. Stream invokes onDelta for each
// content fragment in arrival order; a non-nil return from onDelta aborts
// the stream.
type ChatClient interface {
	Complete(ctx context.Context, system, user string, params domain.ModelParams) (string, error)
	Stream(ctx context.Context, system, user string, params domain.ModelParams, onDelta func(delta string) error) error
}

// SensitiveScanner flags configured words in generated text.
type SensitiveScanner interface {
	Scan(text string) []sensitive.Span
}
