package domain

import "context"

type usageKey struct{}

// Usage collects token consumption for a single request.
// The handler puts a mutable pointer into the context before calling the
// usecases; embedding and completion layers write into it; the handler reads
// it back for response headers. Never shared across requests.
type Usage struct {
	EmbeddingTokens  int
	CompletionTokens int
}

// NewContextWithUsage returns a context carrying a fresh usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}

// AddEmbeddingTokens records tokens consumed by embedding calls.
func (u *Usage) AddEmbeddingTokens(n int) {
	if u != nil {
		u.EmbeddingTokens += n
	}
}

// AddCompletionTokens records tokens consumed by completion calls.
func (u *Usage) AddCompletionTokens(n int) {
	if u != nil {
		u.CompletionTokens += n
	}
}

// Total returns all tokens consumed by the request.
func (u *Usage) Total() int {
	if u == nil {
		return 0
	}
	return u.EmbeddingTokens + u.CompletionTokens
}
