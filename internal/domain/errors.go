package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidFilter signals a malformed or ambiguous metadata filter.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrUnsupportedMode signals an unknown retrieval mode.
	ErrUnsupportedMode = errors.New("unsupported retrieval mode")
	// ErrUnsupportedPlugin signals an unknown plugin name.
	ErrUnsupportedPlugin = errors.New("unsupported plugin")
	// ErrDuplicatePlugin signals two plugin specs sharing one name.
	ErrDuplicatePlugin = errors.New("duplicate plugin")

	// ErrNoRetrievableContent signals that recall was empty: no index for the
	// requested mode, or every retriever failed. Distinct from "the answer
	// was genuinely empty".
	ErrNoRetrievableContent = errors.New("no retrievable content")
	// ErrPostprocessFailed signals a post-processor step failure.
	ErrPostprocessFailed = errors.New("post-processing failed")

	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrLLMProviderError signals a completion provider failure.
	ErrLLMProviderError = errors.New("llm provider error")
	// ErrRerankProviderError signals a rerank service failure.
	ErrRerankProviderError = errors.New("rerank provider error")
	// ErrKeywordSearchNotSupported signals that the backend lacks keyword search.
	ErrKeywordSearchNotSupported = errors.New("keyword search not supported by backend")
)
