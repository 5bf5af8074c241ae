package domain

// ModelParams are per-request overrides for the completion provider.
// Zero values fall back to the configured defaults.
type ModelParams struct {
	Temperature *float32
	MaxTokens   int
}
