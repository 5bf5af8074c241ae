package mode

// Mode is the retrieval strategy.
type Mode string

// Retrieval mode constants.
const (
	// Fusion combines vector and keyword recall via reciprocal rank fusion.
	Fusion   Mode = "fusion"
	Semantic Mode = "semantic"
	Keyword  Mode = "keyword"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Fusion || m == Semantic || m == Keyword
}
