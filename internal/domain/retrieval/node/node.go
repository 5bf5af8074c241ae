package node

// Source identifies which index family produced a node.
type Source string

// Index families.
const (
	SourceVector  Source = "vector"
	SourceKeyword Source = "keyword"
)

// Well-known metadata keys carried by ingested nodes.
const (
	MetaSourceID  = "source_id"
	MetaNodeType  = "node_type"
	MetaIsContext = "is_context"
	MetaPrevID    = "prev_id"
	MetaNextID    = "next_id"
	MetaTitle     = "title"
	MetaExtra     = "extra"
)

// Node type metadata values.
const (
	TypeText  = "text"
	TypeQA    = "qa"
	TypeImage = "image"
)

// Node is a retrievable unit of content: a text chunk, a QA pair, or an
// image reference. Created by a per-index retriever and owned by the fusion
// pipeline until handed to synthesis. Post-processors return new nodes via
// the With* helpers instead of mutating shared state.
type Node struct {
	id       string
	content  string
	metadata map[string]string
	score    float64
	source   Source
}

// New creates a scored node.
func New(id, content string, metadata map[string]string, score float64, source Source) Node {
	return Node{id: id, content: content, metadata: metadata, score: score, source: source}
}

// ID returns the node identifier.
func (n Node) ID() string { return n.id }

// Content returns the node text.
func (n Node) Content() string { return n.content }

// Metadata returns the node's structured attributes.
func (n Node) Metadata() map[string]string { return n.metadata }

// Meta returns a single metadata value ("" when absent).
func (n Node) Meta(key string) string { return n.metadata[key] }

// Score returns the relevance score on the producing backend's scale.
func (n Node) Score() float64 { return n.score }

// Source returns the index family that produced the node.
func (n Node) Source() Source { return n.source }

// WithScore returns a copy with a replaced score.
func (n Node) WithScore(score float64) Node {
	n.score = score
	return n
}

// WithContent returns a copy with replaced content.
func (n Node) WithContent(content string) Node {
	n.content = content
	return n
}

// WithMeta returns a copy with one metadata entry added or replaced.
// The underlying map is copied, so the original node is untouched.
func (n Node) WithMeta(key, value string) Node {
	meta := make(map[string]string, len(n.metadata)+1)
	for k, v := range n.metadata {
		meta[k] = v
	}
	meta[key] = value
	n.metadata = meta
	return n
}
