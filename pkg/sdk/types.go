package ragd

// Mode selects the retrieval strategy.
type Mode string

// Retrieval modes.
const (
	ModeFusion   Mode = "fusion"
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
)

// Operator is a metadata filter operator.
type Operator string

// Filter operators.
const (
	EQ        Operator = "eq"
	NE        Operator = "ne"
	GT        Operator = "gt"
	LT        Operator = "lt"
	GTE       Operator = "gte"
	LTE       Operator = "lte"
	IN        Operator = "in"
	NIN       Operator = "nin"
	Any       Operator = "any"
	All       Operator = "all"
	TextMatch Operator = "text_match"
	Contains  Operator = "contains"
	Exclude   Operator = "exclude"
)

// Filter is a predicate or a nested group. Set Key/Operator/Value for a
// predicate; set Condition/Filters for a group. Value may be a string, a
// number, or a slice of strings for list operators.
type Filter struct {
	Key      string   `json:"key,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`

	Condition string   `json:"condition,omitempty"`
	Filters   []Filter `json:"filters,omitempty"`
}

// PluginSpec configures one plugin for a single request.
type PluginSpec struct {
	Name    string            `json:"name"`
	Enabled *bool             `json:"enabled,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

// ModelParams override the server's completion defaults for one request.
type ModelParams struct {
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// RetrieveRequest holds retrieval parameters, shared by Retrieve, Answer
// and AnswerStream. ModelParams and ShowQuote apply to the answer
// endpoints only.
type RetrieveRequest struct {
	Query       string       `json:"query"`
	FileIDs     []string     `json:"file_ids"`
	Mode        Mode         `json:"mode,omitempty"`
	Filters     *Filter      `json:"filters,omitempty"`
	TopK        int          `json:"top_k,omitempty"`
	ScoreCutoff float64      `json:"score_cutoff,omitempty"`
	Plugins     []PluginSpec `json:"plugins,omitempty"`

	ModelParams *ModelParams `json:"model_params,omitempty"`
	ShowQuote   *bool        `json:"show_quote,omitempty"`
}

// Node is one retrieved content unit.
type Node struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RetrieveResponse is the result of a retrieval call.
type RetrieveResponse struct {
	Nodes             []Node   `json:"nodes"`
	PromptConstraints []string `json:"prompt_constraints,omitempty"`
}

// Citation links a span of the answer to its source node.
type Citation struct {
	Number   int     `json:"number"`
	NodeID   string  `json:"node_id"`
	SourceID string  `json:"source_id,omitempty"`
	Title    string  `json:"title,omitempty"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

// Span marks one flagged word occurrence in the answer text.
type Span struct {
	Word  string `json:"word"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Answer is a complete synthesized answer.
type Answer struct {
	Text       string     `json:"text"`
	Citations  []Citation `json:"citations"`
	Sensitives []Span     `json:"sensitives,omitempty"`
}

// EventKind identifies one streamed answer event.
type EventKind string

// Stream event kinds.
const (
	EventRetrievalCompleted EventKind = "retrieval.completed"
	EventMessageDelta       EventKind = "message.delta"
	EventMessageSensitives  EventKind = "message.sensitives"
	EventMessageCompleted   EventKind = "message.completed"
	EventError              EventKind = "error"
)

// Event is one element of an answer stream.
type Event struct {
	Kind       EventKind  `json:"kind"`
	Delta      string     `json:"delta,omitempty"`
	Citations  []Citation `json:"citations,omitempty"`
	Sensitives []Span     `json:"sensitives,omitempty"`
	Answer     *Answer    `json:"answer,omitempty"`
	Error      string     `json:"error,omitempty"`
}
