package answer

import (
	"github.com/lumenkb/ragd/internal/sensitive"
)

// EventKind identifies one streamed answer event.
type EventKind string

// Stream event kinds, in emission order: retrieval.completed always comes
// first, then message.delta events, then message.sensitives, and finally
// either message.completed or error as the terminal event.
const (
	EventRetrievalCompleted EventKind = "retrieval.completed"
	EventMessageDelta       EventKind = "message.delta"
	EventMessageSensitives  EventKind = "message.sensitives"
	EventMessageCompleted   EventKind = "message.completed"
	EventError              EventKind = "error"
)

// Event is one element of an answer stream.
type Event struct {
	Kind       EventKind        `json:"kind"`
	Delta      string           `json:"delta,omitempty"`
	Citations  []Citation       `json:"citations,omitempty"`
	Sensitives []sensitive.Span `json:"sensitives,omitempty"`
	Answer     *Answer          `json:"answer,omitempty"`
	Error      string           `json:"error,omitempty"`
}
