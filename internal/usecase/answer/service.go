// Package answer synthesizes grounded answers: it retrieves context through
// the fusion pipeline, prompts the language model with citation-numbered
// fragments, and returns the answer as one response or a stream of events.
package answer

import (
	"context"
	"fmt"

	"github.com/lumenkb/ragd/internal/domain"
	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
	"github.com/lumenkb/ragd/internal/domain/retrieval/request"
	"github.com/lumenkb/ragd/internal/sensitive"
)

// Citation links one context fragment number to its node.
type Citation struct {
	Number   int     `json:"number"`
	NodeID   string  `json:"node_id"`
	SourceID string  `json:"source_id,omitempty"`
	Title    string  `json:"title,omitempty"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

// Answer is a complete synthesized response.
type Answer struct {
	Text       string           `json:"text"`
	Citations  []Citation       `json:"citations"`
	Sensitives []sensitive.Span `json:"sensitives,omitempty"`
}

// Options tunes synthesis for one request. ShowQuote controls whether
// citations are included in the response; the prompt is built from the
// retrieved context either way.
type Options struct {
	ModelParams domain.ModelParams
	ShowQuote   bool
}

// Service orchestrates retrieval and synthesis.
type Service struct {
	retriever Retriever
	chat      ChatClient
	scanner   SensitiveScanner
}

// New creates an answer service. scanner may be nil to disable flagging.
func New(retriever Retriever, chat ChatClient, scanner SensitiveScanner) *Service {
	return &Service{retriever: retriever, chat: chat, scanner: scanner}
}

// Answer runs retrieval and a single-shot completion.
func (s *Service) Answer(ctx context.Context, req *request.Request, opts Options) (*Answer, error) {
	res, err := s.retriever.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(res.Nodes) == 0 {
		return nil, fmt.Errorf("%w: no context matched the query", domain.ErrNoRetrievableContent)
	}

	system, user := buildPrompt(req.Query(), res.Nodes, res.PromptConstraints)
	text, err := s.chat.Complete(ctx, system, user, opts.ModelParams)
	if err != nil {
		return nil, err
	}

	out := &Answer{Text: text, Sensitives: s.scan(text)}
	if opts.ShowQuote {
		out.Citations = citations(res.Nodes)
	}
	return out, nil
}

// AnswerStream runs retrieval and a streaming completion, emitting events
// in a fixed order: retrieval.completed first, message.delta per fragment,
// message.sensitives once the full text is known, and message.completed or
// error as the terminal event. A non-nil return from emit aborts the stream.
func (s *Service) AnswerStream(ctx context.Context, req *request.Request, opts Options, emit func(Event) error) error {
	res, err := s.retriever.Retrieve(ctx, req)
	if err != nil {
		return s.fail(emit, err)
	}
	if len(res.Nodes) == 0 {
		return s.fail(emit, fmt.Errorf("%w: no context matched the query", domain.ErrNoRetrievableContent))
	}

	var cits []Citation
	if opts.ShowQuote {
		cits = citations(res.Nodes)
	}
	if err := emit(Event{Kind: EventRetrievalCompleted, Citations: cits}); err != nil {
		return err
	}

	system, user := buildPrompt(req.Query(), res.Nodes, res.PromptConstraints)

	var text []byte
	streamErr := s.chat.Stream(ctx, system, user, opts.ModelParams, func(delta string) error {
		text = append(text, delta...)
		return emit(Event{Kind: EventMessageDelta, Delta: delta})
	})
	if streamErr != nil {
		return s.fail(emit, streamErr)
	}

	full := string(text)
	if spans := s.scan(full); len(spans) > 0 {
		if err := emit(Event{Kind: EventMessageSensitives, Sensitives: spans}); err != nil {
			return err
		}
	}

	return emit(Event{Kind: EventMessageCompleted, Answer: &Answer{
		Text:       full,
		Citations:  cits,
		Sensitives: s.scan(full),
	}})
}

// fail emits a terminal error event, then returns the error. The emit
// failure, if any, is secondary to the original problem.
func (s *Service) fail(emit func(Event) error, err error) error {
	_ = emit(Event{Kind: EventError, Error: err.Error()})
	return err
}

func (s *Service) scan(text string) []sensitive.Span {
	if s.scanner == nil {
		return nil
	}
	return s.scanner.Scan(text)
}

func citations(nodes []node.Node) []Citation {
	out := make([]Citation, len(nodes))
	for i, n := range nodes {
		out[i] = Citation{
			Number:   i + 1,
			NodeID:   n.ID(),
			SourceID: n.Meta(node.MetaSourceID),
			Title:    n.Meta(node.MetaTitle),
			Content:  n.Content(),
			Score:    n.Score(),
		}
	}
	return out
}
