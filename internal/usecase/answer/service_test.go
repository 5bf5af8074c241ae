package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lumenkb/ragd/internal/domain"
	"github.com/lumenkb/ragd/internal/domain/retrieval/filter"
	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
	"github.com/lumenkb/ragd/internal/domain/retrieval/request"
	"github.com/lumenkb/ragd/internal/sensitive"
	"github.com/lumenkb/ragd/internal/usecase/retrieval"
)

type fakeRetriever struct {
	result *retrieval.Result
	err    error
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ *request.Request) (*retrieval.Result, error) {
	return f.result, f.err
}

type fakeChat struct {
	text       string
	err        error
	lastSystem string
	lastUser   string
	lastParams domain.ModelParams
}

func (f *fakeChat) Complete(_ context.Context, system, user string, params domain.ModelParams) (string, error) {
	f.lastSystem, f.lastUser = system, user
	f.lastParams = params
	return f.text, f.err
}

func (f *fakeChat) Stream(_ context.Context, system, user string, _ domain.ModelParams, onDelta func(string) error) error {
	f.lastSystem, f.lastUser = system, user
	if f.err != nil {
		return f.err
	}
	for _, word := range strings.SplitAfter(f.text, " ") {
		if err := onDelta(word); err != nil {
			return err
		}
	}
	return nil
}

func ctxNode(id, content, title string, score float64) node.Node {
	meta := map[string]string{node.MetaSourceID: "f1"}
	if title != "" {
		meta[node.MetaTitle] = title
	}
	return node.New(id, content, meta, score, node.SourceVector)
}

func answerRequest(t *testing.T) *request.Request {
	t.Helper()
	req, err := request.New("how does fusion work", []string{"f1"}, "", filter.Filters{}, 10, 0, nil)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return &req
}

func TestAnswer_BuildsCitationNumberedPrompt(t *testing.T) {
	ret := &fakeRetriever{result: &retrieval.Result{
		Nodes: []node.Node{
			ctxNode("n1", "fusion merges lists", "Fusion", 0.9),
			ctxNode("n2", "rrf sums reciprocal ranks", "", 0.8),
		},
		PromptConstraints: []string{"Mind the images."},
	}}
	chat := &fakeChat{text: "Fusion merges ranked lists [1]."}
	svc := New(ret, chat, nil)

	ans, err := svc.Answer(context.Background(), answerRequest(t), Options{ShowQuote: true})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if !strings.Contains(chat.lastUser, "[1] (Fusion) fusion merges lists") {
		t.Errorf("prompt missing numbered fragment:\n%s", chat.lastUser)
	}
	if !strings.Contains(chat.lastUser, "[2] rrf sums reciprocal ranks") {
		t.Errorf("prompt missing second fragment:\n%s", chat.lastUser)
	}
	if !strings.Contains(chat.lastSystem, "Mind the images.") {
		t.Errorf("plugin constraint missing from system prompt:\n%s", chat.lastSystem)
	}

	if len(ans.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(ans.Citations))
	}
	if ans.Citations[0].Number != 1 || ans.Citations[0].NodeID != "n1" {
		t.Errorf("citation numbering broken: %+v", ans.Citations[0])
	}
}

func TestAnswer_NoContext(t *testing.T) {
	ret := &fakeRetriever{result: &retrieval.Result{Nodes: []node.Node{}}}
	svc := New(ret, &fakeChat{}, nil)

	_, err := svc.Answer(context.Background(), answerRequest(t), Options{ShowQuote: true})
	if !errors.Is(err, domain.ErrNoRetrievableContent) {
		t.Fatalf("expected ErrNoRetrievableContent, got %v", err)
	}
}

func TestAnswer_FlagsSensitiveWords(t *testing.T) {
	ret := &fakeRetriever{result: &retrieval.Result{
		Nodes: []node.Node{ctxNode("n1", "c", "", 0.9)},
	}}
	chat := &fakeChat{text: "the secret value"}
	svc := New(ret, chat, sensitive.NewScanner([]string{"secret"}))

	ans, err := svc.Answer(context.Background(), answerRequest(t), Options{ShowQuote: true})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(ans.Sensitives) != 1 || ans.Sensitives[0].Word != "secret" {
		t.Errorf("expected one flagged word, got %+v", ans.Sensitives)
	}
}

func TestAnswerStream_EventOrder(t *testing.T) {
	ret := &fakeRetriever{result: &retrieval.Result{
		Nodes: []node.Node{ctxNode("n1", "context", "", 0.9)},
	}}
	chat := &fakeChat{text: "the secret answer"}
	svc := New(ret, chat, sensitive.NewScanner([]string{"secret"}))

	var events []Event
	err := svc.AnswerStream(context.Background(), answerRequest(t), Options{ShowQuote: true}, func(e Event) error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		t.Fatalf("AnswerStream: %v", err)
	}

	if len(events) < 3 {
		t.Fatalf("expected at least 3 events, got %d", len(events))
	}
	if events[0].Kind != EventRetrievalCompleted {
		t.Errorf("first event = %s, want retrieval.completed", events[0].Kind)
	}
	if len(events[0].Citations) != 1 {
		t.Errorf("retrieval event must carry citations, got %+v", events[0])
	}
	last := events[len(events)-1]
	if last.Kind != EventMessageCompleted {
		t.Errorf("last event = %s, want message.completed", last.Kind)
	}
	if last.Answer == nil || last.Answer.Text != "the secret answer" {
		t.Errorf("completed event must carry the full answer, got %+v", last.Answer)
	}

	var text strings.Builder
	var sawSensitives bool
	for _, e := range events[1 : len(events)-1] {
		switch e.Kind {
		case EventMessageDelta:
			text.WriteString(e.Delta)
		case EventMessageSensitives:
			sawSensitives = true
		default:
			t.Errorf("unexpected mid-stream event %s", e.Kind)
		}
	}
	if text.String() != "the secret answer" {
		t.Errorf("concatenated deltas = %q", text.String())
	}
	if !sawSensitives {
		t.Error("expected a message.sensitives event")
	}
}

func TestAnswerStream_ProviderErrorEmitsErrorEvent(t *testing.T) {
	ret := &fakeRetriever{result: &retrieval.Result{
		Nodes: []node.Node{ctxNode("n1", "context", "", 0.9)},
	}}
	wantErr := errors.New("model unavailable")
	svc := New(ret, &fakeChat{err: wantErr}, nil)

	var events []Event
	err := svc.AnswerStream(context.Background(), answerRequest(t), Options{ShowQuote: true}, func(e Event) error {
		events = append(events, e)
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected provider error, got %v", err)
	}
	last := events[len(events)-1]
	if last.Kind != EventError || last.Error == "" {
		t.Errorf("terminal event must be an error event, got %+v", last)
	}
}

func TestAnswer_ShowQuoteDisabledOmitsCitations(t *testing.T) {
	ret := &fakeRetriever{result: &retrieval.Result{
		Nodes: []node.Node{ctxNode("n1", "c", "", 0.9)},
	}}
	chat := &fakeChat{text: "answer"}
	svc := New(ret, chat, nil)

	ans, err := svc.Answer(context.Background(), answerRequest(t), Options{ShowQuote: false})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(ans.Citations) != 0 {
		t.Errorf("expected no citations, got %+v", ans.Citations)
	}
	if !strings.Contains(chat.lastUser, "c") {
		t.Errorf("context must still reach the prompt:\n%s", chat.lastUser)
	}
}

func TestAnswer_ModelParamsForwarded(t *testing.T) {
	ret := &fakeRetriever{result: &retrieval.Result{
		Nodes: []node.Node{ctxNode("n1", "c", "", 0.9)},
	}}
	chat := &fakeChat{text: "answer"}
	svc := New(ret, chat, nil)

	temp := float32(0.7)
	opts := Options{ModelParams: domain.ModelParams{Temperature: &temp, MaxTokens: 512}}
	if _, err := svc.Answer(context.Background(), answerRequest(t), opts); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if chat.lastParams.Temperature == nil || *chat.lastParams.Temperature != 0.7 {
		t.Errorf("temperature not forwarded: %+v", chat.lastParams)
	}
	if chat.lastParams.MaxTokens != 512 {
		t.Errorf("max tokens not forwarded: %+v", chat.lastParams)
	}
}

func TestAnswerStream_RetrievalFailureEmitsErrorFirst(t *testing.T) {
	ret := &fakeRetriever{err: domain.ErrInvalidFilter}
	svc := New(ret, &fakeChat{}, nil)

	var events []Event
	err := svc.AnswerStream(context.Background(), answerRequest(t), Options{ShowQuote: true}, func(e Event) error {
		events = append(events, e)
		return nil
	})
	if !errors.Is(err, domain.ErrInvalidFilter) {
		t.Fatalf("expected filter error, got %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventError {
		t.Errorf("expected a single error event, got %+v", events)
	}
}
