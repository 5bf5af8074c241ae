package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/lumenkb/ragd/internal/domain"
	"github.com/lumenkb/ragd/internal/domain/retrieval/filter"
	"github.com/lumenkb/ragd/internal/domain/retrieval/node"
	"github.com/lumenkb/ragd/internal/plugin"
	answeruc "github.com/lumenkb/ragd/internal/usecase/answer"
	healthuc "github.com/lumenkb/ragd/internal/usecase/health"
	retrievaluc "github.com/lumenkb/ragd/internal/usecase/retrieval"
)

type stubRetriever struct {
	name        string
	source      node.Source
	nodes       []node.Node
	err         error
	calls       int
	lastFilters filter.Filters
}

func (s *stubRetriever) Name() string        { return s.name }
func (s *stubRetriever) Source() node.Source { return s.source }

func (s *stubRetriever) Retrieve(_ context.Context, _ string, filters filter.Filters, _ int, _ float64) ([]node.Node, error) {
	s.calls++
	s.lastFilters = filters
	return s.nodes, s.err
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type stubChat struct {
	text string
}

func (s *stubChat) Complete(_ context.Context, _, _ string, _ domain.ModelParams) (string, error) {
	return s.text, nil
}

func (s *stubChat) Stream(_ context.Context, _, _ string, _ domain.ModelParams, onDelta func(string) error) error {
	return onDelta(s.text)
}

func newTestServer(t *testing.T, vec *stubRetriever, apiKeys []string) *Server {
	t.Helper()

	svc := retrievaluc.New(
		[]retrievaluc.Retriever{vec},
		nil,
		plugin.NewRegistry(plugin.Deps{}),
		nil,
		[]string{"node_type", "title", "extra"},
	)
	ans := answeruc.New(svc, &stubChat{text: "grounded answer [1]"}, nil)
	return NewServer(svc, ans, healthuc.New(okPinger{}, nil, nil), apiKeys, zap.NewNop())
}

func textNode(id string, score float64) node.Node {
	return node.New(id, "content "+id, map[string]string{node.MetaNodeType: node.TypeText}, score, node.SourceVector)
}

func TestRetrieve_OK(t *testing.T) {
	vec := &stubRetriever{
		name:   "chunk",
		source: node.SourceVector,
		nodes:  []node.Node{textNode("a", 0.9), textNode("b", 0.5)},
	}
	srv := newTestServer(t, vec, nil)

	body := `{"query": "what is fusion?", "file_ids": ["f1"]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", strings.NewReader(body))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp retrieveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(resp.Nodes))
	}
	if resp.Nodes[0].ID != "a" || resp.Nodes[0].Score != 0.9 {
		t.Errorf("first node = %+v", resp.Nodes[0])
	}
	if resp.Nodes[0].Metadata[node.MetaNodeType] != node.TypeText {
		t.Errorf("metadata missing node_type: %+v", resp.Nodes[0].Metadata)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id header")
	}
}

func TestRetrieve_EmptyFileIDs(t *testing.T) {
	vec := &stubRetriever{name: "chunk", source: node.SourceVector}
	srv := newTestServer(t, vec, nil)

	body := `{"query": "anything", "file_ids": []}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", strings.NewReader(body))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp retrieveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Nodes) != 0 {
		t.Errorf("got %d nodes, want 0", len(resp.Nodes))
	}
	if vec.calls != 0 {
		t.Errorf("backend called %d times for an empty scope", vec.calls)
	}
}

func TestRetrieve_InvalidBody(t *testing.T) {
	srv := newTestServer(t, &stubRetriever{name: "chunk", source: node.SourceVector}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", strings.NewReader("{not json"))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Code != codeBadRequest {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestRetrieve_MissingQuery(t *testing.T) {
	srv := newTestServer(t, &stubRetriever{name: "chunk", source: node.SourceVector}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", strings.NewReader(`{"file_ids": ["f1"]}`))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRetrieve_FilterCollision(t *testing.T) {
	vec := &stubRetriever{name: "chunk", source: node.SourceVector}
	srv := newTestServer(t, vec, nil)

	// node_type collides with the builtin image exclusion.
	body := `{
		"query": "q",
		"file_ids": ["f1"],
		"filters": {"filters": [{"key": "node_type", "operator": "eq", "value": "text"}]}
	}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", strings.NewReader(body))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Code != codeInvalidFilter {
		t.Errorf("code = %q, want %q", resp.Code, codeInvalidFilter)
	}
	if vec.calls != 0 {
		t.Errorf("backend called %d times despite filter error", vec.calls)
	}
}

func TestRetrieve_KeywordModeNotSupported(t *testing.T) {
	srv := newTestServer(t, &stubRetriever{name: "chunk", source: node.SourceVector}, nil)

	body := `{"query": "q", "file_ids": ["f1"], "mode": "keyword"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", strings.NewReader(body))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRetrieve_AllBackendsFailed(t *testing.T) {
	vec := &stubRetriever{name: "chunk", source: node.SourceVector, err: context.DeadlineExceeded}
	srv := newTestServer(t, vec, nil)

	body := `{"query": "q", "file_ids": ["f1"]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", strings.NewReader(body))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Code != codeNoRetrievableContent {
		t.Errorf("code = %q, want %q", resp.Code, codeNoRetrievableContent)
	}
}

func TestRetrieve_NestedFilters(t *testing.T) {
	vec := &stubRetriever{name: "chunk", source: node.SourceVector, nodes: []node.Node{textNode("a", 0.9)}}
	srv := newTestServer(t, vec, nil)

	body := `{
		"query": "q",
		"file_ids": ["f1"],
		"filters": {
			"condition": "or",
			"filters": [
				{"key": "title", "operator": "contains", "value": "intro"},
				{"condition": "and", "filters": [
					{"key": "extra", "operator": "in", "value": ["tag1", "tag2"]}
				]}
			]
		}
	}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", strings.NewReader(body))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	leaves := vec.lastFilters.Leaves()
	keys := make(map[string]bool)
	for _, l := range leaves {
		keys[l.Key()] = true
	}
	// User leaves plus the injected scoping and builtin filters.
	for _, want := range []string{"title", "extra", node.MetaSourceID, node.MetaNodeType} {
		if !keys[want] {
			t.Errorf("merged filters missing key %q: %v", want, keys)
		}
	}
}

func TestAnswer_OK(t *testing.T) {
	vec := &stubRetriever{
		name:   "chunk",
		source: node.SourceVector,
		nodes:  []node.Node{textNode("a", 0.9)},
	}
	srv := newTestServer(t, vec, nil)

	body := `{"query": "q", "file_ids": ["f1"]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/answer", strings.NewReader(body))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var ans answeruc.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &ans); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if ans.Text != "grounded answer [1]" {
		t.Errorf("text = %q", ans.Text)
	}
	if len(ans.Citations) != 1 || ans.Citations[0].NodeID != "a" {
		t.Errorf("citations = %+v", ans.Citations)
	}
}

func TestAnswer_ShowQuoteFalse(t *testing.T) {
	vec := &stubRetriever{
		name:   "chunk",
		source: node.SourceVector,
		nodes:  []node.Node{textNode("a", 0.9)},
	}
	srv := newTestServer(t, vec, nil)

	body := `{"query": "q", "file_ids": ["f1"], "show_quote": false}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/answer", strings.NewReader(body))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var ans answeruc.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &ans); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if len(ans.Citations) != 0 {
		t.Errorf("expected no citations, got %+v", ans.Citations)
	}
}

func TestAnswerStream_SSE(t *testing.T) {
	vec := &stubRetriever{
		name:   "chunk",
		source: node.SourceVector,
		nodes:  []node.Node{textNode("a", 0.9)},
	}
	srv := newTestServer(t, vec, nil)

	body := `{"query": "q", "file_ids": ["f1"]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/answer/stream", strings.NewReader(body))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	var kinds []string
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var e answeruc.Event
			if err := json.Unmarshal([]byte(data), &e); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			kinds = append(kinds, string(e.Kind))
		}
	}
	if len(kinds) < 3 {
		t.Fatalf("expected at least 3 events, got %v", kinds)
	}
	if kinds[0] != string(answeruc.EventRetrievalCompleted) {
		t.Errorf("first event = %s", kinds[0])
	}
	if kinds[len(kinds)-1] != string(answeruc.EventMessageCompleted) {
		t.Errorf("last event = %s", kinds[len(kinds)-1])
	}
}

func TestHealth_NoAuthRequired(t *testing.T) {
	srv := newTestServer(t, &stubRetriever{name: "chunk", source: node.SourceVector}, []string{"secret"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	srv := newTestServer(t, &stubRetriever{name: "chunk", source: node.SourceVector}, []string{"secret"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", strings.NewReader(`{"query":"q"}`))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuth_ValidToken(t *testing.T) {
	vec := &stubRetriever{name: "chunk", source: node.SourceVector, nodes: []node.Node{textNode("a", 0.9)}}
	srv := newTestServer(t, vec, []string{"secret"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", strings.NewReader(`{"query":"q","file_ids":["f1"]}`))
	req.Header.Set("Authorization", "Bearer secret")
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestAuth_WrongToken(t *testing.T) {
	srv := newTestServer(t, &stubRetriever{name: "chunk", source: node.SourceVector}, []string{"secret"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuth_EmptyKeysDisablesAuth(t *testing.T) {
	vec := &stubRetriever{name: "chunk", source: node.SourceVector}
	srv := newTestServer(t, vec, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", strings.NewReader(`{"query":"q","file_ids":[]}`))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
