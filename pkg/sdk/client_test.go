package ragd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRetrieve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/retrieve" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("auth header = %q", got)
		}

		var req RetrieveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Query != "q" || len(req.FileIDs) != 1 {
			t.Errorf("request = %+v", req)
		}

		_ = json.NewEncoder(w).Encode(RetrieveResponse{
			Nodes: []Node{{ID: "a", Content: "text", Score: 0.9, Source: "vector"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, WithAPIKey("key"))
	res, err := c.Retrieve(context.Background(), RetrieveRequest{Query: "q", FileIDs: []string{"f1"}})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Nodes) != 1 || res.Nodes[0].ID != "a" {
		t.Errorf("nodes = %+v", res.Nodes)
	}
}

func TestRetrieve_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":    CodeInvalidFilter,
			"message": "duplicate filter key",
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Retrieve(context.Background(), RetrieveRequest{Query: "q"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != CodeInvalidFilter {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestAnswerStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []Event{
			{Kind: EventRetrievalCompleted, Citations: []Citation{{Number: 1, NodeID: "a"}}},
			{Kind: EventMessageDelta, Delta: "hello "},
			{Kind: EventMessageDelta, Delta: "world"},
			{Kind: EventMessageCompleted, Answer: &Answer{Text: "hello world"}},
		}
		for _, e := range events {
			data, _ := json.Marshal(e)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	var kinds []EventKind
	var text string
	err := c.AnswerStream(context.Background(), RetrieveRequest{Query: "q"}, func(e Event) error {
		kinds = append(kinds, e.Kind)
		if e.Kind == EventMessageDelta {
			text += e.Delta
		}
		return nil
	})
	if err != nil {
		t.Fatalf("AnswerStream: %v", err)
	}
	if len(kinds) != 4 || kinds[0] != EventRetrievalCompleted || kinds[3] != EventMessageCompleted {
		t.Errorf("kinds = %v", kinds)
	}
	if text != "hello world" {
		t.Errorf("text = %q", text)
	}
}

func TestAnswerStream_HandlerErrorStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for i := 0; i < 10; i++ {
			data, _ := json.Marshal(Event{Kind: EventMessageDelta, Delta: "x"})
			fmt.Fprintf(w, "event: message.delta\ndata: %s\n\n", data)
		}
	}))
	defer srv.Close()

	stop := errors.New("stop")
	c := New(srv.URL)
	count := 0
	err := c.AnswerStream(context.Background(), RetrieveRequest{Query: "q"}, func(Event) error {
		count++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if count != 1 {
		t.Errorf("handler called %d times, want 1", count)
	}
}
