package accesslog

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lumenkb/ragd/internal/domain"
)

type capturePublisher struct {
	mu       sync.Mutex
	messages [][]byte
	block    chan struct{} // when non-nil, Publish waits until closed
}

func (p *capturePublisher) Publish(_ string, data []byte) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	p.messages = append(p.messages, cp)
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func TestRecorder_PublishesEntries(t *testing.T) {
	pub := &capturePublisher{}
	r := New(pub, "ragd.access", 8, zap.NewNop())

	r.Record(domain.AccessEntry{Operation: "retrieve", Query: "q"})
	r.Close(time.Second)

	if pub.count() != 1 {
		t.Fatalf("expected 1 published entry, got %d", pub.count())
	}

	var got domain.AccessEntry
	if err := json.Unmarshal(pub.messages[0], &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Operation != "retrieve" || got.Query != "q" {
		t.Errorf("unexpected entry: %+v", got)
	}
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	pub := &capturePublisher{block: block}
	r := New(pub, "ragd.access", 1, zap.NewNop())

	// The worker stalls on the first publish; the queue holds one more.
	// Everything past that must be dropped without blocking Record.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.Record(domain.AccessEntry{Operation: "retrieve"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record must never block, even with a full queue")
	}

	close(block)
	r.Close(time.Second)

	if pub.count() > 2 {
		t.Errorf("expected at most 2 published entries, got %d", pub.count())
	}
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	r := New(&capturePublisher{}, "ragd.access", 8, zap.NewNop())
	r.Close(time.Second)
	r.Close(time.Second)
}
