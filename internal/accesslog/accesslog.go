// Package accesslog publishes audit entries to a NATS subject without ever
// blocking the request path: entries go through a bounded queue and are
// dropped, counted, when the queue is full.
package accesslog

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumenkb/ragd/internal/domain"
	"github.com/lumenkb/ragd/internal/metrics"
)

// DefaultQueueSize bounds the in-flight entry queue.
const DefaultQueueSize = 1024

// Publisher sends one message to a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Recorder queues access entries and publishes them from a single worker
// goroutine.
type Recorder struct {
	pub     Publisher
	subject string
	log     *zap.Logger

	queue chan domain.AccessEntry
	wg    sync.WaitGroup
	once  sync.Once
}

// New creates a recorder and starts its worker. queueSize <= 0 uses the default.
func New(pub Publisher, subject string, queueSize int, log *zap.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	r := &Recorder{
		pub:     pub,
		subject: subject,
		log:     log,
		queue:   make(chan domain.AccessEntry, queueSize),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Record enqueues one entry. It never blocks: when the queue is full the
// entry is dropped and counted.
func (r *Recorder) Record(entry domain.AccessEntry) {
	select {
	case r.queue <- entry:
	default:
		metrics.AccessLogDroppedTotal.Inc()
	}
}

// Close stops accepting entries and waits up to timeout for the queue to drain.
func (r *Recorder) Close(timeout time.Duration) {
	r.once.Do(func() { close(r.queue) })

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		r.log.Warn("access log close timed out with entries still queued")
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for entry := range r.queue {
		data, err := json.Marshal(entry)
		if err != nil {
			r.log.Warn("marshal access entry", zap.Error(err))
			continue
		}
		if err := r.pub.Publish(r.subject, data); err != nil {
			r.log.Warn("publish access entry", zap.Error(err))
		}
	}
}
