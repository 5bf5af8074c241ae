package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// StreamStatuser reports access-stream connectivity. *nats.Conn satisfies it.
type StreamStatuser interface {
	IsConnected() bool
}
