// Package rerank calls an external cross-encoder scoring service. The
// client sits behind a circuit breaker so a struggling reranker degrades
// requests quickly instead of stalling the whole pipeline.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/lumenkb/ragd/internal/domain"
	"github.com/lumenkb/ragd/internal/metrics"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultAttempts = 3
)

// Config holds rerank service settings.
type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
	Attempts uint
}

// Client implements postprocess.RerankScorer over HTTP.
type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	model    string
	attempts uint
	breaker  *gobreaker.CircuitBreaker[[]float64]
}

// New creates a rerank client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = defaultAttempts
	}

	breaker := gobreaker.NewCircuitBreaker[[]float64](gobreaker.Settings{
		Name: "rerank",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*2 > counts.Requests
		},
		Timeout: 30 * time.Second,
	})

	return &Client{
		http:     &http.Client{Timeout: timeout},
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		attempts: attempts,
		breaker:  breaker,
	}
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Scores returns one relevance score per document, in input order.
func (c *Client) Scores(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	scores, err := c.breaker.Execute(func() ([]float64, error) {
		return retry.DoWithData(
			func() ([]float64, error) { return c.call(ctx, query, documents) },
			retry.Context(ctx),
			retry.Attempts(c.attempts),
			retry.Delay(100*time.Millisecond),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)
	})
	if err != nil {
		metrics.RerankRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %w", domain.ErrRerankProviderError, err)
	}

	metrics.RerankRequestsTotal.WithLabelValues("success").Inc()
	return scores, nil
}

func (c *Client) call(ctx context.Context, query string, documents []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Model: c.model, Query: query, Documents: documents})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rerank status %d: %s", resp.StatusCode, payload)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Results) != len(documents) {
		return nil, fmt.Errorf("rerank returned %d scores for %d documents", len(parsed.Results), len(documents))
	}

	scores := make([]float64, len(documents))
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(scores) {
			return nil, fmt.Errorf("rerank returned out-of-range index %d", r.Index)
		}
		scores[r.Index] = r.RelevanceScore
	}
	return scores, nil
}
