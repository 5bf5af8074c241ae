package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lumenkb/ragd/internal/domain"
	"github.com/lumenkb/ragd/internal/metrics"
)

// Chat is a chat-completion client over the OpenAI-compatible API. It also
// serves as the vision describer for the image recognition plugin.
type Chat struct {
	client      *openai.Client
	model       string
	visionModel string
	temperature float32
	maxTokens   int
	provider    string
	logger      *zap.Logger
}

// ChatConfig holds the completion provider settings.
type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string // empty falls back to Model
	Temperature float32
	MaxTokens   int
	Provider    string
	Logger      *zap.Logger
}

// NewChat creates an OpenAI-compatible chat client.
func NewChat(cfg *ChatConfig) *Chat {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = cfg.Model
	}

	return &Chat{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		visionModel: visionModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		provider:    cfg.Provider,
		logger:      cfg.Logger,
	}
}

// resolveParams applies per-request overrides to the configured defaults.
func (c *Chat) resolveParams(params domain.ModelParams) (float32, int) {
	temperature := c.temperature
	if params.Temperature != nil {
		temperature = *params.Temperature
	}
	maxTokens := c.maxTokens
	if params.MaxTokens > 0 {
		maxTokens = params.MaxTokens
	}
	return temperature, maxTokens
}

// Complete runs a single-shot chat completion.
func (c *Chat) Complete(ctx context.Context, system, user string, params domain.ModelParams) (string, error) {
	start := time.Now()

	temperature, maxTokens := c.resolveParams(params)
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.model, "error").Inc()
		return "", parseAPIError("completion", domain.ErrLLMProviderError, err)
	}
	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.model, "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrLLMProviderError)
	}

	metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(c.provider, c.model).Observe(time.Since(start).Seconds())
	if resp.Usage.CompletionTokens > 0 {
		metrics.LLMTokensTotal.WithLabelValues(c.provider, c.model, "completion").Add(float64(resp.Usage.CompletionTokens))
		domain.UsageFromContext(ctx).AddCompletionTokens(resp.Usage.CompletionTokens)
	}

	return resp.Choices[0].Message.Content, nil
}

// Stream runs a streaming chat completion, invoking onDelta per content
// fragment. A provider error mid-stream aborts with the wrapped error.
func (c *Chat) Stream(ctx context.Context, system, user string, params domain.ModelParams, onDelta func(string) error) error {
	start := time.Now()

	temperature, maxTokens := c.resolveParams(params)
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.model, "error").Inc()
		return parseAPIError("completion stream", domain.ErrLLMProviderError, err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.model, "error").Inc()
			return parseAPIError("completion stream", domain.ErrLLMProviderError, err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := onDelta(delta); err != nil {
				return err
			}
		}
	}

	metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(c.provider, c.model).Observe(time.Since(start).Seconds())
	return nil
}

// Describe implements postprocess.ImageDescriber: it asks the vision model
// to describe an image in the light of the query and reports whether the
// image is relevant at all.
func (c *Chat) Describe(ctx context.Context, query, imageRef string) (string, bool, error) {
	prompt := fmt.Sprintf(
		"Describe the content of this image as it relates to the question %q. "+
			"If the image has no relation to the question, reply with exactly NOT_RELEVANT.",
		query)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.visionModel,
		MaxTokens: c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageRef},
					},
				},
			},
		},
	})
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.visionModel, "error").Inc()
		return "", false, parseAPIError("vision", domain.ErrLLMProviderError, err)
	}
	if len(resp.Choices) == 0 {
		return "", false, fmt.Errorf("empty vision response: %w", domain.ErrLLMProviderError)
	}

	metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.visionModel, "success").Inc()
	if resp.Usage.CompletionTokens > 0 {
		domain.UsageFromContext(ctx).AddCompletionTokens(resp.Usage.CompletionTokens)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" || strings.Contains(text, "NOT_RELEVANT") {
		return "", false, nil
	}
	return text, true, nil
}
