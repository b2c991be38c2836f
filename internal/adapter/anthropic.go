package adapter

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/towow/negotiation/internal/negotiation"
	"github.com/towow/negotiation/internal/negotiation/negerr"
)

// AnthropicAdapter is the negotiation.Adapter implementation for a single
// Claude-backed agent source. One adapter instance may back many agent ids
// registered against it through the Registry.
type AnthropicAdapter struct {
	client anthropic.Client

	source       string
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string

	profiles map[string]map[string]interface{}
}

// AnthropicAdapterConfig configures an AnthropicAdapter.
type AnthropicAdapterConfig struct {
	APIKey       string
	BaseURL      string
	Source       string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
	// Profiles optionally seeds static per-agent profile payloads returned
	// by GetProfile. Agents absent here still work; GetProfile falls back
	// to a minimal {agent_id, source} map.
	Profiles map[string]map[string]interface{}
}

// NewAnthropicAdapter constructs an AnthropicAdapter. APIKey is required.
func NewAnthropicAdapter(cfg AnthropicAdapterConfig) (*AnthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, negerr.NewConfigError("anthropic adapter: API key is required", nil)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.Source == "" {
		cfg.Source = "anthropic"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicAdapter{
		client:       anthropic.NewClient(opts...),
		source:       cfg.Source,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		defaultModel: cfg.DefaultModel,
		profiles:     cfg.Profiles,
	}, nil
}

// GetProfile never fails on an unknown agent (spec-equivalent invariant):
// it returns whatever was seeded, or a minimal {agent_id, source} map.
func (a *AnthropicAdapter) GetProfile(_ context.Context, agentID string) (map[string]interface{}, error) {
	if p, ok := a.profiles[agentID]; ok {
		return p, nil
	}
	return map[string]interface{}{"agent_id": agentID, "source": a.source}, nil
}

// Chat sends a single-shot, non-streaming request and returns the
// concatenated text content. Retries transient failures with exponential
// backoff (mirrors the teacher's provider retry loop, collapsed to one
// blocking call instead of an SSE stream).
func (a *AnthropicAdapter) Chat(ctx context.Context, agentID string, messages []negotiation.ChatMessage, systemPrompt string) (string, error) {
	params := a.buildParams(messages, systemPrompt)

	var resp *anthropic.Message
	var err error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		resp, err = a.client.Messages.New(ctx, params)
		if err == nil {
			break
		}
		if !isRetryable(err) {
			return "", negerr.NewAdapterError(agentID, "anthropic chat failed", err)
		}
		if attempt == a.maxRetries {
			break
		}
		backoff := a.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return "", negerr.NewAdapterError(agentID, "anthropic chat cancelled", ctx.Err())
		case <-time.After(backoff):
		}
	}
	if err != nil {
		return "", negerr.NewAdapterError(agentID, "anthropic chat failed after retries", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// ChatStream returns a single-consumer channel of text chunks backed by a
// real streaming Anthropic request. The error channel carries at most one
// value and is closed alongside the text channel.
func (a *AnthropicAdapter) ChatStream(ctx context.Context, agentID string, messages []negotiation.ChatMessage, systemPrompt string) (<-chan string, <-chan error) {
	out := make(chan string)
	errc := make(chan error, 1)

	params := a.buildParams(messages, systemPrompt)

	go func() {
		defer close(out)
		defer close(errc)

		stream := a.client.Messages.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			if event.Type != "content_block_delta" {
				continue
			}
			delta := event.AsContentBlockDelta().Delta
			if delta.Type == "text_delta" && delta.Text != "" {
				select {
				case out <- delta.Text:
				case <-ctx.Done():
					errc <- negerr.NewAdapterError(agentID, "anthropic stream cancelled", ctx.Err())
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			errc <- negerr.NewAdapterError(agentID, "anthropic stream failed", err)
		}
	}()

	return out, errc
}

func (a *AnthropicAdapter) buildParams(messages []negotiation.ChatMessage, systemPrompt string) anthropic.MessageNewParams {
	var converted []anthropic.MessageParam
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			converted = append(converted, anthropic.NewAssistantMessage(block))
		} else {
			converted = append(converted, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.defaultModel),
		Messages:  converted,
		MaxTokens: 4096,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: systemPrompt}}
	}
	return params
}

// isRetryable mirrors the teacher's status/message based classification,
// collapsed to a bool since the adapter layer only needs retry/no-retry.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"rate limit", "429", "too many requests", "timeout", "deadline exceeded", "connection reset", "connection refused", "503", "502", "500"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
