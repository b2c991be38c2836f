// Package platformllm implements the platform-side LLM client used by the
// center coordinator, sub-negotiation proposer, and gap-recursion skill —
// the engine's own Claude calls, never the participating agents' models.
package platformllm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/towow/negotiation/internal/negotiation"
	"github.com/towow/negotiation/internal/negotiation/negerr"
)

// Client implements negotiation.PlatformLLMClient with a single blocking
// Messages.New call returning a structured tool-use response.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// Config configures a Client.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// New constructs a Client. APIKey is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, negerr.NewConfigError("platform LLM client: API key is required", nil)
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5-20250929"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
	}, nil
}

// Chat sends a single request with optional tool definitions and parses the
// response into content/tool_calls/stop_reason (spec-equivalent contract
// shared with the center coordinator's one-retry-at-the-caller policy —
// this client itself does not retry, matching the original platform client
// it's grounded on).
func (c *Client) Chat(ctx context.Context, messages []negotiation.ChatMessage, systemPrompt string, tools []negotiation.ToolDescriptor) (negotiation.LLMResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  convertMessages(messages),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: systemPrompt}}
	}
	if len(tools) > 0 {
		converted, err := convertTools(tools)
		if err != nil {
			return negotiation.LLMResponse{}, negerr.NewLLMError("tool schema conversion failed", err)
		}
		params.Tools = converted
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return negotiation.LLMResponse{}, negerr.NewLLMError("platform LLM call failed", err)
	}
	return parseResponse(msg), nil
}

func convertMessages(messages []negotiation.ChatMessage) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			// "user" and "tool" transcript entries both surface to Claude as
			// user turns, matching the center transcript's flattened shape.
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func convertTools(tools []negotiation.ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		raw, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, err
		}
		var schema anthropic.ToolInputSchemaParam
		if len(raw) > 0 {
			var fields map[string]interface{}
			if err := json.Unmarshal(raw, &fields); err != nil {
				return nil, err
			}
			schema.ExtraFields = fields
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, param)
	}
	return out, nil
}

func parseResponse(msg *anthropic.Message) negotiation.LLMResponse {
	var textParts []string
	var toolCalls []negotiation.ToolCall

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				textParts = append(textParts, block.Text)
			}
		case "tool_use":
			var args map[string]interface{}
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &args)
			}
			toolCalls = append(toolCalls, negotiation.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	return negotiation.LLMResponse{
		Content:    strings.Join(textParts, ""),
		ToolCalls:  toolCalls,
		StopReason: string(msg.StopReason),
	}
}

// DefaultTimeout is a per-call timeout value for callers that wrap this
// client's calls in a deadline; the client itself applies none, and the
// center coordinator does not use it.
const DefaultTimeout = 30 * time.Second
