// Package providers holds concrete LLMProvider implementations consumed by
// the LLM Gateway. Anthropic is the only backend shipped today; a second
// implementation is a matter of satisfying agent.LLMProvider and nothing
// else.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/driftcode/agentrunner/internal/agent"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	DefaultModel string
	Logger       *slog.Logger
}

// AnthropicProvider is a thin adapter from agent.LLMProvider to the Anthropic
// Messages API. It makes exactly one blocking request per Complete call; the
// ReAct iteration structure lives in the Agent Loop, not here.
type AnthropicProvider struct {
	BaseProvider

	client       anthropic.Client
	defaultModel string
}

// NewAnthropicProvider builds a provider from config. APIKey is required.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		BaseProvider: NewBaseProvider("anthropic", config.MaxRetries, 0, config.Logger),
		client:       anthropic.NewClient(opts...),
		defaultModel: config.DefaultModel,
	}, nil
}

// Name identifies the provider in trace data and error messages.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// modelContextWindows records each supported model's published context
// window. These figures are not derived from anything in original_source/
// (its src/llm/models.py holds only the content-block dataclasses, no
// capability table) — they are Anthropic's documented per-model limits,
// authored directly here. ContextWindow satisfies agent.ContextWindowProvider,
// letting the LLM Gateway pre-flight-reject a request that would overflow the
// model before spending a call on it.
var modelContextWindows = map[string]int{
	"claude-opus-4-20250514":    200_000,
	"claude-sonnet-4-20250514":  200_000,
	"claude-3-5-haiku-20241022": 200_000,
}

// ContextWindow returns the known context window for model, or 0 if unknown
// (which disables the Gateway's pre-flight check for that model).
func (p *AnthropicProvider) ContextWindow(model string) int {
	return modelContextWindows[model]
}

// Complete issues one blocking Messages API call and parses the result back
// into the provider-agnostic ProviderResponse shape. Retryable failures
// (rate limits, timeouts, transient 5xxs) are retried with linear
// backoff; everything else is returned immediately.
func (p *AnthropicProvider) Complete(ctx context.Context, req agent.ProviderRequest) (agent.ProviderResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return agent.ProviderResponse{}, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	tools, err := convertTools(req.Tools)
	if err != nil {
		return agent.ProviderResponse{}, fmt.Errorf("anthropic: convert tools: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	var msg *anthropic.Message
	retryErr := p.Retry(ctx, IsRetryable, func() error {
		var callErr error
		msg, callErr = p.client.Messages.New(ctx, params)
		if callErr != nil {
			return NewProviderError(p.Name(), model, callErr)
		}
		return nil
	})
	if retryErr != nil {
		return agent.ProviderResponse{}, retryErr
	}

	blocks, convErr := convertResponseContent(msg.Content)
	if convErr != nil {
		return agent.ProviderResponse{}, fmt.Errorf("anthropic: convert response: %w", convErr)
	}

	return agent.ProviderResponse{
		Content:         blocks,
		StopReason:      mapStopReason(string(msg.StopReason)),
		Model:           string(msg.Model),
		InputTokens:     int(msg.Usage.InputTokens),
		OutputTokens:    int(msg.Usage.OutputTokens),
		CacheReadTokens: int(msg.Usage.CacheReadInputTokens),
	}, nil
}

// mapStopReason translates Anthropic's stop reasons into the internal
// vocabulary the Agent Loop checks against (only "tool_use" is load-bearing
// today; everything else passes through for observability).
func mapStopReason(reason string) string {
	switch reason {
	case "tool_use":
		return "tool_use"
	case "end_turn", "stop_sequence", "max_tokens":
		return reason
	default:
		return reason
	}
}

// convertMessages maps the internal Conversation message list onto the
// Anthropic SDK's message params, preserving the tagged-union shape of each
// content block.
func convertMessages(messages []agent.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		blocks, err := convertRequestBlocks(m.Content)
		if err != nil {
			return nil, err
		}
		switch m.Role {
		case agent.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, nil
}

func convertRequestBlocks(blocks []agent.Block) ([]anthropic.ContentBlockParamUnion, error) {
	out := make([]anthropic.ContentBlockParamUnion, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case agent.BlockText:
			out = append(out, anthropic.NewTextBlock(b.Text))
		case agent.BlockToolUse:
			input := b.ToolInput
			if input == nil {
				input = map[string]any{}
			}
			out = append(out, anthropic.NewToolUseBlock(b.ToolUseID, input, b.ToolName))
		case agent.BlockToolResult:
			out = append(out, anthropic.NewToolResultBlock(b.ToolResultForID, b.ToolOutput, b.IsError))
		default:
			return nil, fmt.Errorf("anthropic: unsupported block kind %q", b.Kind)
		}
	}
	return out, nil
}

// convertTools maps ToolDefinitions onto Anthropic's typed tool params. Each
// tool's JSON Schema is already validated at registration time by the Tool
// Registry, so this is a structural translation, not a second validation
// pass.
func convertTools(defs []agent.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		var schema anthropic.ToolInputSchemaParam
		if len(d.InputSchema) > 0 {
			if err := json.Unmarshal(d.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("invalid tool schema for %s: %w", d.Name, err)
			}
		}

		tool := anthropic.ToolUnionParamOfTool(schema, d.Name)
		if tool.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", d.Name)
		}
		tool.OfTool.Description = anthropic.String(d.Description)
		out = append(out, tool)
	}
	return out, nil
}

// convertResponseContent maps the Anthropic response's content-block union
// back onto the internal Block tagged union.
func convertResponseContent(content []anthropic.ContentBlockUnion) ([]agent.Block, error) {
	out := make([]agent.Block, 0, len(content))
	for _, block := range content {
		switch block.Type {
		case "text":
			out = append(out, agent.NewTextBlock(block.Text))
		case "tool_use":
			var input map[string]any
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &input); err != nil {
					return nil, fmt.Errorf("tool_use input: %w", err)
				}
			}
			out = append(out, agent.NewToolUseBlock(block.ID, block.Name, input))
		default:
			// Thinking blocks and any future block kinds are dropped rather
			// than surfaced as text; the agent loop only understands the
			// three kinds in the internal union.
			continue
		}
	}
	return out, nil
}
