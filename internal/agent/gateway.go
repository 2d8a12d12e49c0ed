package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// ProviderRequest is the internal, provider-agnostic shape the LLM Gateway
// hands to a concrete LLMProvider implementation.
type ProviderRequest struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float64
}

// ProviderResponse is the internal, provider-agnostic shape a concrete
// LLMProvider returns, already parsed into the Text/ToolUse content-block
// union.
type ProviderResponse struct {
	Content         []Block
	StopReason      string
	Model           string
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
}

// LLMProvider is the transport-level contract a concrete remote model
// client satisfies. The LLM Gateway is the only caller.
type LLMProvider interface {
	Complete(ctx context.Context, req ProviderRequest) (ProviderResponse, error)
}

// ContextWindowProvider is an optional capability an LLMProvider may satisfy
// to report a model's known context window. The Gateway type-asserts for it
// and, when present, pre-flight-rejects a request that would overflow the
// window rather than spend a call doomed to fail remotely. A provider that
// doesn't implement it (or returns 0 for an unknown model) simply skips the
// check.
type ContextWindowProvider interface {
	ContextWindow(model string) int
}

// charsPerToken approximates token count from rendered character count,
// matching internal/repomap's four-characters-per-token convention.
const charsPerToken = 4

// estimateTokens approximates conv's token footprint by counting rendered
// characters across the system prompt and every message's text, tool input,
// and tool output, then dividing by charsPerToken. It is an estimate, not a
// provider-exact count — good enough for a pre-flight guard, not for
// billing (the Cost Accountant uses the provider's own reported usage for
// that).
func estimateTokens(conv *Conversation) int {
	chars := len(conv.SystemPrompt)
	for _, m := range conv.Messages {
		for _, b := range m.Content {
			switch b.Kind {
			case BlockText:
				chars += len(b.Text)
			case BlockToolUse:
				if encoded, err := json.Marshal(b.ToolInput); err == nil {
					chars += len(encoded)
				}
			case BlockToolResult:
				chars += len(b.ToolOutput)
			}
		}
	}
	return chars / charsPerToken
}

// LLMResponse is the Gateway's public return shape.
type LLMResponse struct {
	Content         []Block
	StopReason      string
	Model           string
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
}

// HasToolCalls reports whether the response's stop reason indicates the
// model wants to invoke one or more tools.
func (r LLMResponse) HasToolCalls() bool {
	return r.StopReason == "tool_use"
}

// Text concatenates every Text block in the response, in order.
func (r LLMResponse) Text() string {
	var out string
	for _, b := range r.Content {
		if b.Kind == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolUses returns every ToolUse block in the response, in order.
func (r LLMResponse) ToolUses() []Block {
	var uses []Block
	for _, b := range r.Content {
		if b.Kind == BlockToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// LLMGateway adapts a concrete LLMProvider to the conversation/content-block
// model, enforcing the cost ledger and trace recording that sit around every
// call.
type LLMGateway struct {
	provider     LLMProvider
	cost         *CostAccountant
	trace        *TraceRecorder
	defaultModel string
	maxTokens    int
	temperature  float64
}

// NewLLMGateway builds a gateway around a concrete provider.
func NewLLMGateway(provider LLMProvider, cost *CostAccountant, trace *TraceRecorder, defaultModel string, maxTokens int, temperature float64) *LLMGateway {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &LLMGateway{
		provider:     provider,
		cost:         cost,
		trace:        trace,
		defaultModel: defaultModel,
		maxTokens:    maxTokens,
		temperature:  temperature,
	}
}

// Chat builds the provider request from conversation, tools, and the
// optional overrides, emits llm_request/llm_response trace events, and feeds
// the Cost Accountant. A budget-exceeded error from the Cost Accountant is
// allowed to escape — the Agent Loop is the only caller that catches it.
func (g *LLMGateway) Chat(ctx context.Context, conv *Conversation, tools []ToolDefinition, modelOverride string, maxTokensOverride int) (LLMResponse, error) {
	model := g.defaultModel
	if modelOverride != "" {
		model = modelOverride
	}
	maxTokens := g.maxTokens
	if maxTokensOverride > 0 {
		maxTokens = maxTokensOverride
	}

	req := ProviderRequest{
		Model:       model,
		System:      conv.SystemPrompt,
		Messages:    conv.Messages,
		Tools:       tools,
		MaxTokens:   maxTokens,
		Temperature: g.temperature,
	}

	if windowed, ok := g.provider.(ContextWindowProvider); ok {
		if window := windowed.ContextWindow(model); window > 0 {
			if estimated := estimateTokens(conv) + maxTokens; estimated > window {
				return LLMResponse{}, &ContextWindowExceededError{Model: model, EstimatedTokens: estimated, ContextWindow: window}
			}
		}
	}

	if g.trace != nil {
		g.trace.Record(EventLLMRequest, map[string]any{
			"model":         model,
			"message_count": len(conv.Messages),
			"tool_count":    len(tools),
		})
	}

	resp, err := g.provider.Complete(ctx, req)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("llm gateway: provider error: %w", err)
	}

	result := LLMResponse{
		Content:         resp.Content,
		StopReason:      resp.StopReason,
		Model:           resp.Model,
		InputTokens:     resp.InputTokens,
		OutputTokens:    resp.OutputTokens,
		CacheReadTokens: resp.CacheReadTokens,
	}

	if g.trace != nil {
		g.trace.Record(EventLLMResponse, map[string]any{
			"model":            resp.Model,
			"stop_reason":      resp.StopReason,
			"input_tokens":     resp.InputTokens,
			"output_tokens":    resp.OutputTokens,
			"cache_read_tokens": resp.CacheReadTokens,
			"has_tool_calls":   result.HasToolCalls(),
		})
	}

	if g.cost != nil {
		if _, err := g.cost.RecordCall(resp.Model, resp.InputTokens, resp.OutputTokens, resp.CacheReadTokens); err != nil {
			return result, err
		}
	}

	return result, nil
}
