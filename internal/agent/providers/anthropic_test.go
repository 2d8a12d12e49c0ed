package providers

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/driftcode/agentrunner/internal/agent"
)

func TestConvertMessagesRoundTripsToolUseAndResult(t *testing.T) {
	messages := []agent.Message{
		{Role: agent.RoleUser, Content: []agent.Block{agent.NewTextBlock("read the file")}},
		{Role: agent.RoleAssistant, Content: []agent.Block{
			agent.NewToolUseBlock("call_1", "read_file", map[string]any{"path": "main.go"}),
		}},
		{Role: agent.RoleUser, Content: []agent.Block{
			agent.NewToolResultBlock("call_1", "package main", false),
		}},
	}

	out, err := convertMessages(messages)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 converted messages, got %d", len(out))
	}
}

func TestConvertRequestBlocksRejectsUnknownKind(t *testing.T) {
	_, err := convertRequestBlocks([]agent.Block{{Kind: agent.BlockKind("bogus")}})
	if err == nil {
		t.Fatal("expected error for unsupported block kind")
	}
}

func TestConvertToolsAttachesDescription(t *testing.T) {
	defs := []agent.ToolDefinition{
		{
			Name:        "read_file",
			Description: "Reads a file from the workspace.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
		},
	}

	out, err := convertTools(defs)
	if err != nil {
		t.Fatalf("convertTools: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(out))
	}
	if out[0].OfTool == nil {
		t.Fatal("expected OfTool to be populated")
	}
}

func TestConvertToolsRejectsInvalidSchema(t *testing.T) {
	defs := []agent.ToolDefinition{
		{Name: "broken", InputSchema: json.RawMessage(`not json`)},
	}
	if _, err := convertTools(defs); err == nil {
		t.Fatal("expected error for invalid schema JSON")
	}
}

func TestConvertResponseContentParsesToolUseInput(t *testing.T) {
	content := []anthropic.ContentBlockUnion{
		{Type: "text", Text: "looking at the file"},
		{Type: "tool_use", ID: "call_1", Name: "read_file", Input: json.RawMessage(`{"path":"main.go"}`)},
		{Type: "thinking"},
	}

	blocks, err := convertResponseContent(content)
	if err != nil {
		t.Fatalf("convertResponseContent: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected thinking block to be dropped, got %d blocks", len(blocks))
	}
	if blocks[0].Kind != agent.BlockText || blocks[0].Text != "looking at the file" {
		t.Fatalf("unexpected text block: %+v", blocks[0])
	}
	if blocks[1].Kind != agent.BlockToolUse || blocks[1].ToolName != "read_file" {
		t.Fatalf("unexpected tool_use block: %+v", blocks[1])
	}
	if blocks[1].ToolInput["path"] != "main.go" {
		t.Fatalf("expected parsed input path, got %+v", blocks[1].ToolInput)
	}
}

func TestConvertResponseContentRejectsMalformedInput(t *testing.T) {
	content := []anthropic.ContentBlockUnion{
		{Type: "tool_use", ID: "call_1", Name: "read_file", Input: json.RawMessage(`not json`)},
	}
	if _, err := convertResponseContent(content); err == nil {
		t.Fatal("expected error for malformed tool_use input")
	}
}

func TestMapStopReasonPassesKnownValuesThrough(t *testing.T) {
	cases := map[string]string{
		"tool_use":      "tool_use",
		"end_turn":      "end_turn",
		"max_tokens":    "max_tokens",
		"stop_sequence": "stop_sequence",
	}
	for in, want := range cases {
		if got := mapStopReason(in); got != want {
			t.Errorf("mapStopReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewAnthropicProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{}); err == nil {
		t.Fatal("expected error when api key is empty")
	}
}

func TestNewAnthropicProviderDefaults(t *testing.T) {
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	if p.defaultModel != "claude-sonnet-4-20250514" {
		t.Errorf("unexpected default model: %s", p.defaultModel)
	}
	if p.Name() != "anthropic" {
		t.Errorf("unexpected provider name: %s", p.Name())
	}
	if p.ContextWindow("claude-sonnet-4-20250514") != 200_000 {
		t.Errorf("unexpected context window")
	}
	if p.ContextWindow("unknown-model") != 0 {
		t.Errorf("expected 0 for unknown model")
	}
}
