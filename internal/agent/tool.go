package agent

import (
	"context"
	"encoding/json"
)

// ToolResult is the outcome of a single tool invocation. It is never
// partially populated: Success true implies Error is empty, Success false
// implies Error is non-empty. Output is always a string, possibly empty.
type ToolResult struct {
	Output  string
	Success bool
	Error   string
}

// Tool is the uniform contract every tool implementation satisfies. Schema
// describes what the LLM may pass; each tool writes it by hand. The registry
// compiles it once, at registration time, to check that it is well-formed
// JSON Schema; inputs are not validated against it before Execute runs.
//
// Execute must never let an unexpected failure escape as a raw panic or a
// Go error that reaches the caller unexamined — tool-level failures belong
// in the returned ToolResult. A non-nil error return is reserved for
// situations the registry itself must react to (it has none today; Execute
// implementations should return nil error in the common case and encode
// failure via ToolResult.Success/Error instead).
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, input map[string]any) (ToolResult, error)
}

// ToolDefinition is the wire-level shape handed to the LLM Gateway for
// inclusion in a chat request's tool list.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// DefinitionOf derives a ToolDefinition from a registered Tool.
func DefinitionOf(t Tool) ToolDefinition {
	return ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Schema(),
	}
}
