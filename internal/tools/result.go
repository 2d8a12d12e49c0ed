package tools

import (
	"encoding/json"
	"fmt"

	"github.com/driftcode/agentrunner/internal/agent"
)

// ok builds a successful ToolResult whose Output is the JSON encoding of
// payload, matching the teacher's convention of returning structured JSON
// back to the model rather than ad-hoc text.
func ok(payload any) agent.ToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return agent.ToolResult{Success: false, Error: fmt.Sprintf("encode result: %v", err)}
	}
	return agent.ToolResult{Success: true, Output: string(data)}
}

// fail builds a failed ToolResult. Per the registry contract, expected
// failure modes (bad input, out-of-allowlist command, timeout) are reported
// this way rather than as a Go error, so Execute's error return stays
// reserved for the registry's own panic-recovery wrapper.
func fail(format string, args ...any) agent.ToolResult {
	return agent.ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

func stringArg(input map[string]any, key string) (string, bool) {
	v, ok := input[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func intArg(input map[string]any, key string, def int) int {
	v, ok := input[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

func boolArg(input map[string]any, key string) bool {
	v, ok := input[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func schemaOf(properties map[string]any, required ...string) json.RawMessage {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}
