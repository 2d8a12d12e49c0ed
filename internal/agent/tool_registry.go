package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolRegistry manages available tools with thread-safe registration and
// lookup. Tools are registered by name and dispatched during agent
// conversations.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates a new empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry. It fails with ErrAlreadyRegistered
// if a tool with the same name is already present, and fails if the tool's
// declared schema is not valid JSON Schema — the single-source-of-truth
// property only holds if schema and handler are checked together at
// registration time.
func (r *ToolRegistry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("register tool %q: %w", name, ErrAlreadyRegistered)
	}
	if err := validateSchema(name, tool.Schema()); err != nil {
		return fmt.Errorf("register tool %q: invalid schema: %w", name, err)
	}
	r.tools[name] = tool
	return nil
}

// Unregister removes a tool by name. It is a no-op if the tool is absent.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name and whether it was found.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs a tool by name with the given input. It never fails for an
// unknown tool name or an oversized name/input — those degrade to a
// structured failed ToolResult, per spec.
func (r *ToolRegistry) Execute(ctx context.Context, name string, input map[string]any) ToolResult {
	if len(name) > MaxToolNameLength {
		return ToolResult{Success: false, Error: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength)}
	}
	if encoded, err := json.Marshal(input); err == nil && len(encoded) > MaxToolInputSize {
		return ToolResult{Success: false, Error: fmt.Sprintf("tool input exceeds maximum size of %d bytes", MaxToolInputSize)}
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return ToolResult{Success: false, Error: "tool not found: " + name}
	}

	return safeExecute(ctx, tool, input)
}

// safeExecute traps any unexpected panic or error from a tool and converts
// it into a failed ToolResult — the engine never propagates a raw exception
// out of a tool.
func safeExecute(ctx context.Context, tool Tool, input map[string]any) (result ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = ToolResult{Success: false, Error: fmt.Sprintf("tool %s panicked: %v", tool.Name(), rec)}
		}
	}()

	res, err := tool.Execute(ctx, input)
	if err != nil {
		return ToolResult{Success: false, Error: err.Error()}
	}
	return res
}

// Definitions returns the full schema list for injection into the LLM
// request.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, DefinitionOf(t))
	}
	return defs
}

// validateSchema compiles raw as a JSON Schema document, failing registration
// of a tool whose declared schema and handler could disagree.
func validateSchema(toolName string, raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty schema")
	}
	resourceName := toolName + ".schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return err
	}
	_, err := compiler.Compile(resourceName)
	return err
}
