package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultMaxToolIterations is the default iteration bound per task.
const DefaultMaxToolIterations = 25

const thoughtTruncateLen = 500

const systemPromptTemplate = `You are an autonomous coding agent. You work by reasoning about the task, invoking tools to inspect and modify the workspace, and observing their results until the task is complete.

Working memory:
%s`

// LoopConfig configures the Agent Loop.
type LoopConfig struct {
	// MaxToolIterations bounds the ReAct iteration loop.
	MaxToolIterations int

	// Model and MaxTokens are passed to the LLM Gateway as overrides; zero
	// values let the gateway fall back to its own defaults.
	Model     string
	MaxTokens int
}

// DefaultLoopConfig returns the spec's default loop configuration.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{MaxToolIterations: DefaultMaxToolIterations}
}

func sanitizeLoopConfig(cfg LoopConfig) LoopConfig {
	if cfg.MaxToolIterations < 0 {
		cfg.MaxToolIterations = DefaultMaxToolIterations
	}
	return cfg
}

// ToolInvocation is one realized step of a tool chain: the tool name plus
// the input it was called with. It is the unit the Task Cache replays.
type ToolInvocation struct {
	Name  string
	Input map[string]any
}

// CachedChain is the subset of the Task Cache's stored row the Agent Loop
// needs in order to record a hit and attribute savings.
type CachedChain struct {
	TaskDescription string
	ToolChain       []ToolInvocation
	FilesModified   []string
	CostUSD         float64
	HitCount        int
}

// TaskCache is the narrow interface the Agent Loop depends on, satisfied by
// internal/cache.Cache. Declared here, not in the cache package, so the
// agent package stays free of a dependency on the cache's persistence
// details.
type TaskCache interface {
	Lookup(ctx context.Context, task string) (*CachedChain, bool)
	Store(ctx context.Context, task string, chain []ToolInvocation, filesModified []string, costUSD float64) error
}

// AgentResult is emitted once per task.
type AgentResult struct {
	Success         bool
	Response        string
	Iterations      int
	ToolCallsMade   []string
	FilesModified   []string
	TotalTokens     int
	TotalCostUSD    float64
	DurationSeconds float64
}

// AgentLoop is the orchestrator wiring the Trace Recorder, Cost Accountant,
// Working Scratchpad, Tool Registry, and LLM Gateway into one iterative
// control flow.
type AgentLoop struct {
	gateway    *LLMGateway
	registry   *ToolRegistry
	cost       *CostAccountant
	trace      *TraceRecorder
	scratchpad *WorkingScratchpad
	cache      TaskCache
	config     LoopConfig
	logger     *slog.Logger
}

// NewAgentLoop builds an Agent Loop from its collaborators. cache may be
// nil, disabling cache lookup/store entirely.
func NewAgentLoop(gateway *LLMGateway, registry *ToolRegistry, cost *CostAccountant, trace *TraceRecorder, scratchpad *WorkingScratchpad, cache TaskCache, config LoopConfig, logger *slog.Logger) *AgentLoop {
	if logger == nil {
		logger = slog.Default()
	}
	if scratchpad == nil {
		scratchpad = NewWorkingScratchpad(DefaultScratchpadCapacity)
	}
	return &AgentLoop{
		gateway:    gateway,
		registry:   registry,
		cost:       cost,
		trace:      trace,
		scratchpad: scratchpad,
		cache:      cache,
		config:     sanitizeLoopConfig(config),
		logger:     logger,
	}
}

// Run executes one task to completion, returning an AgentResult. It never
// returns an error: every failure mode in the spec's taxonomy is
// represented in-band in the returned result.
func (l *AgentLoop) Run(ctx context.Context, task, taskContext string) AgentResult {
	startTime := time.Now()

	systemPrompt := fmt.Sprintf(systemPromptTemplate, l.scratchpad.ToContextString())
	if taskContext != "" {
		systemPrompt += "\n\nContext:\n" + taskContext
	}

	conv := NewConversation(systemPrompt)
	conv.AppendUserText(task)

	var toolCallsMade []string
	var filesModified []string
	var toolChain []ToolInvocation
	seenFiles := make(map[string]bool)

	if l.cache != nil {
		if _, hit := l.cache.Lookup(ctx, task); hit {
			l.logger.Debug("task cache hit recorded, continuing with live execution", "task", task)
		}
	}

	finalResponse := ""
	reachedMax := true
	stopped := false
	iterations := 0

	for i := 0; i < l.config.MaxToolIterations; i++ {
		iterations = i + 1
		span := l.trace.StartSpan(fmt.Sprintf("iteration_%d", i), "")

		done, response, err := l.runIteration(ctx, conv, &toolCallsMade, &filesModified, &toolChain, seenFiles)

		if err != nil {
			var budgetErr *BudgetExceededError
			var contextErr *ContextWindowExceededError
			switch {
			case errors.As(err, &budgetErr):
				finalResponse = fmt.Sprintf("Task stopped: budget exceeded ($%.4f of $%.4f)", budgetErr.Spent, budgetErr.Budget)
				l.trace.Record(EventBudgetWarning, map[string]any{"spent": budgetErr.Spent, "budget": budgetErr.Budget})
			case errors.As(err, &contextErr):
				finalResponse = fmt.Sprintf("Task stopped: context window exceeded (%d of %d tokens for %s)", contextErr.EstimatedTokens, contextErr.ContextWindow, contextErr.Model)
				l.trace.Record(EventError, map[string]any{"error": err.Error()})
			default:
				finalResponse = fmt.Sprintf("Agent encountered an error: %s", err.Error())
				l.trace.Record(EventError, map[string]any{"error": err.Error()})
			}
			l.trace.EndSpan(span)
			reachedMax = false
			stopped = true
			break
		}

		l.trace.EndSpan(span)

		if done {
			finalResponse = response
			reachedMax = false
			break
		}
	}

	if reachedMax {
		finalResponse = fmt.Sprintf("Task stopped after %d iterations (max reached)", l.config.MaxToolIterations)
	}

	success := finalResponse != "" && !strings.Contains(strings.ToLower(finalResponse), "error")
	if reachedMax && iterations == 0 {
		// max_tool_iterations=0: the loop never ran, so there is nothing to
		// report success for, regardless of what the "max reached" message
		// says.
		success = false
	}
	if stopped {
		// An iteration error (budget, context window, or other) ended the
		// task early, whatever wording the stop message uses.
		success = false
	}

	if success && len(filesModified) > 0 && l.cache != nil {
		if err := l.cache.Store(ctx, task, toolChain, filesModified, l.cost.TotalCost()); err != nil {
			l.logger.Warn("failed to store task cache entry", "error", err)
		}
	}

	summary := l.cost.Summary()
	return AgentResult{
		Success:         success,
		Response:        finalResponse,
		Iterations:      iterations,
		ToolCallsMade:   toolCallsMade,
		FilesModified:   filesModified,
		TotalTokens:     summary.TotalTokens,
		TotalCostUSD:    summary.TotalCost,
		DurationSeconds: time.Since(startTime).Seconds(),
	}
}

// runIteration executes one ReAct turn: an LLM call, optional tool dispatch,
// and conversation bookkeeping. It traps any unexpected panic and converts
// it into an error return, matching the spec's error-path requirement that
// no exception escapes an iteration uncaught.
func (l *AgentLoop) runIteration(ctx context.Context, conv *Conversation, toolCallsMade *[]string, filesModified *[]string, toolChain *[]ToolInvocation, seenFiles map[string]bool) (done bool, response string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	resp, chatErr := l.gateway.Chat(ctx, conv, l.registry.Definitions(), l.config.Model, l.config.MaxTokens)
	if chatErr != nil {
		return false, "", chatErr
	}

	conv.AppendAssistant(resp.Content)

	if text := resp.Text(); text != "" {
		thought := text
		if len(thought) > thoughtTruncateLen {
			thought = thought[:thoughtTruncateLen]
		}
		l.trace.Record(EventThought, map[string]any{"text": thought})
	}

	if !resp.HasToolCalls() {
		return true, resp.Text(), nil
	}

	var resultBlocks []Block
	for _, use := range resp.ToolUses() {
		*toolCallsMade = append(*toolCallsMade, use.ToolName)
		*toolChain = append(*toolChain, ToolInvocation{Name: use.ToolName, Input: use.ToolInput})

		l.trace.Record(EventToolCall, map[string]any{
			"tool_name":    use.ToolName,
			"tool_call_id": use.ToolUseID,
		})

		result := l.registry.Execute(ctx, use.ToolName, use.ToolInput)

		l.trace.Record(EventToolResult, map[string]any{
			"tool_name":      use.ToolName,
			"success":        result.Success,
			"output_length":  len(result.Output),
			"error_summary":  errorSummary(result.Error),
		})

		if use.ToolName == "write_file" && result.Success {
			if path, ok := use.ToolInput["path"].(string); ok && path != "" && !seenFiles[path] {
				seenFiles[path] = true
				*filesModified = append(*filesModified, path)
			}
		}

		observation := result.Output
		if result.Error != "" {
			observation = result.Error
		}
		l.scratchpad.Set("last_"+use.ToolName, truncateValue(observation))

		if result.Success {
			resultBlocks = append(resultBlocks, NewToolResultBlock(use.ToolUseID, result.Output, false))
		} else {
			resultBlocks = append(resultBlocks, NewToolResultBlock(use.ToolUseID, fmt.Sprintf("Error: %s\n%s", result.Error, result.Output), true))
		}
	}

	conv.AppendToolResults(resultBlocks)
	return false, "", nil
}

func errorSummary(errMsg string) string {
	const maxLen = 200
	if len(errMsg) <= maxLen {
		return errMsg
	}
	return errMsg[:maxLen] + "..."
}
