// Package planner implements the LLM-driven task decomposer that turns a
// single complex task into an ordered ExecutionPlan of smaller steps, each
// of which the Agent Loop can run as its own sub-task.
package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/driftcode/agentrunner/internal/agent"
)

// DefaultMaxSteps bounds how many steps a single plan may contain.
const DefaultMaxSteps = 10

// DefaultMaxTokens bounds the planning LLM call's response length.
const DefaultMaxTokens = 1024

const systemPrompt = `You are a planning assistant. Break the given task into a numbered list of concrete, ordered steps. Respond with nothing but the numbered list, one step per line, formatted as "1. <step>". Produce at most %d steps.`

var stepLinePattern = regexp.MustCompile(`^\s*\d+[.)]\s*(.+)$`)

// StepStatus is the closed set of states a PlanStep moves through.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

var statusIcons = map[StepStatus]string{
	StepPending:    "[ ]",
	StepInProgress: "[>]",
	StepCompleted:  "[x]",
	StepFailed:     "[!]",
	StepSkipped:    "[-]",
}

// PlanStep is one unit of work inside an ExecutionPlan.
type PlanStep struct {
	Description string
	Status      StepStatus
}

// ExecutionPlan is the ordered sequence of steps the Planner produced for a
// task, plus replan bookkeeping.
type ExecutionPlan struct {
	Task         string
	Steps        []*PlanStep
	FailureCount int
}

// CurrentStep returns the first pending step, or nil if none remain.
func (p *ExecutionPlan) CurrentStep() *PlanStep {
	for _, s := range p.Steps {
		if s.Status == StepPending {
			return s
		}
	}
	return nil
}

// IsComplete reports whether no step is pending or in progress.
func (p *ExecutionPlan) IsComplete() bool {
	for _, s := range p.Steps {
		if s.Status == StepPending || s.Status == StepInProgress {
			return false
		}
	}
	return true
}

// ProgressSummary renders "Progress: C/T completed, F failed".
func (p *ExecutionPlan) ProgressSummary() string {
	completed, failed := 0, 0
	for _, s := range p.Steps {
		switch s.Status {
		case StepCompleted:
			completed++
		case StepFailed:
			failed++
		}
	}
	return fmt.Sprintf("Progress: %d/%d completed, %d failed", completed, len(p.Steps), failed)
}

// ToContextString renders each step on its own line prefixed by a status
// icon, suitable for feeding back into the Agent Loop as task context.
func (p *ExecutionPlan) ToContextString() string {
	lines := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		icon := statusIcons[s.Status]
		lines = append(lines, fmt.Sprintf("%s %s", icon, s.Description))
	}
	return strings.Join(lines, "\n")
}

// Planner decomposes tasks via the LLM Gateway.
type Planner struct {
	gateway   *agent.LLMGateway
	trace     *agent.TraceRecorder
	maxSteps  int
	maxTokens int
}

// NewPlanner builds a Planner around a gateway. maxSteps/maxTokens fall back
// to the package defaults when non-positive.
func NewPlanner(gateway *agent.LLMGateway, trace *agent.TraceRecorder, maxSteps, maxTokens int) *Planner {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Planner{gateway: gateway, trace: trace, maxSteps: maxSteps, maxTokens: maxTokens}
}

// CreatePlan sends a fixed planning prompt to the gateway and parses the
// response as a numbered list. An empty or unparseable response yields an
// empty plan; the caller must handle that case.
func (p *Planner) CreatePlan(ctx context.Context, task, taskContext string) (*ExecutionPlan, error) {
	prompt := task
	if taskContext != "" {
		prompt += "\n\nContext:\n" + taskContext
	}

	conv := agent.NewConversation(fmt.Sprintf(systemPrompt, p.maxSteps))
	conv.AppendUserText(prompt)

	resp, err := p.gateway.Chat(ctx, conv, nil, "", p.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("planner: create plan: %w", err)
	}

	plan := &ExecutionPlan{
		Task:  task,
		Steps: parseSteps(resp.Text(), p.maxSteps),
	}

	if p.trace != nil {
		p.trace.Record(agent.EventPlanStep, map[string]any{
			"task":       task,
			"step_count": len(plan.Steps),
		})
	}

	return plan, nil
}

// Replan rebuilds context from the previous plan's completed and failed
// steps, calls CreatePlan again, and carries forward an incremented
// FailureCount.
func (p *Planner) Replan(ctx context.Context, previous *ExecutionPlan, taskContext string) (*ExecutionPlan, error) {
	summary := previous.ToContextString()
	if taskContext != "" {
		summary = taskContext + "\n\n" + summary
	}

	plan, err := p.CreatePlan(ctx, previous.Task, summary)
	if err != nil {
		return nil, err
	}
	plan.FailureCount = previous.FailureCount + 1

	if p.trace != nil {
		p.trace.Record(agent.EventPlanStep, map[string]any{
			"task":          previous.Task,
			"replan":        true,
			"failure_count": plan.FailureCount,
		})
	}

	return plan, nil
}

// parseSteps scans text line by line, matching stepLinePattern, and keeps at
// most maxSteps matches in insertion order.
func parseSteps(text string, maxSteps int) []*PlanStep {
	var steps []*PlanStep
	for _, line := range strings.Split(text, "\n") {
		match := stepLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		steps = append(steps, &PlanStep{Description: strings.TrimSpace(match[1]), Status: StepPending})
		if len(steps) >= maxSteps {
			break
		}
	}
	return steps
}
