package engine

import (
	"context"
	"testing"

	"github.com/driftcode/agentrunner/internal/agent"
	"github.com/driftcode/agentrunner/internal/planner"
	"github.com/driftcode/agentrunner/internal/routing"
	"github.com/driftcode/agentrunner/internal/verifier"
)

// fakeProvider returns canned text responses in order, cycling the last
// response once exhausted, and never invokes tools, so every Agent Loop
// call it backs terminates after exactly one iteration.
type fakeProvider struct {
	responses []string
	calls     int
}

func (f *fakeProvider) Complete(ctx context.Context, req agent.ProviderRequest) (agent.ProviderResponse, error) {
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return agent.ProviderResponse{
		Content:      []agent.Block{agent.NewTextBlock(f.responses[idx])},
		StopReason:   "end_turn",
		Model:        "fake-model",
		InputTokens:  10,
		OutputTokens: 10,
	}, nil
}

func newTestEngine(t *testing.T, responses []string, needsPlanning bool) *Engine {
	t.Helper()
	trace := agent.NewTraceRecorder("test-task", t.TempDir(), nil)
	cost := agent.NewCostAccountant(nil, 10.0, trace, nil)
	gateway := agent.NewLLMGateway(&fakeProvider{responses: responses}, cost, trace, "fake-model", 1024, 0)
	registry := agent.NewToolRegistry()
	loop := agent.NewAgentLoop(gateway, registry, cost, trace, nil, nil, agent.DefaultLoopConfig(), nil)

	threshold := 0.99
	if needsPlanning {
		threshold = 0.01
	}
	router := routing.NewRouter(threshold)
	p := planner.NewPlanner(gateway, trace, 5, 512)
	v := verifier.NewVerifier(registry, trace, verifier.DefaultConfig())

	return New(Config{Router: router, Planner: p, Loop: loop, Verifier: v, ReplanAfterFailures: 2})
}

func TestRunSimpleTaskSkipsPlanning(t *testing.T) {
	e := newTestEngine(t, []string{"done"}, false)
	result := e.Run(context.Background(), "fix typo in README")

	if result.Decision.NeedsPlanning {
		t.Fatal("expected a simple task to skip planning")
	}
	if result.Plan != nil {
		t.Error("expected no plan to be built for a direct run")
	}
	if !result.AgentResult.Success {
		t.Errorf("expected success, got response %q", result.AgentResult.Response)
	}
}

func TestRunComplexTaskBuildsPlan(t *testing.T) {
	e := newTestEngine(t, []string{
		"1. do the first thing\n2. do the second thing",
		"step one done",
		"step two done",
	}, true)

	result := e.Run(context.Background(), "refactor the entire codebase across files")

	if !result.Decision.NeedsPlanning {
		t.Fatal("expected a complex task to trigger planning")
	}
	if result.Plan == nil {
		t.Fatal("expected a plan to be built")
	}
	if len(result.Plan.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(result.Plan.Steps))
	}
	for _, step := range result.Plan.Steps {
		if step.Status != planner.StepCompleted {
			t.Errorf("expected step %q to complete, got %s", step.Description, step.Status)
		}
	}
	if !result.AgentResult.Success {
		t.Errorf("expected final sub-task success, got %q", result.AgentResult.Response)
	}
}

func TestRunEmptyPlanFallsBackToDirect(t *testing.T) {
	e := newTestEngine(t, []string{"", "direct fallback response"}, true)

	result := e.Run(context.Background(), "restructure and redesign the whole system")

	if result.Plan != nil {
		t.Error("expected no plan to survive an empty parse")
	}
	if !result.AgentResult.Success {
		t.Errorf("expected the direct fallback run to succeed, got %q", result.AgentResult.Response)
	}
}

func TestRunSkipsVerificationWithoutFileChanges(t *testing.T) {
	e := newTestEngine(t, []string{"done, no files touched"}, false)
	result := e.Run(context.Background(), "explain this function")

	if result.Verification != nil {
		t.Error("expected no verification when no files were modified")
	}
}
