// Package engine wires the Complexity Router, Planner, Agent Loop, and
// Verifier into spec.md §4.9's routing-and-planning integration: a simple
// task runs the Agent Loop directly, a complex one is first decomposed
// into an ExecutionPlan whose steps each run as their own sub-task.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/driftcode/agentrunner/internal/agent"
	"github.com/driftcode/agentrunner/internal/planner"
	"github.com/driftcode/agentrunner/internal/routing"
	"github.com/driftcode/agentrunner/internal/verifier"
)

// Result is the outcome of one top-level Run call: the final AgentResult
// (the last sub-task's result when a plan was used), the routing decision
// that chose the path, the plan if one was built, and the verification
// outcome if any file was modified.
type Result struct {
	Decision     routing.RoutingDecision
	Plan         *planner.ExecutionPlan
	AgentResult  agent.AgentResult
	Verification *verifier.VerificationResult
}

// Engine is the top-level entry point a CLI or service calls once per task.
type Engine struct {
	router              *routing.Router
	planner             *planner.Planner
	loop                *agent.AgentLoop
	verifier            *verifier.Verifier
	replanAfterFailures int
	logger              *slog.Logger
}

// Config bundles the collaborators and the replan threshold Run needs.
type Config struct {
	Router              *routing.Router
	Planner             *planner.Planner
	Loop                *agent.AgentLoop
	Verifier            *verifier.Verifier
	ReplanAfterFailures int
	Logger              *slog.Logger
}

// New builds an Engine. ReplanAfterFailures falls back to 2 (spec.md §6's
// default) when non-positive.
func New(cfg Config) *Engine {
	replanAfter := cfg.ReplanAfterFailures
	if replanAfter <= 0 {
		replanAfter = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		router:              cfg.Router,
		planner:             cfg.Planner,
		loop:                cfg.Loop,
		verifier:            cfg.Verifier,
		replanAfterFailures: replanAfter,
		logger:              logger,
	}
}

// Run classifies task, executes it (directly or via a plan), and verifies
// any files the run touched.
func (e *Engine) Run(ctx context.Context, task string) Result {
	decision := e.router.Route(task)

	if !decision.NeedsPlanning {
		res := e.loop.Run(ctx, task, "")
		return Result{Decision: decision, AgentResult: res, Verification: e.verifyIfNeeded(ctx, res)}
	}

	plan, err := e.planner.CreatePlan(ctx, task, "")
	if err != nil || len(plan.Steps) == 0 {
		e.logger.Warn("planner produced an empty plan, falling back to direct execution", "task", task, "error", err)
		res := e.loop.Run(ctx, task, "")
		return Result{Decision: decision, AgentResult: res, Verification: e.verifyIfNeeded(ctx, res)}
	}

	finalResult := e.runPlan(ctx, plan)
	return Result{Decision: decision, Plan: plan, AgentResult: finalResult, Verification: e.verifyIfNeeded(ctx, finalResult)}
}

// runPlan executes an ExecutionPlan step by step, replanning once after
// replanAfterFailures consecutive step failures. A second replan failure
// terminates the task as failed, per spec.md §4.9.
func (e *Engine) runPlan(ctx context.Context, plan *planner.ExecutionPlan) agent.AgentResult {
	var lastResult agent.AgentResult
	consecutiveFailures := 0
	hasReplanned := false

	for !plan.IsComplete() {
		step := plan.CurrentStep()
		if step == nil {
			break
		}
		step.Status = planner.StepInProgress

		lastResult = e.loop.Run(ctx, step.Description, plan.ToContextString())

		if lastResult.Success {
			step.Status = planner.StepCompleted
			consecutiveFailures = 0
			continue
		}

		step.Status = planner.StepFailed
		consecutiveFailures++

		if consecutiveFailures < e.replanAfterFailures {
			continue
		}

		if hasReplanned {
			lastResult.Success = false
			lastResult.Response = fmt.Sprintf("Task stopped: plan failed after replanning (%s)", plan.ProgressSummary())
			return lastResult
		}

		replanned, err := e.planner.Replan(ctx, plan, "")
		hasReplanned = true
		consecutiveFailures = 0
		if err != nil || len(replanned.Steps) == 0 {
			lastResult.Success = false
			lastResult.Response = fmt.Sprintf("Task stopped: replan failed (%s)", plan.ProgressSummary())
			return lastResult
		}
		plan = replanned
	}

	return lastResult
}

func (e *Engine) verifyIfNeeded(ctx context.Context, result agent.AgentResult) *verifier.VerificationResult {
	if e.verifier == nil || !result.Success || len(result.FilesModified) == 0 {
		return nil
	}
	out := e.verifier.Verify(ctx, result.FilesModified)
	return &out
}
