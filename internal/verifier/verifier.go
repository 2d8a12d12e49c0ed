// Package verifier implements the Verifier: a sequential check pipeline
// over a set of modified files, run after the Agent Loop reports success.
// Only a syntax-check failure stops the pipeline early.
package verifier

import (
	"context"

	"github.com/driftcode/agentrunner/internal/agent"
)

// CheckStatus is the closed outcome of a single check.
type CheckStatus string

const (
	StatusPassed  CheckStatus = "passed"
	StatusFailed  CheckStatus = "failed"
	StatusSkipped CheckStatus = "skipped"
)

// CheckResult is the outcome of one verification phase.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Details string
}

// VerificationResult aggregates the whole pipeline's outcome.
type VerificationResult struct {
	Checks []CheckResult
	Passed bool
}

// Config toggles each phase and supplies the test path used by run_tests.
type Config struct {
	SyntaxCheckEnabled bool
	LintEnabled        bool
	TestsEnabled       bool
	TestPath           string
}

// DefaultConfig enables every phase with an empty (tool-default) test path.
func DefaultConfig() Config {
	return Config{SyntaxCheckEnabled: true, LintEnabled: true, TestsEnabled: true}
}

// Verifier runs the fixed three-phase pipeline against the Tool Registry.
type Verifier struct {
	registry *agent.ToolRegistry
	trace    *agent.TraceRecorder
	config   Config
}

// NewVerifier builds a Verifier around a registry and optional trace
// recorder.
func NewVerifier(registry *agent.ToolRegistry, trace *agent.TraceRecorder, config Config) *Verifier {
	return &Verifier{registry: registry, trace: trace, config: config}
}

// Verify runs syntax check, lint, then tests, in that fixed order, over
// files. Syntax check failing on any file stops the pipeline immediately —
// lint and tests are not attempted for that run.
func (v *Verifier) Verify(ctx context.Context, files []string) VerificationResult {
	var checks []CheckResult

	syntaxResult := v.runSyntaxCheck(ctx, files)
	checks = append(checks, syntaxResult)
	if syntaxResult.Status == StatusFailed {
		return v.finish(checks)
	}

	checks = append(checks, v.runLint(ctx, files))
	checks = append(checks, v.runTests(ctx))

	return v.finish(checks)
}

func (v *Verifier) finish(checks []CheckResult) VerificationResult {
	passed := true
	for _, c := range checks {
		if c.Status == StatusFailed {
			passed = false
		}
		if c.Status == StatusFailed && v.trace != nil {
			v.trace.Record(agent.EventCriticCheck, map[string]any{
				"name":    c.Name,
				"status":  string(c.Status),
				"message": c.Message,
			})
		}
	}

	if v.trace != nil {
		v.trace.Record(agent.EventCriticCheck, map[string]any{
			"summary":     true,
			"passed":      passed,
			"check_count": len(checks),
		})
	}

	return VerificationResult{Checks: checks, Passed: passed}
}

func (v *Verifier) runSyntaxCheck(ctx context.Context, files []string) CheckResult {
	if !v.config.SyntaxCheckEnabled {
		return CheckResult{Name: "syntax_check", Status: StatusSkipped, Message: "Disabled"}
	}
	return v.runPerFile(ctx, "syntax_check", "ast_check", files)
}

func (v *Verifier) runLint(ctx context.Context, files []string) CheckResult {
	if !v.config.LintEnabled {
		return CheckResult{Name: "lint", Status: StatusSkipped, Message: "Disabled"}
	}
	return v.runPerFile(ctx, "lint", "lint", files)
}

// runPerFile invokes toolName once per file, failing fast on the first
// failure and reporting that file's error as the check's message.
func (v *Verifier) runPerFile(ctx context.Context, checkName, toolName string, files []string) CheckResult {
	var details string
	for _, f := range files {
		result := v.registry.Execute(ctx, toolName, map[string]any{"path": f})
		if !result.Success {
			return CheckResult{
				Name:    checkName,
				Status:  StatusFailed,
				Message: f + ": " + result.Error,
				Details: result.Output,
			}
		}
		details += result.Output
	}
	return CheckResult{Name: checkName, Status: StatusPassed, Details: details}
}

func (v *Verifier) runTests(ctx context.Context) CheckResult {
	if !v.config.TestsEnabled {
		return CheckResult{Name: "tests", Status: StatusSkipped, Message: "Disabled"}
	}

	result := v.registry.Execute(ctx, "run_tests", map[string]any{"path": v.config.TestPath})
	if !result.Success {
		return CheckResult{Name: "tests", Status: StatusFailed, Message: result.Error, Details: result.Output}
	}
	return CheckResult{Name: "tests", Status: StatusPassed, Details: result.Output}
}
