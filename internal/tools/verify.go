package tools

import (
	"bytes"
	"context"
	"encoding/json"
	osexec "os/exec"
	"strings"
	"time"

	"github.com/driftcode/agentrunner/internal/agent"
)

// DefaultTestTimeout is run_tests' default timeout — longer than the shell
// tool's, since full test suites routinely run past 30s.
const DefaultTestTimeout = 120 * time.Second

func runCommand(ctx context.Context, workspace string, timeout time.Duration, name string, args ...string) (stdout, stderr string, exitCode int, timedOut bool) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := osexec.CommandContext(runCtx, name, args...)
	cmd.Dir = workspace

	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return out.String(), errBuf.String(), -1, true
	}
	if err != nil {
		if exitErr, ok := err.(*osexec.ExitError); ok {
			return out.String(), errBuf.String(), exitErr.ExitCode(), false
		}
		return out.String(), errBuf.String(), -1, false
	}
	return out.String(), errBuf.String(), 0, false
}

// ASTCheckTool wraps a configurable syntax-checking command, defaulting to
// gofmt -l so a non-zero exit or any listed file means a syntax problem.
type ASTCheckTool struct {
	workspace string
	command   string
	args      []string
	timeout   time.Duration
}

// NewASTCheckTool builds the ast_check tool. An empty command defaults to
// "gofmt" with a "-l" listing flag.
func NewASTCheckTool(workspace, command string, args []string, timeout time.Duration) *ASTCheckTool {
	if command == "" {
		command = "gofmt"
		args = []string{"-l"}
	}
	return &ASTCheckTool{workspace: workspace, command: command, args: args, timeout: orDefault(timeout, DefaultShellTimeout)}
}

func (t *ASTCheckTool) Name() string        { return "ast_check" }
func (t *ASTCheckTool) Description() string { return "Check a source file for syntax errors." }

func (t *ASTCheckTool) Schema() json.RawMessage {
	return schemaOf(map[string]any{
		"path": map[string]any{"type": "string", "description": "Path to the source file to check, relative to the workspace."},
	}, "path")
}

func (t *ASTCheckTool) Execute(ctx context.Context, input map[string]any) (agent.ToolResult, error) {
	path, _ := stringArg(input, "path")
	if strings.TrimSpace(path) == "" {
		return fail("path is required"), nil
	}

	args := append(append([]string{}, t.args...), path)
	stdout, stderr, code, timedOut := runCommand(ctx, t.workspace, t.timeout, t.command, args...)
	if timedOut {
		return fail("ast_check timed out"), nil
	}

	// gofmt -l prints the file's name to stdout when it has syntax/format
	// problems and nothing when it's clean; a non-zero exit is a harder
	// failure (e.g. the file doesn't parse at all).
	if code != 0 {
		return fail("%s", firstNonEmpty(stderr, stdout)), nil
	}
	if strings.TrimSpace(stdout) != "" {
		return fail("%s: syntax/format check failed", path), nil
	}

	return ok(map[string]any{"path": path}), nil
}

// LintTool wraps a configurable lint command.
type LintTool struct {
	workspace string
	command   string
	args      []string
	timeout   time.Duration
}

// NewLintTool builds the lint tool. An empty command defaults to
// "go vet".
func NewLintTool(workspace, command string, args []string, timeout time.Duration) *LintTool {
	if command == "" {
		command = "go"
		args = []string{"vet"}
	}
	return &LintTool{workspace: workspace, command: command, args: args, timeout: orDefault(timeout, DefaultShellTimeout)}
}

func (t *LintTool) Name() string        { return "lint" }
func (t *LintTool) Description() string { return "Lint a source file." }

func (t *LintTool) Schema() json.RawMessage {
	return schemaOf(map[string]any{
		"path": map[string]any{"type": "string", "description": "Path to the source file to lint, relative to the workspace."},
	}, "path")
}

func (t *LintTool) Execute(ctx context.Context, input map[string]any) (agent.ToolResult, error) {
	path, _ := stringArg(input, "path")
	if strings.TrimSpace(path) == "" {
		return fail("path is required"), nil
	}

	args := append(append([]string{}, t.args...), path)
	stdout, stderr, code, timedOut := runCommand(ctx, t.workspace, t.timeout, t.command, args...)
	if timedOut {
		return fail("lint timed out"), nil
	}
	if code != 0 {
		return fail("%s", firstNonEmpty(stderr, stdout)), nil
	}

	return ok(map[string]any{"path": path, "output": stdout}), nil
}

// RunTestsTool wraps a configurable test runner command with the spec's
// longer default timeout.
type RunTestsTool struct {
	workspace string
	command   string
	args      []string
	timeout   time.Duration
}

// NewRunTestsTool builds the run_tests tool. An empty command defaults to
// "go test ./...".
func NewRunTestsTool(workspace, command string, args []string, timeout time.Duration) *RunTestsTool {
	if command == "" {
		command = "go"
		args = []string{"test", "./..."}
	}
	return &RunTestsTool{workspace: workspace, command: command, args: args, timeout: orDefault(timeout, DefaultTestTimeout)}
}

func (t *RunTestsTool) Name() string        { return "run_tests" }
func (t *RunTestsTool) Description() string { return "Run the project's test suite, optionally scoped to a path." }

func (t *RunTestsTool) Schema() json.RawMessage {
	return schemaOf(map[string]any{
		"path": map[string]any{"type": "string", "description": "Test path or package pattern to run (default: the tool's configured default)."},
	})
}

func (t *RunTestsTool) Execute(ctx context.Context, input map[string]any) (agent.ToolResult, error) {
	args := append([]string{}, t.args...)
	if path, _ := stringArg(input, "path"); path != "" {
		args = replaceLastPathArg(args, path)
	}

	stdout, stderr, code, timedOut := runCommand(ctx, t.workspace, t.timeout, t.command, args...)
	if timedOut {
		return fail("run_tests timed out"), nil
	}
	if code != 0 {
		return fail("%s", firstNonEmpty(stdout, stderr)), nil
	}

	return ok(map[string]any{"output": stdout}), nil
}

// replaceLastPathArg substitutes a caller-supplied test path for the
// configured default's final argument (typically "./...").
func replaceLastPathArg(args []string, path string) []string {
	if len(args) == 0 {
		return []string{path}
	}
	out := append([]string{}, args[:len(args)-1]...)
	return append(out, path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return "command failed"
}
