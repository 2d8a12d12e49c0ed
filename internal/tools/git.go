package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/driftcode/agentrunner/internal/agent"
)

// runGit executes a git subcommand inside workspace with a fixed timeout,
// git being unconditionally permitted regardless of the shell allowlist.
func runGit(ctx context.Context, workspace string, timeout time.Duration, args ...string) (string, string, int, bool) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = workspace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return stdout.String(), stderr.String(), -1, true
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	return stdout.String(), stderr.String(), exitCode, false
}

// GitStatusTool reports the working tree's status.
type GitStatusTool struct {
	workspace string
	timeout   time.Duration
}

func NewGitStatusTool(workspace string, timeout time.Duration) *GitStatusTool {
	return &GitStatusTool{workspace: workspace, timeout: orDefault(timeout, DefaultShellTimeout)}
}

func (t *GitStatusTool) Name() string            { return "git_status" }
func (t *GitStatusTool) Description() string     { return "Show the working tree status (git status --porcelain)." }
func (t *GitStatusTool) Schema() json.RawMessage { return schemaOf(map[string]any{}) }

func (t *GitStatusTool) Execute(ctx context.Context, input map[string]any) (agent.ToolResult, error) {
	stdout, stderr, code, timedOut := runGit(ctx, t.workspace, t.timeout, "status", "--porcelain=v1", "--branch")
	if timedOut {
		return fail("git status timed out"), nil
	}
	if code != 0 {
		return fail("%s", strings.TrimSpace(stderr)), nil
	}
	return ok(map[string]any{"status": stdout}), nil
}

// GitDiffTool shows unstaged/staged changes.
type GitDiffTool struct {
	workspace string
	timeout   time.Duration
}

func NewGitDiffTool(workspace string, timeout time.Duration) *GitDiffTool {
	return &GitDiffTool{workspace: workspace, timeout: orDefault(timeout, DefaultShellTimeout)}
}

func (t *GitDiffTool) Name() string        { return "git_diff" }
func (t *GitDiffTool) Description() string { return "Show a diff of working tree changes." }

func (t *GitDiffTool) Schema() json.RawMessage {
	return schemaOf(map[string]any{
		"staged": map[string]any{"type": "boolean", "description": "Diff the index instead of the working tree."},
		"path":   map[string]any{"type": "string", "description": "Limit the diff to this path."},
	})
}

func (t *GitDiffTool) Execute(ctx context.Context, input map[string]any) (agent.ToolResult, error) {
	args := []string{"diff"}
	if boolArg(input, "staged") {
		args = append(args, "--cached")
	}
	if path, _ := stringArg(input, "path"); path != "" {
		args = append(args, "--", path)
	}

	stdout, stderr, code, timedOut := runGit(ctx, t.workspace, t.timeout, args...)
	if timedOut {
		return fail("git diff timed out"), nil
	}
	if code != 0 {
		return fail("%s", strings.TrimSpace(stderr)), nil
	}
	return ok(map[string]any{"diff": stdout}), nil
}

// GitLogTool shows recent commit history.
type GitLogTool struct {
	workspace string
	timeout   time.Duration
}

func NewGitLogTool(workspace string, timeout time.Duration) *GitLogTool {
	return &GitLogTool{workspace: workspace, timeout: orDefault(timeout, DefaultShellTimeout)}
}

func (t *GitLogTool) Name() string        { return "git_log" }
func (t *GitLogTool) Description() string { return "Show recent commit history." }

func (t *GitLogTool) Schema() json.RawMessage {
	return schemaOf(map[string]any{
		"max_count": map[string]any{"type": "integer", "description": "Maximum commits to return (default 20).", "minimum": 1},
	})
}

func (t *GitLogTool) Execute(ctx context.Context, input map[string]any) (agent.ToolResult, error) {
	maxCount := intArg(input, "max_count", 20)
	stdout, stderr, code, timedOut := runGit(ctx, t.workspace, t.timeout,
		"log", "--max-count="+strconv.Itoa(maxCount), "--pretty=format:%H%x09%an%x09%ad%x09%s")
	if timedOut {
		return fail("git log timed out"), nil
	}
	if code != 0 {
		return fail("%s", strings.TrimSpace(stderr)), nil
	}

	type commit struct {
		Hash    string `json:"hash"`
		Author  string `json:"author"`
		Date    string `json:"date"`
		Subject string `json:"subject"`
	}
	var commits []commit
	for _, line := range strings.Split(stdout, "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			continue
		}
		commits = append(commits, commit{Hash: fields[0], Author: fields[1], Date: fields[2], Subject: fields[3]})
	}

	return ok(map[string]any{"commits": commits}), nil
}

// GitCommitTool stages all changes and commits them.
type GitCommitTool struct {
	workspace string
	timeout   time.Duration
}

func NewGitCommitTool(workspace string, timeout time.Duration) *GitCommitTool {
	return &GitCommitTool{workspace: workspace, timeout: orDefault(timeout, DefaultShellTimeout)}
}

func (t *GitCommitTool) Name() string        { return "git_commit" }
func (t *GitCommitTool) Description() string { return "Stage all changes and create a commit." }

func (t *GitCommitTool) Schema() json.RawMessage {
	return schemaOf(map[string]any{
		"message": map[string]any{"type": "string", "description": "Commit message."},
	}, "message")
}

func (t *GitCommitTool) Execute(ctx context.Context, input map[string]any) (agent.ToolResult, error) {
	message, _ := stringArg(input, "message")
	if strings.TrimSpace(message) == "" {
		return fail("message is required"), nil
	}

	if _, stderr, code, timedOut := runGit(ctx, t.workspace, t.timeout, "add", "-A"); timedOut {
		return fail("git add timed out"), nil
	} else if code != 0 {
		return fail("%s", strings.TrimSpace(stderr)), nil
	}

	stdout, stderr, code, timedOut := runGit(ctx, t.workspace, t.timeout, "commit", "-m", message)
	if timedOut {
		return fail("git commit timed out"), nil
	}
	if code != 0 {
		return fail("%s", strings.TrimSpace(stderr)), nil
	}

	return ok(map[string]any{"output": stdout}), nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
