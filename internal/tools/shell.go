package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	osexec "os/exec"
	"strings"
	"time"

	"github.com/driftcode/agentrunner/internal/agent"
)

// DefaultShellTimeout is the shell tool's default subprocess timeout.
const DefaultShellTimeout = 30 * time.Second

// DefaultMaxOutputBytes caps captured stdout/stderr per invocation.
const DefaultMaxOutputBytes = 64_000

// ShellConfig configures the shell tool's sandboxing and limits.
type ShellConfig struct {
	Workspace       string
	SandboxEnabled  bool
	AllowedCommands []string
	Timeout         time.Duration
	MaxOutputBytes  int
}

// ShellTool runs an allowlisted shell command inside the workspace.
type ShellTool struct {
	resolver  Resolver
	allowlist CommandAllowlist
	timeout   time.Duration
	maxOutput int
}

// NewShellTool builds the shell tool.
func NewShellTool(cfg ShellConfig) *ShellTool {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	maxOutput := cfg.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputBytes
	}
	return &ShellTool{
		resolver:  Resolver{Root: cfg.Workspace},
		allowlist: NewCommandAllowlist(cfg.SandboxEnabled, cfg.AllowedCommands),
		timeout:   timeout,
		maxOutput: maxOutput,
	}
}

func (t *ShellTool) Name() string        { return "shell" }
func (t *ShellTool) Description() string { return "Run a shell command in the workspace, subject to the configured command allowlist and timeout." }

func (t *ShellTool) Schema() json.RawMessage {
	return schemaOf(map[string]any{
		"command":         map[string]any{"type": "string", "description": "Shell command to execute."},
		"cwd":             map[string]any{"type": "string", "description": "Working directory, relative to the workspace."},
		"timeout_seconds": map[string]any{"type": "integer", "description": "Override the default timeout, in seconds.", "minimum": 0},
	}, "command")
}

// Execute runs command through /bin/sh -c, subject to the allowlist and
// timeout. An out-of-allowlist command never spawns a process.
func (t *ShellTool) Execute(ctx context.Context, input map[string]any) (agent.ToolResult, error) {
	command, _ := stringArg(input, "command")
	command = strings.TrimSpace(command)
	if command == "" {
		return fail("command is required"), nil
	}

	if allowed, msg := t.allowlist.Check(command); !allowed {
		return fail("%s", msg), nil
	}

	dir := ""
	if cwd, _ := stringArg(input, "cwd"); cwd != "" {
		resolved, err := t.resolver.Resolve(cwd)
		if err != nil {
			return fail("%s", err.Error()), nil
		}
		dir = resolved
	} else if resolved, err := t.resolver.Resolve("."); err == nil {
		dir = resolved
	}

	timeout := t.timeout
	if secs := intArg(input, "timeout_seconds", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := osexec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitWriter{buf: &stdout, max: t.maxOutput}
	cmd.Stderr = &limitWriter{buf: &stderr, max: t.maxOutput}

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return fail("%s", fmt.Sprintf("command timed out after %s", timeout)), nil
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*osexec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return ok(map[string]any{
		"command":     command,
		"exit_code":   exitCode,
		"stdout":      stdout.String(),
		"stderr":      stderr.String(),
		"duration_ms": duration.Milliseconds(),
	}), nil
}

type limitWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.max > 0 && w.buf.Len() >= w.max {
		return len(p), nil
	}
	remaining := w.max - w.buf.Len()
	if w.max > 0 && len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}
