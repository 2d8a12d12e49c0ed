package tools

import (
	"time"

	"github.com/driftcode/agentrunner/internal/agent"
)

// RegisterConfig configures every default tool adapter Register wires into
// a Tool Registry.
type RegisterConfig struct {
	Workspace       string
	MaxReadBytes    int
	MaxWriteBytes   int
	SandboxEnabled  bool
	AllowedCommands []string
	ShellTimeout    time.Duration
	TestTimeout     time.Duration
	ASTCheckCommand string
	ASTCheckArgs    []string
	LintCommand     string
	LintArgs        []string
	TestCommand     string
	TestArgs        []string
}

// Register builds and registers all thirteen mandatory tools against reg.
func Register(reg *agent.ToolRegistry, cfg RegisterConfig) error {
	tools := []agent.Tool{
		NewReadFileTool(cfg.Workspace, cfg.MaxReadBytes),
		NewWriteFileTool(cfg.Workspace, cfg.MaxWriteBytes),
		NewListDirectoryTool(cfg.Workspace),
		NewGlobTool(cfg.Workspace),
		NewGrepTool(cfg.Workspace),
		NewShellTool(ShellConfig{
			Workspace:       cfg.Workspace,
			SandboxEnabled:  cfg.SandboxEnabled,
			AllowedCommands: cfg.AllowedCommands,
			Timeout:         cfg.ShellTimeout,
		}),
		NewGitStatusTool(cfg.Workspace, cfg.ShellTimeout),
		NewGitDiffTool(cfg.Workspace, cfg.ShellTimeout),
		NewGitLogTool(cfg.Workspace, cfg.ShellTimeout),
		NewGitCommitTool(cfg.Workspace, cfg.ShellTimeout),
		NewASTCheckTool(cfg.Workspace, cfg.ASTCheckCommand, cfg.ASTCheckArgs, cfg.ShellTimeout),
		NewLintTool(cfg.Workspace, cfg.LintCommand, cfg.LintArgs, cfg.ShellTimeout),
		NewRunTestsTool(cfg.Workspace, cfg.TestCommand, cfg.TestArgs, cfg.TestTimeout),
	}

	for _, tool := range tools {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
