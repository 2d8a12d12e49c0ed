// Package main provides the CLI entry point for the agent runtime.
//
// agentrunner wires the Complexity Router, Planner, Agent Loop, Task Cache,
// and Verifier into a single command: classify a task, run it (directly or
// behind a plan), verify anything it touched, and report the outcome.
//
// # Basic Usage
//
// Run a single task:
//
//	agentrunner "add input validation to the signup handler"
//
// Without a task argument, agentrunner reads one line at a time from stdin
// until EOF, running each as its own task.
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key, required.
//   - OPENAI_API_KEY: not read. The Task Cache is always built with the
//     deterministic hash-based embedder; no setting selects the OpenAI one.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftcode/agentrunner/internal/agent"
	"github.com/driftcode/agentrunner/internal/agent/providers"
	"github.com/driftcode/agentrunner/internal/cache"
	"github.com/driftcode/agentrunner/internal/config"
	"github.com/driftcode/agentrunner/internal/engine"
	"github.com/driftcode/agentrunner/internal/planner"
	"github.com/driftcode/agentrunner/internal/repomap"
	"github.com/driftcode/agentrunner/internal/routing"
	"github.com/driftcode/agentrunner/internal/tools"
	"github.com/driftcode/agentrunner/internal/verifier"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd builds the command tree, separated from main so tests can
// exercise flag parsing without touching os.Exit.
func buildRootCmd() *cobra.Command {
	var configPath string
	var verbose bool
	var workspace string

	rootCmd := &cobra.Command{
		Use:   "agentrunner [task]",
		Short: "Run coding tasks through the agent execution engine",
		Long: `agentrunner routes a task through a complexity-aware ReAct loop:
simple tasks run directly, complex ones are decomposed into a plan first.
Every run is cost- and iteration-budgeted, traced, and verified.`,
		Version:      fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			eng, closeFn, err := buildEngine(cfg, workspace)
			if err != nil {
				return fmt.Errorf("build engine: %w", err)
			}
			defer closeFn()

			if len(args) == 1 {
				return runOne(cmd, eng, workspace, args[0])
			}
			return runRepl(cmd, eng, workspace)
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "agentrunner.yaml", "path to the configuration file")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.Flags().StringVarP(&workspace, "workspace", "w", ".", "workspace root tools operate against")

	return rootCmd
}

// runOne executes a single task and exits non-zero (via the returned error)
// iff the run did not succeed.
func runOne(cmd *cobra.Command, eng *engine.Engine, workspace, task string) error {
	result := eng.Run(cmd.Context(), withRepoMapContext(workspace, task))
	printResult(cmd.OutOrStdout(), result)
	if !result.AgentResult.Success {
		return fmt.Errorf("task did not succeed: %s", result.AgentResult.Response)
	}
	return nil
}

// runRepl reads one task per line from stdin until EOF, running each in
// turn. The first failed task's error is returned after all input is
// consumed, matching runOne's exit-non-zero contract.
func runRepl(cmd *cobra.Command, eng *engine.Engine, workspace string) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	var firstErr error
	for scanner.Scan() {
		task := scanner.Text()
		if task == "" {
			continue
		}
		result := eng.Run(cmd.Context(), withRepoMapContext(workspace, task))
		printResult(cmd.OutOrStdout(), result)
		if !result.AgentResult.Success && firstErr == nil {
			firstErr = fmt.Errorf("task did not succeed: %s", result.AgentResult.Response)
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return firstErr
}

func printResult(w io.Writer, result engine.Result) {
	fmt.Fprintln(w, result.AgentResult.Response)
	if result.Verification != nil && !result.Verification.Passed {
		fmt.Fprintln(w, "verification failed:")
		for _, check := range result.Verification.Checks {
			if check.Status != "passed" {
				fmt.Fprintf(w, "  %s: %s\n", check.Name, check.Message)
			}
		}
	}
}

// buildEngine wires every collaborator per SPEC_FULL.md §11.3, from a loaded
// Config down to a ready-to-run Engine. The returned close function flushes
// and releases anything with a lifetime longer than a single request (today,
// just the Task Cache's database handle).
func buildEngine(cfg *config.Config, workspace string) (*engine.Engine, func(), error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	provider, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
		APIKey:       apiKey,
		DefaultModel: cfg.LLM.Model,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("anthropic provider: %w", err)
	}

	trace := agent.NewTraceRecorder("agentrunner", cfg.Trace.LogDir, nil)
	costAccountant := agent.NewCostAccountant(convertPricing(cfg.Cost.Pricing), cfg.Cost.BudgetPerTaskUSD, trace, nil)
	gateway := agent.NewLLMGateway(provider, costAccountant, trace, cfg.LLM.Model, cfg.LLM.MaxTokens, cfg.LLM.Temperature)

	registry := agent.NewToolRegistry()
	if err := tools.Register(registry, tools.RegisterConfig{
		Workspace:       workspace,
		MaxReadBytes:    int(cfg.Tools.MaxFileSize),
		MaxWriteBytes:   int(cfg.Tools.MaxFileSize),
		SandboxEnabled:  cfg.Tools.SandboxEnabled,
		AllowedCommands: cfg.Tools.AllowedCommands,
		ShellTimeout:    cfg.Tools.ShellTimeout,
	}); err != nil {
		return nil, nil, fmt.Errorf("register tools: %w", err)
	}

	taskCache, err := cache.NewCache(cache.Config{
		Path:       cfg.Cache.DBPath,
		Threshold:  cfg.Cache.SimilarityThreshold,
		MaxEntries: cfg.Cache.MaxEntries,
		Enabled:    cfg.Cache.Enabled,
	}, cache.NewDeterministicEmbedder(0), trace, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("task cache: %w", err)
	}

	scratchpad := agent.NewWorkingScratchpad(cfg.Memory.MaxWorkingItems)
	loopConfig := agent.LoopConfig{
		MaxToolIterations: cfg.LLM.MaxToolIterations,
		Model:             cfg.LLM.Model,
		MaxTokens:         cfg.LLM.MaxTokens,
	}
	loop := agent.NewAgentLoop(gateway, registry, costAccountant, trace, scratchpad, taskCache, loopConfig, nil)

	router := routing.NewRouter(cfg.Planner.ComplexityThreshold)
	plan := planner.NewPlanner(gateway, trace, cfg.Planner.MaxPlanSteps, cfg.LLM.MaxTokens)
	verify := verifier.NewVerifier(registry, trace, verifier.Config{
		SyntaxCheckEnabled: cfg.Critic.ASTCheck,
		LintEnabled:        cfg.Critic.RunLint,
		TestsEnabled:       cfg.Critic.RunTests,
	})

	eng := engine.New(engine.Config{
		Router:              router,
		Planner:             plan,
		Loop:                loop,
		Verifier:            verify,
		ReplanAfterFailures: cfg.Planner.ReplanAfterFailures,
	})

	return eng, func() { _ = taskCache.Close() }, nil
}

// convertPricing adapts config.ModelPricing (the YAML-decoded shape) to
// agent.ModelPricing (the CostAccountant's shape) — same fields, kept as
// distinct types so internal/config has no dependency on internal/agent.
func convertPricing(in map[string]config.ModelPricing) map[string]agent.ModelPricing {
	out := make(map[string]agent.ModelPricing, len(in))
	for model, p := range in {
		out[model] = agent.ModelPricing{InputPer1K: p.InputPer1K, OutputPer1K: p.OutputPer1K}
	}
	return out
}

// withRepoMapContext prepends a repo map overview of workspace to task, so
// the router and planner see the same file/symbol context a human would
// have open in an editor. A render failure (missing workspace, permissions)
// degrades to the bare task rather than failing the run.
func withRepoMapContext(workspace, task string) string {
	overview, err := repomap.Render(workspace, 0, 0)
	if err != nil {
		return task
	}
	return overview + "\n\n" + task
}
