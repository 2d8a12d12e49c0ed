package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func withAPIKey(t *testing.T) {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
}

func TestLoadFillsDefaults(t *testing.T) {
	withAPIKey(t)
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "llm:\n  model: claude-sonnet-4-5\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LLM.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", cfg.LLM.MaxTokens)
	}
	if cfg.LLM.MaxToolIterations != 25 {
		t.Errorf("MaxToolIterations = %d, want 25", cfg.LLM.MaxToolIterations)
	}
	if cfg.LLM.Temperature != 0.0 {
		t.Errorf("Temperature = %v, want 0.0", cfg.LLM.Temperature)
	}
	if cfg.Planner.ComplexityThreshold != 0.6 {
		t.Errorf("ComplexityThreshold = %v, want 0.6", cfg.Planner.ComplexityThreshold)
	}
	if cfg.Planner.MaxPlanSteps != 10 {
		t.Errorf("MaxPlanSteps = %d, want 10", cfg.Planner.MaxPlanSteps)
	}
	if cfg.Planner.ReplanAfterFailures != 2 {
		t.Errorf("ReplanAfterFailures = %d, want 2", cfg.Planner.ReplanAfterFailures)
	}
	if !cfg.Tools.SandboxEnabled {
		t.Error("expected SandboxEnabled to default to true")
	}
	if cfg.Tools.MaxFileSize != 1<<20 {
		t.Errorf("MaxFileSize = %d, want 1MiB", cfg.Tools.MaxFileSize)
	}
	if len(cfg.Tools.AllowedCommands) == 0 {
		t.Error("expected a default allowed command list")
	}
	if cfg.Memory.MaxWorkingItems != 20 {
		t.Errorf("MaxWorkingItems = %d, want 20", cfg.Memory.MaxWorkingItems)
	}
	if !cfg.Critic.ASTCheck || !cfg.Critic.RunLint || !cfg.Critic.RunTests || !cfg.Critic.RubricEnabled {
		t.Error("expected every critic phase to default to enabled")
	}
	if cfg.Cache.SimilarityThreshold != 0.85 {
		t.Errorf("SimilarityThreshold = %v, want 0.85", cfg.Cache.SimilarityThreshold)
	}
	if cfg.Cache.MaxEntries != 1000 {
		t.Errorf("MaxEntries = %d, want 1000", cfg.Cache.MaxEntries)
	}
	if !cfg.Cache.Enabled {
		t.Error("expected Cache.Enabled to default to true")
	}
	if cfg.Cost.BudgetPerTaskUSD != 0.50 {
		t.Errorf("BudgetPerTaskUSD = %v, want 0.50", cfg.Cost.BudgetPerTaskUSD)
	}
	if cfg.Trace.LogDir != "traces" {
		t.Errorf("LogDir = %q, want traces", cfg.Trace.LogDir)
	}
	if !cfg.Trace.Enabled {
		t.Error("expected Trace.Enabled to default to true")
	}
}

func TestLoadRespectsExplicitFalseCriticFlags(t *testing.T) {
	withAPIKey(t)
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
llm:
  model: claude-sonnet-4-5
critic:
  ast_check: true
  run_lint: false
  run_tests: true
  rubric_enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Critic.RunLint {
		t.Error("expected explicit run_lint: false to be respected")
	}
	if cfg.Critic.RubricEnabled {
		t.Error("expected explicit rubric_enabled: false to be respected")
	}
	if !cfg.Critic.ASTCheck || !cfg.Critic.RunTests {
		t.Error("expected the remaining flags to stay true")
	}
}

func TestLoadRespectsExplicitSandboxDisabled(t *testing.T) {
	withAPIKey(t)
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
llm:
  model: claude-sonnet-4-5
tools:
  sandbox_enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tools.SandboxEnabled {
		t.Error("expected explicit sandbox_enabled: false to be respected")
	}
}

func TestLoadFailsWithoutAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "llm:\n  model: claude-sonnet-4-5\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to fail without ANTHROPIC_API_KEY set")
	}
}

func TestLoadFailsWithoutModel(t *testing.T) {
	withAPIKey(t)
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "llm:\n  max_tokens: 2048\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to fail without llm.model set")
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	withAPIKey(t)
	dir := t.TempDir()
	writeConfigFile(t, dir, "base.yaml", `
llm:
  model: claude-sonnet-4-5
cost:
  budget_per_task_usd: 1.25
`)
	path := writeConfigFile(t, dir, "config.yaml", `
$include: base.yaml
planner:
  max_plan_steps: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Model != "claude-sonnet-4-5" {
		t.Errorf("Model = %q, want claude-sonnet-4-5 (from included file)", cfg.LLM.Model)
	}
	if cfg.Cost.BudgetPerTaskUSD != 1.25 {
		t.Errorf("BudgetPerTaskUSD = %v, want 1.25 (from included file)", cfg.Cost.BudgetPerTaskUSD)
	}
	if cfg.Planner.MaxPlanSteps != 5 {
		t.Errorf("MaxPlanSteps = %d, want 5 (from the including file)", cfg.Planner.MaxPlanSteps)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	withAPIKey(t)
	dir := t.TempDir()
	writeConfigFile(t, dir, "a.yaml", "$include: b.yaml\n")
	path := writeConfigFile(t, dir, "b.yaml", "$include: a.yaml\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to detect the include cycle")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	withAPIKey(t)
	t.Setenv("TEST_MODEL_NAME", "claude-opus-4-6")
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "llm:\n  model: ${TEST_MODEL_NAME}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Model != "claude-opus-4-6" {
		t.Errorf("Model = %q, want expanded env var value", cfg.LLM.Model)
	}
}
