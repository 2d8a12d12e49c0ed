// Package config loads and defaults the agent runtime's configuration:
// one sub-struct per spec.md §6 section, assembled from a YAML file (with
// $include support) plus environment variable expansion.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// LLMConfig controls the model the gateway talks to and the loop's
// per-task tool-call ceiling.
type LLMConfig struct {
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float64 `yaml:"temperature"`
	MaxToolIterations int     `yaml:"max_tool_iterations"`
}

// PlannerConfig controls the complexity router and the planning loop.
type PlannerConfig struct {
	ComplexityThreshold float64 `yaml:"complexity_threshold"`
	MaxPlanSteps        int     `yaml:"max_plan_steps"`
	ReplanAfterFailures int     `yaml:"replan_after_failures"`
}

// ToolsConfig controls the tool adapters' sandboxing and limits.
type ToolsConfig struct {
	ShellTimeout    time.Duration `yaml:"shell_timeout"`
	MaxFileSize     int64         `yaml:"max_file_size"`
	SandboxEnabled  bool          `yaml:"sandbox_enabled"`
	AllowedCommands []string      `yaml:"allowed_commands"`
}

// MemoryConfig bounds the Working Scratchpad.
type MemoryConfig struct {
	MaxWorkingItems int `yaml:"max_working_items"`
}

// CriticConfig toggles each phase of the verification pipeline.
type CriticConfig struct {
	ASTCheck      bool `yaml:"ast_check"`
	RunLint       bool `yaml:"run_lint"`
	RunTests      bool `yaml:"run_tests"`
	RubricEnabled bool `yaml:"rubric_enabled"`
}

// CacheConfig controls the Task Cache.
type CacheConfig struct {
	DBPath              string  `yaml:"db_path"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	Enabled             bool    `yaml:"enabled"`
	MaxEntries          int     `yaml:"max_entries"`
}

// ModelPricing is the per-1K-token input/output cost for one model.
type ModelPricing struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// CostConfig controls the per-task budget and the pricing table the Cost
// Accountant uses to convert token counts into dollars.
type CostConfig struct {
	BudgetPerTaskUSD float64                 `yaml:"budget_per_task_usd"`
	Pricing          map[string]ModelPricing `yaml:"pricing"`
}

// TraceConfig controls trace persistence.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogDir  string `yaml:"log_dir"`
}

// Config aggregates every configuration section spec.md §6 defines.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Planner PlannerConfig `yaml:"planner"`
	Tools   ToolsConfig   `yaml:"tools"`
	Memory  MemoryConfig  `yaml:"memory"`
	Critic  CriticConfig  `yaml:"critic"`
	Cache   CacheConfig   `yaml:"cache"`
	Cost    CostConfig    `yaml:"cost"`
	Trace   TraceConfig   `yaml:"trace"`
}

// Load reads path (and any $include-d files), expands environment
// variables, fills defaults, and validates the result. A missing
// ANTHROPIC_API_KEY is treated as fatal per spec.md §6, since the loop
// cannot make a single LLM call without it.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg, raw)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// sectionKeySet returns the set of keys present under raw[section], so a
// bool field's spec default (often true) can be applied only when the
// caller left it unspecified, never overriding an explicit false.
func sectionKeySet(raw map[string]any, section string) map[string]bool {
	keys := map[string]bool{}
	sub, ok := raw[section].(map[string]any)
	if !ok {
		return keys
	}
	for key := range sub {
		keys[key] = true
	}
	return keys
}

func applyDefaults(cfg *Config, raw map[string]any) {
	applyLLMDefaults(&cfg.LLM)
	applyPlannerDefaults(&cfg.Planner)
	applyToolsDefaults(&cfg.Tools, sectionKeySet(raw, "tools"))
	applyMemoryDefaults(&cfg.Memory)
	applyCriticDefaults(&cfg.Critic, sectionKeySet(raw, "critic"))
	applyCacheDefaults(&cfg.Cache, sectionKeySet(raw, "cache"))
	applyCostDefaults(&cfg.Cost)
	applyTraceDefaults(&cfg.Trace, sectionKeySet(raw, "trace"))
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.MaxToolIterations == 0 {
		cfg.MaxToolIterations = 25
	}
	// Temperature's zero value (0.0) is already the spec default, so there
	// is nothing to fill in here.
}

func applyPlannerDefaults(cfg *PlannerConfig) {
	if cfg.ComplexityThreshold == 0 {
		cfg.ComplexityThreshold = 0.6
	}
	if cfg.MaxPlanSteps == 0 {
		cfg.MaxPlanSteps = 10
	}
	if cfg.ReplanAfterFailures == 0 {
		cfg.ReplanAfterFailures = 2
	}
}

func applyToolsDefaults(cfg *ToolsConfig, present map[string]bool) {
	if cfg.ShellTimeout == 0 {
		cfg.ShellTimeout = 30 * time.Second
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 1 << 20 // 1 MiB
	}
	if len(cfg.AllowedCommands) == 0 {
		cfg.AllowedCommands = append([]string{}, DefaultAllowedShellCommands...)
	}
	if !present["sandbox_enabled"] {
		cfg.SandboxEnabled = true
	}
}

// DefaultAllowedShellCommands mirrors internal/tools' default allowlist so
// config.Load and tools.Register agree on "no commands configured" without
// either package importing the other.
var DefaultAllowedShellCommands = []string{"ls", "cat", "echo", "pwd", "go", "gofmt", "golangci-lint"}

func applyMemoryDefaults(cfg *MemoryConfig) {
	if cfg.MaxWorkingItems == 0 {
		cfg.MaxWorkingItems = 20
	}
}

func applyCriticDefaults(cfg *CriticConfig, present map[string]bool) {
	if !present["ast_check"] {
		cfg.ASTCheck = true
	}
	if !present["run_lint"] {
		cfg.RunLint = true
	}
	if !present["run_tests"] {
		cfg.RunTests = true
	}
	if !present["rubric_enabled"] {
		cfg.RubricEnabled = true
	}
}

func applyCacheDefaults(cfg *CacheConfig, present map[string]bool) {
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = 0.85
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = 1000
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = "task_cache.db"
	}
	if !present["enabled"] {
		cfg.Enabled = true
	}
}

func applyCostDefaults(cfg *CostConfig) {
	if cfg.BudgetPerTaskUSD == 0 {
		cfg.BudgetPerTaskUSD = 0.50
	}
}

func applyTraceDefaults(cfg *TraceConfig, present map[string]bool) {
	if strings.TrimSpace(cfg.LogDir) == "" {
		cfg.LogDir = "traces"
	}
	if !present["enabled"] {
		cfg.Enabled = true
	}
}

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		return fmt.Errorf("llm.model is required")
	}
	if strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")) == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}
	if cfg.Planner.ComplexityThreshold < 0 || cfg.Planner.ComplexityThreshold > 1 {
		return fmt.Errorf("planner.complexity_threshold must be between 0 and 1")
	}
	if cfg.Cache.SimilarityThreshold < 0 || cfg.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache.similarity_threshold must be between 0 and 1")
	}
	if cfg.Cost.BudgetPerTaskUSD <= 0 {
		return fmt.Errorf("cost.budget_per_task_usd must be positive")
	}
	return nil
}
