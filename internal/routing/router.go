// Package routing implements the Complexity Router: a pure, heuristic
// classifier over a raw task string that decides whether a task should run
// as a single direct Agent Loop call or be handed to the Planner first.
package routing

import (
	"fmt"
	"regexp"
	"strings"
)

// Complexity is the router's closed classification.
type Complexity string

const (
	Simple  Complexity = "simple"
	Complex Complexity = "complex"
)

const baselineScore = 0.5

var complexKeywords = []string{
	"refactor", "migrate", "restructure", "redesign", "overhaul",
	"add feature", "implement", "build", "create new",
	"across files", "multiple files", "entire codebase",
	"test suite", "end to end", "integration",
	"optimize", "performance", "benchmark",
}

var simpleKeywords = []string{
	"fix typo", "rename", "add import", "remove unused",
	"update version", "change value", "read file",
	"what is", "explain", "show me", "find",
}

var multiStepCues = []string{"then", "after that", "next", "also", "finally"}

var fileTokenPattern = regexp.MustCompile(`\b[\w./-]+/[\w./-]*\.[A-Za-z0-9]+\b`)

// RoutingDecision is the router's output: a classification, the numeric
// score and confidence behind it, and a human-readable explanation.
type RoutingDecision struct {
	Complexity    Complexity
	Score         float64
	Confidence    float64
	Reason        string
	NeedsPlanning bool
}

// Router classifies tasks with a configurable threshold.
type Router struct {
	threshold float64
}

// DefaultThreshold is the score at or above which a task is classified
// complex.
const DefaultThreshold = 0.6

// NewRouter builds a Router. A non-positive threshold falls back to
// DefaultThreshold.
func NewRouter(threshold float64) *Router {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Router{threshold: threshold}
}

// Route classifies task with additive scoring from a 0.5 baseline: +0.30 per
// distinct complex keyword, -0.30 per distinct simple keyword, +0.20 above 50
// words or -0.20 below 10, +0.20 for three or more file paths, +0.15 per
// multi-step cue, clamped to [0, 1]. Route is a pure function: it has no side
// effects and the same input always yields the same output.
func (r *Router) Route(task string) RoutingDecision {
	score := baselineScore
	var reasons []string

	lower := strings.ToLower(task)

	complexMatches := countDistinctKeywords(lower, complexKeywords)
	if complexMatches > 0 {
		score += 0.30 * float64(complexMatches)
		reasons = append(reasons, fmt.Sprintf("Complex keywords (%d)", complexMatches))
	}

	simpleMatches := countDistinctKeywords(lower, simpleKeywords)
	if simpleMatches > 0 {
		score -= 0.30 * float64(simpleMatches)
		reasons = append(reasons, fmt.Sprintf("Simple keywords (%d)", simpleMatches))
	}

	wordCount := len(strings.Fields(task))
	if wordCount > 50 {
		score += 0.20
		reasons = append(reasons, "Long task description")
	} else if wordCount < 10 && wordCount > 0 {
		score -= 0.20
		reasons = append(reasons, "Short task description")
	}

	fileTokens := fileTokenPattern.FindAllString(task, -1)
	if len(fileTokens) >= 3 {
		score += 0.20
		reasons = append(reasons, "Multiple file references")
	}

	cueMatches := countOccurrences(lower, multiStepCues)
	if cueMatches > 0 {
		score += 0.15 * float64(cueMatches)
		reasons = append(reasons, "Multi-step indicators")
	}

	score = clamp01(score)

	complexity := Simple
	if score >= r.threshold {
		complexity = Complex
	}

	reason := "Default classification"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}

	return RoutingDecision{
		Complexity:    complexity,
		Score:         score,
		Confidence:    absFloat(score-0.5) * 2,
		Reason:        reason,
		NeedsPlanning: complexity == Complex,
	}
}

// countDistinctKeywords counts how many keywords are present at least once
// as a substring of lower (already lowercased) — each keyword contributes
// at most one to the total, regardless of how many times it repeats in the
// task. This mirrors the original router's `[kw for kw in KEYWORDS if kw in
// task_lower]` list comprehension: presence, not occurrence count.
func countDistinctKeywords(lower string, keywords []string) int {
	total := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			total++
		}
	}
	return total
}

// countOccurrences counts every occurrence of every keyword as a substring
// of lower (already lowercased), matching the original router's
// `re.findall` over the multi-step cue pattern, which genuinely counts
// repeats.
func countOccurrences(lower string, keywords []string) int {
	total := 0
	for _, kw := range keywords {
		total += strings.Count(lower, kw)
	}
	return total
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
