package agent

import (
	"log/slog"
	"sync"
)

// ModelPricing is the per-1k-token price for a model.
type ModelPricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// APICallRecord is one entry in the Cost Accountant's append-only ledger.
type APICallRecord struct {
	Model         string
	InputTokens   int
	OutputTokens  int
	CachedTokens  int
	InputCost     float64
	OutputCost    float64
}

// CostSummary is a pure projection over the ledger.
type CostSummary struct {
	TotalCost   float64
	TotalTokens int
	CallCount   int
}

// CostAccountant is a strictly monotonic per-task ledger with a hard budget.
// It is owned by a single task-thread and needs no external locking, but
// guards its own state with a mutex since the Agent Loop may read totals
// from a different goroutine than the one recording calls.
type CostAccountant struct {
	mu      sync.Mutex
	pricing map[string]ModelPricing
	budget  float64
	ledger  []APICallRecord
	warned  bool
	logger  *slog.Logger
	trace   *TraceRecorder
}

// NewCostAccountant creates an accountant with the given per-model pricing
// table and per-task budget in USD.
func NewCostAccountant(pricing map[string]ModelPricing, budgetUSD float64, trace *TraceRecorder, logger *slog.Logger) *CostAccountant {
	if logger == nil {
		logger = slog.Default()
	}
	if pricing == nil {
		pricing = map[string]ModelPricing{}
	}
	return &CostAccountant{pricing: pricing, budget: budgetUSD, logger: logger, trace: trace}
}

// RecordCall computes cost for the given usage and appends it to the ledger.
// An unknown model logs a warning and contributes zero cost. Cached input
// tokens produce savings, not cost, so they are recorded but not charged.
// If the new cumulative total exceeds the budget, the call is rejected (not
// appended) and a *BudgetExceededError is returned, wrapping ErrBudgetExceeded.
func (c *CostAccountant) RecordCall(model string, inputTokens, outputTokens, cachedTokens int) (APICallRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pricing, known := c.pricing[model]
	if !known {
		c.logger.Warn("unknown model pricing, contributing zero cost", "model", model)
	}

	billableInput := inputTokens - cachedTokens
	if billableInput < 0 {
		billableInput = 0
	}

	record := APICallRecord{
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CachedTokens: cachedTokens,
		InputCost:    float64(billableInput) / 1000.0 * pricing.InputPer1K,
		OutputCost:   float64(outputTokens) / 1000.0 * pricing.OutputPer1K,
	}

	prospectiveTotal := c.totalCostLocked() + record.InputCost + record.OutputCost
	if c.budget > 0 && prospectiveTotal > c.budget {
		return APICallRecord{}, &BudgetExceededError{Spent: c.totalCostLocked(), Budget: c.budget}
	}

	c.ledger = append(c.ledger, record)

	ratio := prospectiveTotal / c.budget
	if c.budget > 0 && ratio >= 0.8 && ratio < 1.0 && !c.warned {
		c.warned = true
		if c.trace != nil {
			c.trace.Record(EventBudgetWarning, map[string]any{
				"spent":  prospectiveTotal,
				"budget": c.budget,
			})
		}
	}

	return record, nil
}

// TotalCost sums InputCost+OutputCost across the ledger.
func (c *CostAccountant) TotalCost() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalCostLocked()
}

func (c *CostAccountant) totalCostLocked() float64 {
	total := 0.0
	for _, r := range c.ledger {
		total += r.InputCost + r.OutputCost
	}
	return total
}

// Summary returns a pure projection over the ledger.
func (c *CostAccountant) Summary() CostSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	summary := CostSummary{CallCount: len(c.ledger)}
	for _, r := range c.ledger {
		summary.TotalCost += r.InputCost + r.OutputCost
		summary.TotalTokens += r.InputTokens + r.OutputTokens
	}
	return summary
}

// Budget returns the configured per-task budget.
func (c *CostAccountant) Budget() float64 {
	return c.budget
}
