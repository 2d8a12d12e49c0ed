package agent

import (
	"errors"
	"testing"
)

func testPricing() map[string]ModelPricing {
	return map[string]ModelPricing{
		"fake-model": {InputPer1K: 0.01, OutputPer1K: 0.02},
	}
}

func TestCostAccountantRecordCallComputesCost(t *testing.T) {
	c := NewCostAccountant(testPricing(), 0, nil, nil)

	record, err := c.RecordCall("fake-model", 1000, 500, 0)
	if err != nil {
		t.Fatalf("RecordCall: %v", err)
	}

	wantInput := 0.01
	wantOutput := 0.01
	if record.InputCost != wantInput {
		t.Errorf("InputCost = %f, want %f", record.InputCost, wantInput)
	}
	if record.OutputCost != wantOutput {
		t.Errorf("OutputCost = %f, want %f", record.OutputCost, wantOutput)
	}
}

func TestCostAccountantCachedTokensAreNotBilled(t *testing.T) {
	c := NewCostAccountant(testPricing(), 0, nil, nil)

	record, err := c.RecordCall("fake-model", 1000, 0, 400)
	if err != nil {
		t.Fatalf("RecordCall: %v", err)
	}
	want := 0.01 * 0.6 // 600 billable input tokens
	if record.InputCost != want {
		t.Errorf("InputCost = %f, want %f", record.InputCost, want)
	}
}

func TestCostAccountantUnknownModelContributesZeroCost(t *testing.T) {
	c := NewCostAccountant(testPricing(), 0, nil, nil)

	record, err := c.RecordCall("unknown-model", 1000, 1000, 0)
	if err != nil {
		t.Fatalf("RecordCall: %v", err)
	}
	if record.InputCost != 0 || record.OutputCost != 0 {
		t.Errorf("expected zero cost for an unpriced model, got input=%f output=%f", record.InputCost, record.OutputCost)
	}
}

// Universal invariant: total_cost = sum(input_cost + output_cost); summary
// total_tokens = input + output.
func TestCostAccountantSummaryMatchesLedger(t *testing.T) {
	c := NewCostAccountant(testPricing(), 0, nil, nil)

	if _, err := c.RecordCall("fake-model", 1000, 500, 0); err != nil {
		t.Fatalf("RecordCall 1: %v", err)
	}
	if _, err := c.RecordCall("fake-model", 2000, 1000, 0); err != nil {
		t.Fatalf("RecordCall 2: %v", err)
	}

	summary := c.Summary()
	wantTokens := (1000 + 500) + (2000 + 1000)
	if summary.TotalTokens != wantTokens {
		t.Errorf("TotalTokens = %d, want %d", summary.TotalTokens, wantTokens)
	}
	if summary.CallCount != 2 {
		t.Errorf("CallCount = %d, want 2", summary.CallCount)
	}
	if summary.TotalCost != c.TotalCost() {
		t.Errorf("Summary().TotalCost = %f, want %f (TotalCost())", summary.TotalCost, c.TotalCost())
	}
}

// A call that would push cumulative cost over budget fails with a wrapped
// ErrBudgetExceeded, and the failing call is not appended to the ledger.
func TestCostAccountantRejectsCallOverBudget(t *testing.T) {
	c := NewCostAccountant(testPricing(), 0.015, nil, nil)

	if _, err := c.RecordCall("fake-model", 1000, 0, 0); err != nil {
		t.Fatalf("expected the first call within budget to succeed, got %v", err)
	}

	_, err := c.RecordCall("fake-model", 1000, 0, 0)
	if err == nil {
		t.Fatal("expected the second call to exceed the budget")
	}
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected errors.Is(err, ErrBudgetExceeded), got %v", err)
	}

	var budgetErr *BudgetExceededError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("expected a *BudgetExceededError, got %T", err)
	}
	if budgetErr.Budget != 0.015 {
		t.Errorf("Budget = %f, want 0.015", budgetErr.Budget)
	}

	if c.Summary().CallCount != 1 {
		t.Errorf("expected the rejected call to not be appended, got CallCount=%d", c.Summary().CallCount)
	}
}

func TestCostAccountantBudgetWarningFiresOnceAt80Percent(t *testing.T) {
	trace := NewTraceRecorder("test-task", "", nil)
	c := NewCostAccountant(testPricing(), 0.01, trace, nil)

	// 800 input tokens at 0.01/1k = 0.008, exactly 80% of the 0.01 budget.
	if _, err := c.RecordCall("fake-model", 800, 0, 0); err != nil {
		t.Fatalf("RecordCall: %v", err)
	}

	warnings := 0
	for _, span := range trace.spans {
		for _, ev := range span.Events {
			if ev.EventType == EventBudgetWarning {
				warnings++
			}
		}
	}
	if warnings != 1 {
		t.Errorf("expected exactly one budget_warning event, got %d", warnings)
	}
}
