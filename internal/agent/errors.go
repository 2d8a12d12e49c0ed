package agent

import (
	"errors"
	"fmt"
)

// ErrAlreadyRegistered is returned by ToolRegistry.Register when a tool
// with the same name is already present.
var ErrAlreadyRegistered = errors.New("already_registered")

// ErrBudgetExceeded is the one distinguished throwable named by the spec:
// the Cost Accountant raises it, the Agent Loop is the only caller that
// catches it. Wrapped inside BudgetExceededError so errors.Is succeeds at
// any call depth while still carrying the spent/budget context.
var ErrBudgetExceeded = errors.New("budget exceeded")

// BudgetExceededError carries the ledger state at the moment the per-task
// budget was exceeded.
type BudgetExceededError struct {
	Spent  float64
	Budget float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: spent $%.4f of $%.4f", e.Spent, e.Budget)
}

// Unwrap lets errors.Is(err, ErrBudgetExceeded) succeed.
func (e *BudgetExceededError) Unwrap() error {
	return ErrBudgetExceeded
}

// ErrContextWindowExceeded is raised by the LLM Gateway's pre-flight check
// when a request's estimated token count would overflow the target model's
// context window. Wrapped inside ContextWindowExceededError the same way
// ErrBudgetExceeded is wrapped inside BudgetExceededError.
var ErrContextWindowExceeded = errors.New("context window exceeded")

// ContextWindowExceededError carries the estimate that tripped the
// pre-flight check.
type ContextWindowExceededError struct {
	Model           string
	EstimatedTokens int
	ContextWindow   int
}

func (e *ContextWindowExceededError) Error() string {
	return fmt.Sprintf("context window exceeded: model %s estimated %d tokens against a %d-token window", e.Model, e.EstimatedTokens, e.ContextWindow)
}

// Unwrap lets errors.Is(err, ErrContextWindowExceeded) succeed.
func (e *ContextWindowExceededError) Unwrap() error {
	return ErrContextWindowExceeded
}

// Tool parameter limits, mirroring the registry's resource-exhaustion guard.
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolInputSize is the maximum size, in bytes, of a marshalled tool
	// input payload accepted by Execute.
	MaxToolInputSize = 10 << 20
)
