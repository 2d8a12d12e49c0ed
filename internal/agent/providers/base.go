package providers

import (
	"context"
	"log/slog"
	"time"
)

// BaseProvider holds shared retry configuration for LLM providers. Every
// retry and exhaustion is logged through logger so an operator can tell a
// slow-but-recovering provider from one about to trip the Cost Accountant's
// budget guard with nothing to show for the spend.
type BaseProvider struct {
	name       string
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewBaseProvider creates a base provider with sane defaults. A nil logger
// falls back to slog.Default(), matching the rest of the agent package's
// constructors (CostAccountant, TraceRecorder, AgentLoop).
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration, logger *slog.Logger) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return BaseProvider{
		name:       name,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// Retry executes op with linear backoff if isRetryable returns true, logging
// each retry attempt and the final outcome once the budget is exhausted.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := op(); err == nil {
			if attempt > 1 {
				b.logger.Info("provider call recovered after retry", "provider", b.name, "attempt", attempt)
			}
			return nil
		} else {
			lastErr = err
			if isRetryable == nil || !isRetryable(err) {
				b.logger.Warn("provider call failed with a non-retryable error", "provider", b.name, "attempt", attempt, "err", err)
				return err
			}
			if attempt >= b.maxRetries {
				b.logger.Warn("provider call exhausted retries", "provider", b.name, "attempts", attempt, "err", err)
				break
			}
			delay := b.retryDelay * time.Duration(attempt)
			b.logger.Info("provider call failed, retrying", "provider", b.name, "attempt", attempt, "delay", delay, "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return lastErr
}
