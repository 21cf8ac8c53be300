package llm

import (
	"context"
	"sync/atomic"
	"time"
)

// CostRecorder is the narrow persistence dependency CostTracker needs; the
// orchestrator wires *store.Store in, keeping this package free of a
// dependency on the store package.
type CostRecorder interface {
	RecordCost(ctx context.Context, model string, inputTokens, outputTokens int, costCents int64, taskID *string) error
	DailyCostCents(ctx context.Context, since time.Time) (int64, error)
	MonthlyCostCents(ctx context.Context, since time.Time) (int64, error)
}

// PricingTable maps a model name to its cost in cents per 1000 tokens (see
// ModelPricing), separately for prompt and completion tokens. Unknown models
// fall back to DefaultPricing.
type PricingTable map[string]ModelPricing

// ModelPricing is the per-token cost, expressed in integer cents-per-1000-tokens
// to keep accounting exact (no floating point dollars).
type ModelPricing struct {
	PromptCentsPer1K     int64
	CompletionCentsPer1K int64
}

// DefaultPricing is used for any model absent from the configured table.
var DefaultPricing = ModelPricing{PromptCentsPer1K: 1, CompletionCentsPer1K: 2}

// CostTracker accumulates spend atomically and gates admission against a
// daily/monthly budget. every LLM call records cost; is_over_budget is a
// cheap atomic read the orchestrator consults before acquiring a
// concurrency permit, never mid-task.
type CostTracker struct {
	recorder     CostRecorder
	pricing      PricingTable
	dailyBudget  int64 // cents
	monthlyBudget int64 // cents

	dailySpent   atomic.Int64
	monthlySpent atomic.Int64
}

// NewCostTracker builds a tracker with the given budgets (in whole cents)
// and pricing table. Pass an empty PricingTable to use DefaultPricing for
// every model.
func NewCostTracker(recorder CostRecorder, pricing PricingTable, dailyBudgetCents, monthlyBudgetCents int64) *CostTracker {
	return &CostTracker{
		recorder:      recorder,
		pricing:       pricing,
		dailyBudget:   dailyBudgetCents,
		monthlyBudget: monthlyBudgetCents,
	}
}

// IsOverBudget reports whether either budget threshold has been crossed.
func (c *CostTracker) IsOverBudget() (dailyOver, monthlyOver bool) {
	return c.dailySpent.Load() > c.dailyBudget, c.monthlySpent.Load() > c.monthlyBudget
}

// pricingFor returns the configured pricing for model, or DefaultPricing.
func (c *CostTracker) pricingFor(model string) ModelPricing {
	if p, ok := c.pricing[model]; ok {
		return p
	}
	return DefaultPricing
}

// RecordUsage converts token counts to cost, persists a CostRecord, and
// updates the in-memory running totals.
func (c *CostTracker) RecordUsage(ctx context.Context, model string, usage Usage, taskID *string) error {
	pricing := c.pricingFor(model)
	costCents := (int64(usage.PromptTokens)*pricing.PromptCentsPer1K +
		int64(usage.CompletionTokens)*pricing.CompletionCentsPer1K) / 1000

	if err := c.recorder.RecordCost(ctx, model, usage.PromptTokens, usage.CompletionTokens, costCents, taskID); err != nil {
		return err
	}

	c.dailySpent.Add(costCents)
	c.monthlySpent.Add(costCents)
	return nil
}

// RefreshFromStore recomputes the running totals from persisted cost
// records, for use at startup or after a restart.
func (c *CostTracker) RefreshFromStore(ctx context.Context, now time.Time) error {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	daily, err := c.recorder.DailyCostCents(ctx, dayStart)
	if err != nil {
		return err
	}
	monthly, err := c.recorder.MonthlyCostCents(ctx, monthStart)
	if err != nil {
		return err
	}
	c.dailySpent.Store(daily)
	c.monthlySpent.Store(monthly)
	return nil
}

// TotalCostCents returns the current monthly running total, used by
// Orchestrator stats as total_cost.
func (c *CostTracker) TotalCostCents() int64 {
	return c.monthlySpent.Load()
}

// CostTrackingRouter decorates a Router, recording cost for every call that
// reports usage.
type CostTrackingRouter struct {
	inner   Router
	tracker *CostTracker
	taskID  *string
}

// NewCostTrackingRouter wraps inner, attributing recorded cost to taskID (may be nil).
func NewCostTrackingRouter(inner Router, tracker *CostTracker, taskID *string) *CostTrackingRouter {
	return &CostTrackingRouter{inner: inner, tracker: tracker, taskID: taskID}
}

// Complete delegates to the wrapped router and records cost afterward.
func (r *CostTrackingRouter) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	resp, err := r.inner.Complete(ctx, req)
	if err != nil {
		return resp, err
	}
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		if recErr := r.tracker.RecordUsage(ctx, req.Model, resp.Usage, r.taskID); recErr != nil {
			return resp, recErr
		}
	}
	return resp, nil
}
