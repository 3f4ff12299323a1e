package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
)

// Ceilings are the four advisory budget limits CostTracker enforces:
// per-run tokens, per-workflow tokens, per-workflow cost, and per-day cost
// (§4.4.1). Exceeding one does not abort a running call; it only prevents
// starting a new one.
type Ceilings struct {
	MaxTokensPerRun      int
	MaxTokensPerWorkflow int
	MaxCostPerWorkflow   float64
	MaxCostPerDay        float64
}

// DefaultCeilings are conservative defaults suitable for a single-tenant
// deployment; operators override them via configuration.
func DefaultCeilings() Ceilings {
	return Ceilings{
		MaxTokensPerRun:      20_000,
		MaxTokensPerWorkflow: 200_000,
		MaxCostPerWorkflow:   10.0,
		MaxCostPerDay:        100.0,
	}
}

// UsageStore is the narrow aggregate query CostTracker needs; the concrete
// implementation lives in internal/store, backed by WorkflowRun.usage rows.
type UsageStore interface {
	SumWorkflowUsage(ctx context.Context, workflowID string) (domain.Usage, error)
	SumUsageSince(ctx context.Context, since time.Time) (domain.Usage, error)
}

// CostTracker implements the budget check stage workers consult before
// making an LLM call (§4.4.1). It is a pure read against recorded usage,
// never a reservation: two concurrent callers can both pass the check and
// both spend, which is acceptable since the ceilings are advisory.
type CostTracker struct {
	ceilings Ceilings
	usage    UsageStore
	now      func() time.Time
	mu       sync.Mutex
}

func NewCostTracker(ceilings Ceilings, usage UsageStore, now func() time.Time) *CostTracker {
	if now == nil {
		now = time.Now
	}
	return &CostTracker{ceilings: ceilings, usage: usage, now: now}
}

// CheckBudget reports whether spending additionalTokens more for
// workflowID would stay within all four ceilings, and if not, which one it
// would breach.
func (t *CostTracker) CheckBudget(ctx context.Context, workflowID string, additionalTokens int, estimatedCost float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if additionalTokens > t.ceilings.MaxTokensPerRun {
		return fmt.Errorf("llm: %d tokens exceeds per-run ceiling of %d", additionalTokens, t.ceilings.MaxTokensPerRun)
	}

	workflowUsage, err := t.usage.SumWorkflowUsage(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("llm: summing workflow usage: %w", err)
	}
	if workflowUsage.InputTokens+workflowUsage.OutputTokens+additionalTokens > t.ceilings.MaxTokensPerWorkflow {
		return fmt.Errorf("llm: workflow %s would exceed per-workflow token ceiling of %d", workflowID, t.ceilings.MaxTokensPerWorkflow)
	}
	if workflowUsage.CostUSD+estimatedCost > t.ceilings.MaxCostPerWorkflow {
		return fmt.Errorf("llm: workflow %s would exceed per-workflow cost ceiling of $%.2f", workflowID, t.ceilings.MaxCostPerWorkflow)
	}

	dayUsage, err := t.usage.SumUsageSince(ctx, t.now().Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("llm: summing daily usage: %w", err)
	}
	if dayUsage.CostUSD+estimatedCost > t.ceilings.MaxCostPerDay {
		return fmt.Errorf("llm: would exceed per-day cost ceiling of $%.2f", t.ceilings.MaxCostPerDay)
	}
	return nil
}
