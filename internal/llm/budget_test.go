package llm

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsageStore struct {
	workflow domain.Usage
	daily    domain.Usage
}

func (f *fakeUsageStore) SumWorkflowUsage(context.Context, string) (domain.Usage, error) {
	return f.workflow, nil
}
func (f *fakeUsageStore) SumUsageSince(context.Context, time.Time) (domain.Usage, error) {
	return f.daily, nil
}

func TestCostTracker_PassesWithinCeilings(t *testing.T) {
	tracker := NewCostTracker(DefaultCeilings(), &fakeUsageStore{}, nil)

	err := tracker.CheckBudget(context.Background(), "wf-1", 1000, 0.05)

	require.NoError(t, err)
}

func TestCostTracker_RejectsOverPerRunCeiling(t *testing.T) {
	tracker := NewCostTracker(DefaultCeilings(), &fakeUsageStore{}, nil)

	err := tracker.CheckBudget(context.Background(), "wf-1", 1_000_000, 0.01)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "per-run ceiling")
}

func TestCostTracker_RejectsOverPerWorkflowCostCeiling(t *testing.T) {
	tracker := NewCostTracker(DefaultCeilings(), &fakeUsageStore{workflow: domain.Usage{CostUSD: 9.99}}, nil)

	err := tracker.CheckBudget(context.Background(), "wf-1", 10, 5.0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "per-workflow cost ceiling")
}

func TestCostTracker_RejectsOverDailyCostCeiling(t *testing.T) {
	tracker := NewCostTracker(DefaultCeilings(), &fakeUsageStore{daily: domain.Usage{CostUSD: 99.5}}, nil)

	err := tracker.CheckBudget(context.Background(), "wf-1", 10, 1.0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "per-day cost ceiling")
}
