// Package stages implements the Producer/DeterministicFn for every job
// named in the stage pipeline and in the workflow-level transition
// function's Enqueue decisions (§4.1, §4.4): ingest_context,
// evaluate_policy, apply_patches, and the nine gated stages
// (feasibility..done). Only artifact/result production differs per job;
// the shared worker contract lives in internal/stageworker.
package stages

import (
	"github.com/fyrsmithlabs/workflowforge/internal/agents"
	"github.com/fyrsmithlabs/workflowforge/internal/codehost"
	"github.com/fyrsmithlabs/workflowforge/internal/llm"
	"github.com/fyrsmithlabs/workflowforge/internal/policy"
	"github.com/fyrsmithlabs/workflowforge/internal/runrecorder"
	"github.com/fyrsmithlabs/workflowforge/internal/stageworker"
	"github.com/fyrsmithlabs/workflowforge/internal/store"
	"github.com/fyrsmithlabs/workflowforge/internal/writegate"
	"go.uber.org/zap"
)

// Deps bundles everything a stage's Producer/DeterministicFn needs. One
// instance is shared by every worker built in this package.
type Deps struct {
	Store       store.Store
	Runs        *runrecorder.Recorder
	Pub         stageworker.Publisher
	CodeHost    codehost.Client
	WriteGate   *writegate.Gate
	LLM         llm.Provider
	Budget      *llm.CostTracker
	PolicyCfg   *policy.Config
	Agents      *agents.Registry
	Strategy    agents.Strategy
	Resolution  agents.ConflictResolution
	Logger      *zap.Logger
	AllowHold   bool
	EstCostCall float64
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
