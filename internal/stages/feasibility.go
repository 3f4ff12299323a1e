package stages

import (
	"fmt"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/stageworker"
)

// NewFeasibilityWorker builds the first gated stage: an LLM assessment of
// whether the workflow's feature goal is achievable against the target
// repos, producing a FeasibilityV1 artifact (§4.4.1).
func NewFeasibilityWorker(d *Deps) *stageworker.Worker {
	producer := &stageworker.LLMProducer{
		SystemPrompt: "You are a staff engineer assessing feasibility of a proposed feature against an existing codebase. " +
			"Respond with JSON only: {feasible: bool, summary: string, risks: [string], openQuestions: [string]}.",
		BuildPrompt: func(job stageworker.Job, wf *domain.Workflow, prior *domain.Artifact, refs map[domain.ArtifactKind]*domain.Artifact) string {
			return fmt.Sprintf("Feature goal: %s\nBusiness justification: %s\n\nAssess feasibility.", wf.FeatureGoal, wf.BusinessJustification)
		},
		Provider:             d.LLM,
		Budget:               d.Budget,
		AllowSummaryFallback: d.AllowHold,
		EstimatedCostPerCall: d.EstCostCall,
		RefStore:             d.Store,
		Validate: func(parsed map[string]interface{}) error {
			if _, ok := parsed["feasible"].(bool); !ok {
				return fmt.Errorf("missing required boolean field %q", "feasible")
			}
			return requireStrings(parsed, "summary")
		},
	}
	return stageworker.NewWorker(domain.StageFeasibility, domain.ArtifactFeasibilityV1, d.Store, d.Runs, d.Pub, producer.Produce, d.Logger)
}
