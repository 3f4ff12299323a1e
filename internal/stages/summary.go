package stages

import (
	"fmt"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/stageworker"
)

// NewSummaryWorker builds the fourth gated stage: a human-readable rollup
// of feasibility, architecture, and timeline for the approver to review
// before patches are generated, producing a SummaryV1 artifact.
func NewSummaryWorker(d *Deps) *stageworker.Worker {
	producer := &stageworker.LLMProducer{
		SystemPrompt: "You are a staff engineer summarizing a feature proposal for a human approver. " +
			"Respond with JSON only: {summary: string, highlights: [string], openRisks: [string]}.",
		BuildPrompt: func(job stageworker.Job, wf *domain.Workflow, prior *domain.Artifact, refs map[domain.ArtifactKind]*domain.Artifact) string {
			var feasibility, architecture, timeline string
			if a := refs[domain.ArtifactFeasibilityV1]; a != nil {
				feasibility = a.Content
			}
			if a := refs[domain.ArtifactArchitectureV1]; a != nil {
				architecture = a.Content
			}
			if a := refs[domain.ArtifactTimelineV1]; a != nil {
				timeline = a.Content
			}
			return fmt.Sprintf(
				"Feature goal: %s\n\nFeasibility:\n%s\n\nArchitecture:\n%s\n\nTimeline:\n%s\n\nWrite a summary for approval.",
				wf.FeatureGoal, feasibility, architecture, timeline)
		},
		Provider:             d.LLM,
		Budget:               d.Budget,
		AllowSummaryFallback: d.AllowHold,
		EstimatedCostPerCall: d.EstCostCall,
		RefKinds: []domain.ArtifactKind{
			domain.ArtifactFeasibilityV1,
			domain.ArtifactArchitectureV1,
			domain.ArtifactTimelineV1,
		},
		RefStore: d.Store,
		Validate: func(parsed map[string]interface{}) error {
			return requireStrings(parsed, "summary")
		},
	}
	return stageworker.NewWorker(domain.StageSummary, domain.ArtifactSummaryV1, d.Store, d.Runs, d.Pub, producer.Produce, d.Logger)
}
