package stages

import (
	"fmt"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/stageworker"
)

// NewArchitectureWorker builds the second gated stage: an LLM-proposed
// architecture sketch for the feature, conditioned on the prior
// FeasibilityV1 artifact, producing an ArchitectureV1 artifact.
func NewArchitectureWorker(d *Deps) *stageworker.Worker {
	producer := &stageworker.LLMProducer{
		SystemPrompt: "You are a staff engineer sketching the architecture for a feature already judged feasible. " +
			"Respond with JSON only: {approach: string, components: [string], tradeoffs: [string], risks: [string]}.",
		BuildPrompt: func(job stageworker.Job, wf *domain.Workflow, prior *domain.Artifact, refs map[domain.ArtifactKind]*domain.Artifact) string {
			feasibility := ""
			if fa := refs[domain.ArtifactFeasibilityV1]; fa != nil {
				feasibility = fa.Content
			}
			return fmt.Sprintf("Feature goal: %s\n\nFeasibility assessment:\n%s\n\nPropose an architecture.", wf.FeatureGoal, feasibility)
		},
		Provider:             d.LLM,
		Budget:               d.Budget,
		AllowSummaryFallback: d.AllowHold,
		EstimatedCostPerCall: d.EstCostCall,
		RefKinds:             []domain.ArtifactKind{domain.ArtifactFeasibilityV1},
		RefStore:             d.Store,
		Validate: func(parsed map[string]interface{}) error {
			if err := requireStrings(parsed, "approach"); err != nil {
				return err
			}
			return requireArray(parsed, "components")
		},
	}
	return stageworker.NewWorker(domain.StageArchitecture, domain.ArtifactArchitectureV1, d.Store, d.Runs, d.Pub, producer.Produce, d.Logger)
}
