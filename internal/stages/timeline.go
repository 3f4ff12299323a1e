package stages

import (
	"fmt"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/stageworker"
)

// NewTimelineWorker builds the third gated stage: an LLM-estimated delivery
// timeline conditioned on the architecture sketch, producing a TimelineV1
// artifact.
func NewTimelineWorker(d *Deps) *stageworker.Worker {
	producer := &stageworker.LLMProducer{
		SystemPrompt: "You are a staff engineer estimating delivery timeline for an approved architecture. " +
			"Respond with JSON only: {estimate: string, phases: [string], assumptions: [string]}.",
		BuildPrompt: func(job stageworker.Job, wf *domain.Workflow, prior *domain.Artifact, refs map[domain.ArtifactKind]*domain.Artifact) string {
			architecture := ""
			if aa := refs[domain.ArtifactArchitectureV1]; aa != nil {
				architecture = aa.Content
			}
			return fmt.Sprintf("Feature goal: %s\n\nArchitecture:\n%s\n\nEstimate a delivery timeline.", wf.FeatureGoal, architecture)
		},
		Provider:             d.LLM,
		Budget:               d.Budget,
		AllowSummaryFallback: d.AllowHold,
		EstimatedCostPerCall: d.EstCostCall,
		RefKinds:             []domain.ArtifactKind{domain.ArtifactArchitectureV1},
		RefStore:             d.Store,
		Validate: func(parsed map[string]interface{}) error {
			if err := requireStrings(parsed, "estimate"); err != nil {
				return err
			}
			return requireArray(parsed, "phases")
		},
	}
	return stageworker.NewWorker(domain.StageTimeline, domain.ArtifactTimelineV1, d.Store, d.Runs, d.Pub, producer.Produce, d.Logger)
}
