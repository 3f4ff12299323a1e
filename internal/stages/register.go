package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/stageworker"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// Processor is the common shape stageworker.Worker and
// stageworker.DeterministicWorker both satisfy: load the job, do the
// stage's work, and report the outcome back to the orchestrator.
type Processor interface {
	Process(ctx context.Context, job stageworker.Job) error
}

// JobNames enumerates every Temporal workflow type this package registers:
// one per job name the transition function's Enqueue decisions name
// (ingest_context, evaluate_policy, apply_patches) plus one per gated
// pipeline stage (§4.1, §4.4).
var JobNames = []string{
	"ingest_context", "evaluate_policy", "apply_patches",
	string(domain.StageFeasibility),
	string(domain.StageArchitecture),
	string(domain.StageTimeline),
	string(domain.StageSummary),
	string(domain.StagePatches),
	string(domain.StagePolicy),
	string(domain.StageSandbox),
	string(domain.StagePR),
	string(domain.StageDone),
}

// Activities bundles every registered Processor behind one activity,
// keyed by job name, mirroring how internal/orchestrator.Activities
// bundles its own I/O behind a handful of methods.
type Activities struct {
	Processors map[string]Processor
}

// NewActivities builds the full Processors map from one Deps instance,
// shared by every job this worker process handles.
func NewActivities(d *Deps) *Activities {
	policyWorker := NewPolicyWorker(d)
	return &Activities{Processors: map[string]Processor{
		"ingest_context":  NewIngestWorker(d),
		"evaluate_policy": policyWorker,
		"apply_patches":   NewApplyWorker(d),

		string(domain.StageFeasibility):  NewFeasibilityWorker(d),
		string(domain.StageArchitecture): NewArchitectureWorker(d),
		string(domain.StageTimeline):     NewTimelineWorker(d),
		string(domain.StageSummary):      NewSummaryWorker(d),
		string(domain.StagePatches):      NewPatchesWorker(d),
		string(domain.StagePolicy):       policyWorker,
		string(domain.StageSandbox):      NewSandboxWorker(d),
		string(domain.StagePR):           NewPRWorker(d),
		string(domain.StageDone):         NewDoneWorker(d),
	}}
}

// StageActivityInput is ProcessStage's argument: the job name the
// Temporal workflow execution was started under, plus the raw payload the
// orchestrator's Enqueuer passed through.
type StageActivityInput struct {
	JobName string
	Payload map[string]interface{}
}

// ProcessStage looks up the Processor registered for in.JobName and runs
// it. One activity serves every job name; only the processor differs.
func (a *Activities) ProcessStage(ctx context.Context, in StageActivityInput) error {
	p, ok := a.Processors[in.JobName]
	if !ok {
		return fmt.Errorf("stages: no processor registered for job %q", in.JobName)
	}
	workflowID, _ := in.Payload["workflowId"].(string)
	return p.Process(ctx, stageworker.Job{
		WorkflowID: workflowID,
		Stage:      domain.Stage(in.JobName),
		Inputs:     in.Payload,
	})
}

// StageWorkflow is the single Temporal workflow function registered under
// every name in JobNames (via RegisterOptions{Name: ...}); it forwards to
// ProcessStage, passing its own registered workflow type name through so
// the activity knows which processor to run.
func StageWorkflow(ctx workflow.Context, payload map[string]interface{}) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *Activities
	info := workflow.GetInfo(ctx)
	return workflow.ExecuteActivity(ctx, a.ProcessStage, StageActivityInput{
		JobName: info.WorkflowType.Name,
		Payload: payload,
	}).Get(ctx, nil)
}

// Register binds StageWorkflow under every job name and registers the
// activities instance's ProcessStage method on w.
func Register(w worker.Worker, activities *Activities) {
	for _, name := range JobNames {
		w.RegisterWorkflowWithOptions(StageWorkflow, workflow.RegisterOptions{Name: name})
	}
	w.RegisterActivity(activities.ProcessStage)
}
