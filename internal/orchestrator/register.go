package orchestrator

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
	wftemporal "go.temporal.io/sdk/workflow"
)

// Register wires OrchestratorWorkflow and its Activities onto w before
// cmd/orchestrator-worker calls w.Run.
func Register(w worker.Worker, activities *Activities) {
	w.RegisterWorkflowWithOptions(OrchestratorWorkflow, wftemporal.RegisterOptions{Name: WorkflowName})
	w.RegisterActivity(activities.CreateWorkflowActivity)
	w.RegisterActivityWithOptions(activities.BuildContextActivity, activity.RegisterOptions{Name: "orchestrator.BuildContext"})
	w.RegisterActivityWithOptions(activities.PersistDecisionActivity, activity.RegisterOptions{Name: "orchestrator.PersistDecision"})
}
