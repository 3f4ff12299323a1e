package stages

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/stageworker"
)

// NewPRFn builds the pr stage job: confirm the pull request apply_patches
// opened is visible and snapshot its CI run status. CI completion itself
// arrives asynchronously as an ECIcompleted/EPRMerged/EPRClosed signal from
// the code host webhook handler (internal/http), not from this job; this
// stage only records the state observed at enqueue time.
func NewPRFn(d *Deps) stageworker.DeterministicFn {
	return func(ctx context.Context, job stageworker.Job) (map[string]interface{}, error) {
		wf, err := d.Store.GetWorkflow(ctx, job.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("pr: load workflow: %w", err)
		}
		if wf == nil {
			return nil, fmt.Errorf("pr: workflow %s not found", job.WorkflowID)
		}
		if len(wf.Repos) == 0 {
			return nil, fmt.Errorf("pr: workflow %s has no target repo", job.WorkflowID)
		}
		repo := wf.Repos[0]

		runs, err := d.CodeHost.ListWorkflowRuns(ctx, repo.Owner, repo.Name, wf.BaseSha)
		if err != nil {
			return nil, fmt.Errorf("pr: list workflow runs: %w", err)
		}

		summary := map[string]interface{}{"branch": branchName(job.WorkflowID), "runCount": len(runs)}
		if len(runs) > 0 {
			summary["latestStatus"] = runs[0].Status
			summary["latestConclusion"] = runs[0].Conclusion
		}
		return summary, nil
	}
}

// NewPRWorker wires NewPRFn into the deterministic-job harness.
func NewPRWorker(d *Deps) *stageworker.DeterministicWorker {
	return stageworker.NewDeterministicWorker(domain.StagePR, d.Store, d.Runs, d.Pub, NewPRFn(d), d.Logger)
}
