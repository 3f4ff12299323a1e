package stages

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/stageworker"
)

// NewIngestFn builds the ingest_context job: resolve every target repo's
// base branch HEAD sha and record it on the workflow, so every later
// stage (patches, apply) works from a single, consistently resolved base
// (§4.1). A workflow with more than one repo takes the first repo's sha as
// the workflow-level BaseSha; the others are recorded only in the event
// payload, since domain.Workflow carries a single BaseSha field today.
func NewIngestFn(d *Deps) stageworker.DeterministicFn {
	return func(ctx context.Context, job stageworker.Job) (map[string]interface{}, error) {
		wf, err := d.Store.GetWorkflow(ctx, job.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("ingest: load workflow: %w", err)
		}
		if wf == nil {
			return nil, fmt.Errorf("ingest: workflow %s not found", job.WorkflowID)
		}
		if len(wf.Repos) == 0 {
			return nil, fmt.Errorf("ingest: workflow %s has no repos to ingest", job.WorkflowID)
		}

		shas := make(map[string]string, len(wf.Repos))
		for _, repo := range wf.Repos {
			sha, err := d.CodeHost.GetBranch(ctx, repo.Owner, repo.Name, repo.BaseBranch)
			if err != nil {
				return nil, fmt.Errorf("ingest: resolve base sha for %s/%s@%s: %w", repo.Owner, repo.Name, repo.BaseBranch, err)
			}
			shas[repo.Owner+"/"+repo.Name] = sha
		}

		baseSha := shas[wf.Repos[0].Owner+"/"+wf.Repos[0].Name]
		if err := d.Store.SetBaseSha(ctx, job.WorkflowID, baseSha); err != nil {
			return nil, fmt.Errorf("ingest: persist base sha: %w", err)
		}

		return map[string]interface{}{
			"baseSha":  baseSha,
			"repoShas": shas,
		}, nil
	}
}

// NewIngestWorker wires NewIngestFn into the deterministic-job harness.
func NewIngestWorker(d *Deps) *stageworker.DeterministicWorker {
	return stageworker.NewDeterministicWorker(domain.Stage("ingest_context"), d.Store, d.Runs, d.Pub, NewIngestFn(d), d.Logger)
}
