package stages

import (
	"context"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/stageworker"
)

// NewSandboxFn builds the sandbox stage job. Running the approved patch
// set in an isolated execution sandbox before CI is an explicit Non-goal;
// this stage exists only so the pipeline has a well-defined place to plug
// one in later and so State/Stage advancement logic has a stage to
// transition through. It marks itself complete without doing anything.
func NewSandboxFn(d *Deps) stageworker.DeterministicFn {
	return func(ctx context.Context, job stageworker.Job) (map[string]interface{}, error) {
		return map[string]interface{}{"stage": string(job.Stage), "skipped": true}, nil
	}
}

// NewSandboxWorker wires NewSandboxFn into the deterministic-job harness.
func NewSandboxWorker(d *Deps) *stageworker.DeterministicWorker {
	return stageworker.NewDeterministicWorker(domain.StageSandbox, d.Store, d.Runs, d.Pub, NewSandboxFn(d), d.Logger)
}
