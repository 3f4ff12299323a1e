package stages

import (
	"context"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/stageworker"
)

// NewDoneFn builds the terminal done stage job: a no-op that exists so
// the pipeline's last stage transition has a job to complete, mirroring
// every earlier stage's shape.
func NewDoneFn(d *Deps) stageworker.DeterministicFn {
	return func(ctx context.Context, job stageworker.Job) (map[string]interface{}, error) {
		return map[string]interface{}{"stage": string(job.Stage)}, nil
	}
}

// NewDoneWorker wires NewDoneFn into the deterministic-job harness.
func NewDoneWorker(d *Deps) *stageworker.DeterministicWorker {
	return stageworker.NewDeterministicWorker(domain.StageDone, d.Store, d.Runs, d.Pub, NewDoneFn(d), d.Logger)
}
