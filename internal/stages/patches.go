package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/workflowforge/internal/agents"
	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/policy"
	"github.com/fyrsmithlabs/workflowforge/internal/stageworker"
	pkgsecrets "github.com/fyrsmithlabs/workflowforge/pkg/secrets"
	"go.uber.org/zap"
)

// tasksFromInputs reads the task list a patches job was enqueued with
// (§4.4.2). Each entry is {id, type, languages:[string], targetGlobs:[string]}.
func tasksFromInputs(inputs map[string]interface{}) []agents.Task {
	raw, _ := inputs["tasks"].([]interface{})
	tasks := make([]agents.Task, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		tasks = append(tasks, agents.Task{
			ID:          stringField(m, "id"),
			Type:        agents.Type(stringField(m, "type")),
			Languages:   stringSlice(m["languages"]),
			TargetGlobs: stringSlice(m["targetGlobs"]),
		})
	}
	return tasks
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// scrubPatchSet redacts secrets from every patch's diff in place using the
// Gitleaks-backed detector, a defense-in-depth pass ahead of Gate2's
// diff-level policy checks: an agent's generated patch can embed a
// credential Gate2's pattern set doesn't cover even when the combined
// diff otherwise passes. Returns the total finding count across patches.
func scrubPatchSet(ps *domain.PatchSet) (int, error) {
	total := 0
	for i, p := range ps.Patches {
		result, err := pkgsecrets.Redact(p.Diff, pkgsecrets.RedactOptions{})
		if err != nil {
			return total, fmt.Errorf("scrubbing patch %s: %w", p.ID, err)
		}
		ps.Patches[i].Diff = result.Content
		total += result.Audit.Summary.TotalSecrets
	}
	return total, nil
}

// NewPatchesProducer builds the patches stage: dispatch the workflow's
// tasks to the agent registry under the configured coordination strategy,
// merge the resulting proposals into one PatchSet, and run a Gate2
// pre-check before persisting (§4.3, §4.4.2). A failing pre-check returns
// an error rather than an artifact so the stage surfaces as blocked
// instead of producing a PatchSet the policy stage would immediately
// reject.
func NewPatchesProducer(d *Deps) stageworker.Producer {
	return func(ctx context.Context, job stageworker.Job, prior *domain.Artifact) (string, map[string]interface{}, domain.Usage, error) {
		wf, err := d.Store.GetWorkflow(ctx, job.WorkflowID)
		if err != nil {
			return "", nil, domain.Usage{}, fmt.Errorf("patches: load workflow: %w", err)
		}
		if wf == nil {
			return "", nil, domain.Usage{}, fmt.Errorf("patches: workflow %s not found", job.WorkflowID)
		}

		tasks := tasksFromInputs(job.Inputs)
		if len(tasks) == 0 {
			tasks = []agents.Task{{ID: "default", Type: agents.TypeBackend}}
		}

		proposals, err := d.Agents.Coordinate(ctx, d.Strategy, tasks)
		if err != nil && len(proposals) == 0 {
			return "", nil, domain.Usage{}, fmt.Errorf("patches: coordinate: %w", err)
		}

		merged, conflicts := agents.Merge(proposals, wf.BaseSha, d.Resolution)
		merged.ID = ""

		scrubFindings, err := scrubPatchSet(&merged)
		if err != nil {
			return "", nil, domain.Usage{}, fmt.Errorf("patches: %w", err)
		}

		gate2 := policy.EvaluateGate2(merged.CombinedDiff(), d.PolicyCfg)
		if gate2.Verdict == policy.VerdictFail {
			if evErr := d.Store.AppendEvent(ctx, domain.WorkflowEvent{
				WorkflowID: job.WorkflowID,
				Type:       "patches.proposal_rejected",
				Payload: map[string]interface{}{
					"reason":         "PROPOSAL_REJECTED",
					"violationCount": len(gate2.Violations),
					"touchedFiles":   gate2.TouchedFiles,
				},
			}); evErr != nil {
				d.Logger.Warn("patches: failed to record PROPOSAL_REJECTED event", zap.Error(evErr))
			}
			return "", nil, domain.Usage{}, fmt.Errorf("patches: merged diff fails policy pre-check, PROPOSAL_REJECTED: %d blocking violation(s)", len(gate2.Violations))
		}

		content, err := json.Marshal(merged)
		if err != nil {
			return "", nil, domain.Usage{}, fmt.Errorf("patches: marshal patch set: %w", err)
		}

		summary := map[string]interface{}{
			"stage":          string(job.Stage),
			"proposalCount":  len(proposals),
			"patchCount":     len(merged.Patches),
			"conflictCount":  len(conflicts),
			"secretFindings": scrubFindings,
		}
		return string(content), summary, domain.Usage{}, nil
	}
}

// NewPatchesWorker wires NewPatchesProducer into the shared artifact
// worker harness.
func NewPatchesWorker(d *Deps) *stageworker.Worker {
	return stageworker.NewWorker(domain.StagePatches, domain.ArtifactPatchSetV1, d.Store, d.Runs, d.Pub, NewPatchesProducer(d), d.Logger)
}
