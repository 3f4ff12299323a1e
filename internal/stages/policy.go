package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/policy"
	"github.com/fyrsmithlabs/workflowforge/internal/stageworker"
)

func mapSeverity(s policy.Severity) domain.Severity {
	if s == policy.SeverityBlock {
		return domain.SeverityBlock
	}
	return domain.SeverityWarn
}

// NewPolicyFn builds the evaluate_policy job (§4.3, Gate2): load the
// latest PatchSetV1 artifact, re-evaluate it against the policy
// configuration, replace the stored violation set, and signal
// E_POLICY_EVALUATED directly in addition to the harness's own
// E_JOB_COMPLETED, since the transition function's BLOCKED_POLICY override
// and hasPolicyBeenEvaluated derivation key off that specific event type.
func NewPolicyFn(d *Deps) stageworker.DeterministicFn {
	return func(ctx context.Context, job stageworker.Job) (map[string]interface{}, error) {
		artifact, err := d.Store.LatestArtifact(ctx, job.WorkflowID, domain.ArtifactPatchSetV1)
		if err != nil {
			return nil, fmt.Errorf("policy: load patch set artifact: %w", err)
		}
		if artifact == nil {
			return nil, fmt.Errorf("policy: no patch set artifact for workflow %s", job.WorkflowID)
		}

		var patchSet domain.PatchSet
		if err := json.Unmarshal([]byte(artifact.Content), &patchSet); err != nil {
			return nil, fmt.Errorf("policy: unmarshal patch set: %w", err)
		}

		result := policy.EvaluateGate2(patchSet.CombinedDiff(), d.PolicyCfg)

		violations := make([]domain.PolicyViolation, 0, len(result.Violations))
		for _, v := range result.Violations {
			violations = append(violations, domain.PolicyViolation{
				PatchSetID: patchSet.ID,
				Rule:       string(v.Code),
				Severity:   mapSeverity(v.Severity),
				File:       v.File,
				Line:       v.Line,
				Message:    v.Detail,
				Evidence:   v.Evidence,
			})
		}
		if err := d.Store.ReplacePolicyViolations(ctx, patchSet.ID, violations); err != nil {
			return nil, fmt.Errorf("policy: replace violations: %w", err)
		}

		hasBlocking := result.Verdict == policy.VerdictFail
		if err := d.Pub.PublishPolicyEvaluated(ctx, job.WorkflowID, hasBlocking); err != nil {
			return nil, fmt.Errorf("policy: publish policy evaluated: %w", err)
		}

		return map[string]interface{}{
			"verdict":        string(result.Verdict),
			"violationCount": len(violations),
			"touchedFiles":   result.TouchedFiles,
		}, nil
	}
}

// NewPolicyWorker wires NewPolicyFn into the deterministic-job harness.
func NewPolicyWorker(d *Deps) *stageworker.DeterministicWorker {
	return stageworker.NewDeterministicWorker(domain.StagePolicy, d.Store, d.Runs, d.Pub, NewPolicyFn(d), d.Logger)
}
