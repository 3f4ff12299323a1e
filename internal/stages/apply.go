package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/stageworker"
	"github.com/fyrsmithlabs/workflowforge/internal/writegate"
	"github.com/gitleaks/go-gitdiff/gitdiff"
	"go.uber.org/zap"
)

// branchName derives the apply_patches branch from the workflow id, so
// retried apply jobs target the same branch instead of piling up orphans.
func branchName(workflowID string) string {
	return "workflowforge/" + workflowID
}

// NewApplyFn builds the apply_patches job: materialize the approved
// PatchSet's files on a new branch of the workflow's primary repo and open
// a pull request (§4.4, §4.6). Every write goes through the WriteGate, so
// a missing apply_patches approval surfaces as writegate.ErrNoApproval,
// whose message is the exact WriteBlockedNoApproval sentinel the
// transition function matches to route to BLOCKED_POLICY rather than
// FAILED.
func NewApplyFn(d *Deps) stageworker.DeterministicFn {
	return func(ctx context.Context, job stageworker.Job) (map[string]interface{}, error) {
		wf, err := d.Store.GetWorkflow(ctx, job.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("apply: load workflow: %w", err)
		}
		if wf == nil {
			return nil, fmt.Errorf("apply: workflow %s not found", job.WorkflowID)
		}
		if len(wf.Repos) == 0 {
			return nil, fmt.Errorf("apply: workflow %s has no target repo", job.WorkflowID)
		}
		repo := wf.Repos[0]

		artifact, err := d.Store.LatestArtifact(ctx, job.WorkflowID, domain.ArtifactPatchSetV1)
		if err != nil {
			return nil, fmt.Errorf("apply: load patch set artifact: %w", err)
		}
		if artifact == nil {
			return nil, fmt.Errorf("apply: no patch set artifact for workflow %s", job.WorkflowID)
		}
		var patchSet domain.PatchSet
		if err := json.Unmarshal([]byte(artifact.Content), &patchSet); err != nil {
			return nil, fmt.Errorf("apply: unmarshal patch set: %w", err)
		}

		branch := branchName(job.WorkflowID)
		if err := d.WriteGate.CreateBranch(ctx, job.WorkflowID, repo.Owner, repo.Name, branch, wf.BaseSha); err != nil {
			if errors.Is(err, writegate.ErrNoApproval) {
				return nil, writegate.ErrNoApproval
			}
			// Branch may already exist from a previous attempt at this
			// job; treat any other CreateBranch failure as retriable
			// rather than fatal by continuing to file updates.
			d.Logger.Warn("apply: create branch failed, continuing", zap.Error(err))
		}

		var updated, skipped []string
		for _, patch := range patchSet.Patches {
			files, _, parseErr := gitdiff.Parse(strings.NewReader(patch.Diff))
			if parseErr != nil {
				return nil, fmt.Errorf("apply: parse patch %s diff: %w", patch.ID, parseErr)
			}
			for _, file := range files {
				if file.IsDelete {
					skipped = append(skipped, file.OldName)
					continue
				}
				path := file.NewName
				if path == "" {
					path = file.OldName
				}

				var original []byte
				if !file.IsNew {
					original, err = d.CodeHost.GetFileContents(ctx, repo.Owner, repo.Name, path, branch)
					if err != nil {
						original = nil
					}
				}

				var out bytes.Buffer
				if err := gitdiff.Apply(&out, bytes.NewReader(original), file); err != nil {
					return nil, fmt.Errorf("apply: applying diff to %s: %w", path, err)
				}

				message := patch.Title
				if message == "" {
					message = "apply patch " + patch.ID
				}
				if err := d.WriteGate.UpdateFile(ctx, job.WorkflowID, repo.Owner, repo.Name, path, branch, message, out.Bytes()); err != nil {
					if errors.Is(err, writegate.ErrNoApproval) {
						return nil, writegate.ErrNoApproval
					}
					return nil, fmt.Errorf("apply: update file %s: %w", path, err)
				}
				updated = append(updated, path)
			}
		}

		title := patchSet.Title
		if title == "" {
			title = "Automated changes for " + wf.FeatureGoal
		}
		prNumber, err := d.WriteGate.OpenPullRequest(ctx, job.WorkflowID, repo.Owner, repo.Name, branch, repo.BaseBranch, title, wf.FeatureGoal)
		if err != nil {
			if errors.Is(err, writegate.ErrNoApproval) {
				return nil, writegate.ErrNoApproval
			}
			return nil, fmt.Errorf("apply: open pull request: %w", err)
		}

		return map[string]interface{}{
			"branch":       branch,
			"prNumber":     prNumber,
			"updatedFiles": updated,
			"skippedFiles": skipped,
		}, nil
	}
}

// NewApplyWorker wires NewApplyFn into the deterministic-job harness.
func NewApplyWorker(d *Deps) *stageworker.DeterministicWorker {
	return stageworker.NewDeterministicWorker(domain.Stage("apply_patches"), d.Store, d.Runs, d.Pub, NewApplyFn(d), d.Logger)
}
