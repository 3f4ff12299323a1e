// Package writegate implements Gate1 (§4.6): every mutating call into the
// code host must be preceded by a recorded human approval. The gate wraps
// codehost.Client and refuses to delegate a write until the approval store
// proves one exists; the well-known WriteBlockedNoApproval error is what
// routes a stage worker's failure into BLOCKED_POLICY instead of FAILED
// (see internal/workflow.Transition).
package writegate

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/workflowforge/internal/codehost"
	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/workflow"
)

// ErrNoApproval is wrapped into the WriteBlockedNoApproval sentinel message
// so callers can both pattern-match with errors.Is and surface the exact
// well-known string the transition function expects.
var ErrNoApproval = errors.New(workflow.WriteBlockedNoApproval)

// ApprovalStore is the narrow read used to check an approval exists.
type ApprovalStore interface {
	FindApproval(ctx context.Context, workflowID string, stage domain.Stage, kind domain.ApprovalKind) (*domain.Approval, error)
}

// Gate wraps a codehost.Client so every write method first confirms a
// matching apply_patches approval was recorded for the given workflow.
type Gate struct {
	client    codehost.Client
	approvals ApprovalStore
}

func New(client codehost.Client, approvals ApprovalStore) *Gate {
	return &Gate{client: client, approvals: approvals}
}

func (g *Gate) requireApproval(ctx context.Context, workflowID string, stage domain.Stage) error {
	approval, err := g.approvals.FindApproval(ctx, workflowID, stage, domain.ApprovalApplyPatches)
	if err != nil {
		return fmt.Errorf("writegate: checking approval: %w", err)
	}
	if approval == nil {
		return fmt.Errorf("writegate: workflow %s stage %s: %w", workflowID, stage, ErrNoApproval)
	}
	return nil
}

// CreateBranch, UpdateFile, OpenPullRequest, and DispatchWorkflow are the
// four write operations the apply_patches and pr stages invoke; each is
// gated on an apply_patches approval for the given workflow before
// delegating to the underlying codehost.Client.

func (g *Gate) CreateBranch(ctx context.Context, workflowID string, owner, repo, branch, fromSha string) error {
	if err := g.requireApproval(ctx, workflowID, domain.StagePatches); err != nil {
		return err
	}
	return g.client.CreateBranch(ctx, owner, repo, branch, fromSha)
}

func (g *Gate) UpdateFile(ctx context.Context, workflowID string, owner, repo, path, branch, message string, content []byte) error {
	if err := g.requireApproval(ctx, workflowID, domain.StagePatches); err != nil {
		return err
	}
	return g.client.UpdateFile(ctx, owner, repo, path, branch, message, content)
}

func (g *Gate) OpenPullRequest(ctx context.Context, workflowID string, owner, repo, head, base, title, body string) (int, error) {
	if err := g.requireApproval(ctx, workflowID, domain.StagePatches); err != nil {
		return 0, err
	}
	return g.client.OpenPullRequest(ctx, owner, repo, head, base, title, body)
}

func (g *Gate) DispatchWorkflow(ctx context.Context, workflowID string, owner, repo, workflowFile, ref string, inputs map[string]interface{}) error {
	if err := g.requireApproval(ctx, workflowID, domain.StagePatches); err != nil {
		return err
	}
	return g.client.DispatchWorkflow(ctx, owner, repo, workflowFile, ref, inputs)
}
