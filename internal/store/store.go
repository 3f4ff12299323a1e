// Package store implements the persistence interfaces internal/stageworker,
// internal/runrecorder, internal/writegate, and internal/orchestrator depend
// on (§6, "Store: parametric repository operations on the entities of §3;
// transactions; per-workflow locking"). Two implementations are provided:
// an in-memory store for tests and the stub deployment profile, and a
// Postgres-backed store using pgx/v5 for production.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
)

// ErrNotFound is returned by lookups that find no matching row. Callers
// that need "missing" to mean something other than an error (e.g. "no
// prior artifact yet") check for it explicitly with errors.Is.
var ErrNotFound = errors.New("store: not found")

// Store is the full persistence surface the core depends on. It composes
// the narrower interfaces internal/stageworker, internal/runrecorder, and
// internal/writegate already declare against their own packages, plus the
// additional operations internal/orchestrator and internal/agents need.
type Store interface {
	// Workflow lifecycle.
	CreateWorkflow(ctx context.Context, wf domain.Workflow) error
	GetWorkflow(ctx context.Context, workflowID string) (*domain.Workflow, error)
	UpdateWorkflowState(ctx context.Context, workflowID string, state domain.State, stage domain.Stage) error
	SetStageStatus(ctx context.Context, workflowID string, status domain.StageStatus) error
	SetWorkflowFeedback(ctx context.Context, workflowID, feedback string) error
	SetBaseSha(ctx context.Context, workflowID, baseSha string) error

	// Artifacts (§3, append-only, versioned per (workflow, kind)).
	LatestArtifact(ctx context.Context, workflowID string, kind domain.ArtifactKind) (*domain.Artifact, error)
	InsertArtifact(ctx context.Context, artifact domain.Artifact) error

	// Events (audit trail and the hasPolicyBeenEvaluated derivation).
	AppendEvent(ctx context.Context, event domain.WorkflowEvent) error
	HasEventOfType(ctx context.Context, workflowID, eventType string) (bool, error)

	// Runs (§4.2).
	InsertRun(ctx context.Context, run domain.WorkflowRun) error
	UpdateRun(ctx context.Context, run domain.WorkflowRun) error
	FindRunsByInputHash(ctx context.Context, inputHash string) ([]domain.WorkflowRun, error)

	// Usage aggregation for internal/llm.CostTracker's budget ceilings
	// (§4.4.1).
	SumWorkflowUsage(ctx context.Context, workflowID string) (domain.Usage, error)
	SumUsageSince(ctx context.Context, since time.Time) (domain.Usage, error)

	// Approvals (§4.6, Gate1).
	InsertApproval(ctx context.Context, approval domain.Approval) error
	FindApproval(ctx context.Context, workflowID string, stage domain.Stage, kind domain.ApprovalKind) (*domain.Approval, error)

	// Policy violations (§4.3, Gate2). Replace is a delete-then-insert
	// inside one transaction, matching §5's "policy violation replacement
	// is a single DELETE ... followed by a bulk INSERT".
	ReplacePolicyViolations(ctx context.Context, patchSetID string, violations []domain.PolicyViolation) error
	HasBlockingPolicyViolations(ctx context.Context, patchSetID string) (bool, error)

	// WithWorkflowLock runs fn with an exclusive per-workflow lock held for
	// its duration (§5, "logically single-writer per workflow"). The
	// orchestrator wraps its entire load-decide-persist cycle in one call.
	WithWorkflowLock(ctx context.Context, workflowID string, fn func(ctx context.Context) error) error
}
