// Package api provides the HTTP surface for the external interfaces named
// in §6: CreateWorkflow, ApproveStage, RejectStage, and RequestChanges.
// Every handler translates a request into exactly the orchestrator
// primitives those inbound events describe — starting an
// OrchestratorWorkflow execution, or recording an Approval and signaling
// one — and never touches the pure transition logic directly.
package api

import "github.com/fyrsmithlabs/workflowforge/internal/domain"

// CreateWorkflowRequest is the request body for POST /api/v1/workflows.
type CreateWorkflowRequest struct {
	FeatureGoal           string      `json:"featureGoal"`
	BusinessJustification string      `json:"businessJustification"`
	Repos                 []RepoInput `json:"repos"`
}

// RepoInput names one code-host target a workflow proposes changes
// against.
type RepoInput struct {
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	BaseBranch string `json:"baseBranch"`
	Role       string `json:"role,omitempty"`
}

// CreateWorkflowResponse is the response body for POST /api/v1/workflows.
type CreateWorkflowResponse struct {
	WorkflowID string `json:"workflowId"`
}

// WorkflowResponse is the response body for GET /api/v1/workflows/:id.
type WorkflowResponse struct {
	ID                    string        `json:"id"`
	State                 domain.State  `json:"state"`
	Stage                 domain.Stage  `json:"stage"`
	StageStatus           string        `json:"stageStatus"`
	FeatureGoal           string        `json:"featureGoal"`
	BusinessJustification string        `json:"businessJustification"`
	Repos                 []domain.Repo `json:"repos"`
	Feedback              string        `json:"feedback,omitempty"`
	BaseSha               string        `json:"baseSha,omitempty"`
}

// ArtifactResponse is the response body for
// GET /api/v1/workflows/:id/artifacts/:kind.
type ArtifactResponse struct {
	Kind            domain.ArtifactKind `json:"kind"`
	Content         string              `json:"content"`
	ContentSha      string              `json:"contentSha"`
	ArtifactVersion int                 `json:"artifactVersion"`
}

// StageActionRequest is the request body shared by the approve, reject,
// and changes-requested endpoints; only the fields relevant to the
// specific action are populated by the client.
type StageActionRequest struct {
	Reason  string `json:"reason,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Store    string `json:"store"`
	Temporal string `json:"temporal"`
}
