package writegate

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/workflowforge/internal/codehost"
	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	createBranchCalled bool
}

func (f *fakeClient) GetFileContents(context.Context, string, string, string, string) ([]byte, error) {
	return nil, nil
}
func (f *fakeClient) GetBranch(context.Context, string, string, string) (string, error) {
	return "", nil
}
func (f *fakeClient) ListWorkflowRuns(context.Context, string, string, string) ([]codehost.WorkflowRun, error) {
	return nil, nil
}
func (f *fakeClient) CreateBranch(context.Context, string, string, string, string) error {
	f.createBranchCalled = true
	return nil
}
func (f *fakeClient) UpdateFile(context.Context, string, string, string, string, string, []byte) error {
	return nil
}
func (f *fakeClient) OpenPullRequest(context.Context, string, string, string, string, string, string) (int, error) {
	return 7, nil
}
func (f *fakeClient) DispatchWorkflow(context.Context, string, string, string, string, string, map[string]interface{}) error {
	return nil
}

type fakeApprovalStore struct {
	approval *domain.Approval
}

func (f *fakeApprovalStore) FindApproval(context.Context, string, domain.Stage, domain.ApprovalKind) (*domain.Approval, error) {
	return f.approval, nil
}

func TestGate_CreateBranch_BlockedWithoutApproval(t *testing.T) {
	gate := New(&fakeClient{}, &fakeApprovalStore{approval: nil})

	err := gate.CreateBranch(context.Background(), "wf-1", "acme", "repo", "feature/x", "abc123")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoApproval))
	assert.Contains(t, err.Error(), "WRITE_BLOCKED_NO_APPROVAL")
}

func TestGate_CreateBranch_DelegatesWithApproval(t *testing.T) {
	client := &fakeClient{}
	gate := New(client, &fakeApprovalStore{approval: &domain.Approval{Kind: domain.ApprovalApplyPatches}})

	err := gate.CreateBranch(context.Background(), "wf-1", "acme", "repo", "feature/x", "abc123")

	require.NoError(t, err)
	assert.True(t, client.createBranchCalled)
}

func TestGate_OpenPullRequest_BlockedWithoutApproval(t *testing.T) {
	gate := New(&fakeClient{}, &fakeApprovalStore{approval: nil})

	_, err := gate.OpenPullRequest(context.Background(), "wf-1", "acme", "repo", "feature/x", "main", "title", "body")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoApproval))
}
