package stageworker

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	wf        *domain.Workflow
	statuses  []domain.StageStatus
	artifacts []domain.Artifact
	events    []domain.WorkflowEvent
}

func (f *fakeStore) GetWorkflow(context.Context, string) (*domain.Workflow, error) { return f.wf, nil }
func (f *fakeStore) SetStageStatus(_ context.Context, _ string, status domain.StageStatus) error {
	f.statuses = append(f.statuses, status)
	return nil
}
func (f *fakeStore) LatestArtifact(context.Context, string, domain.ArtifactKind) (*domain.Artifact, error) {
	return nil, nil
}
func (f *fakeStore) InsertArtifact(_ context.Context, a domain.Artifact) error {
	f.artifacts = append(f.artifacts, a)
	return nil
}
func (f *fakeStore) AppendEvent(_ context.Context, e domain.WorkflowEvent) error {
	f.events = append(f.events, e)
	return nil
}

type fakeRuns struct {
	completed bool
	failed    bool
}

func (f *fakeRuns) StartRun(context.Context, string, string, map[string]interface{}) (string, error) {
	return "run-1", nil
}
func (f *fakeRuns) CompleteRun(context.Context, string, time.Time, map[string]interface{}, domain.Usage) error {
	f.completed = true
	return nil
}
func (f *fakeRuns) FailRun(context.Context, string, time.Time, string) error {
	f.failed = true
	return nil
}

type fakePublisher struct {
	completedStage domain.Stage
	failedStage    domain.Stage
}

func (f *fakePublisher) PublishJobCompleted(_ context.Context, _ string, stage domain.Stage, _ map[string]interface{}) error {
	f.completedStage = stage
	return nil
}
func (f *fakePublisher) PublishJobFailed(_ context.Context, _ string, stage domain.Stage, _ string) error {
	f.failedStage = stage
	return nil
}
func (f *fakePublisher) PublishPolicyEvaluated(_ context.Context, _ string, _ bool) error {
	return nil
}

func TestWorker_Process_Success(t *testing.T) {
	store := &fakeStore{wf: &domain.Workflow{ID: "wf-1"}}
	runs := &fakeRuns{}
	pub := &fakePublisher{}
	produce := func(ctx context.Context, job Job, prior *domain.Artifact) (string, map[string]interface{}, domain.Usage, error) {
		return `{"ok":true}`, map[string]interface{}{"ok": true}, domain.Usage{}, nil
	}
	w := NewWorker(domain.StageFeasibility, domain.ArtifactFeasibilityV1, store, runs, pub, produce, nil)

	err := w.Process(context.Background(), Job{WorkflowID: "wf-1", Stage: domain.StageFeasibility})

	require.NoError(t, err)
	require.Len(t, store.artifacts, 1)
	assert.Equal(t, 1, store.artifacts[0].ArtifactVersion)
	assert.Contains(t, store.statuses, domain.StageStatusReady)
	assert.True(t, runs.completed)
	assert.Equal(t, domain.StageFeasibility, pub.completedStage)
}

func TestWorker_Process_ProducerFailureBlocksStage(t *testing.T) {
	store := &fakeStore{wf: &domain.Workflow{ID: "wf-1"}}
	runs := &fakeRuns{}
	pub := &fakePublisher{}
	produce := func(ctx context.Context, job Job, prior *domain.Artifact) (string, map[string]interface{}, domain.Usage, error) {
		return "", nil, domain.Usage{}, NewStageError("produce_artifact", SeverityCritical, assertErr, "")
	}
	w := NewWorker(domain.StagePatches, domain.ArtifactPatchSetV1, store, runs, pub, produce, nil)

	err := w.Process(context.Background(), Job{WorkflowID: "wf-1", Stage: domain.StagePatches})

	require.Error(t, err)
	assert.Contains(t, store.statuses, domain.StageStatusBlocked)
	assert.True(t, runs.failed)
	assert.Equal(t, domain.StagePatches, pub.failedStage)
	assert.Empty(t, store.artifacts)
}

func TestWorker_Process_MissingWorkflowFailsFast(t *testing.T) {
	store := &fakeStore{wf: nil}
	w := NewWorker(domain.StageFeasibility, domain.ArtifactFeasibilityV1, store, &fakeRuns{}, &fakePublisher{}, nil, nil)

	err := w.Process(context.Background(), Job{WorkflowID: "missing"})

	require.Error(t, err)
}

var assertErr = assertErrType{}

type assertErrType struct{}

func (assertErrType) Error() string { return "boom" }
