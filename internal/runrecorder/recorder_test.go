package runrecorder

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	runs map[string]domain.WorkflowRun
}

func newFakeStore() *fakeStore {
	return &fakeStore{runs: map[string]domain.WorkflowRun{}}
}

func (f *fakeStore) InsertRun(_ context.Context, run domain.WorkflowRun) error {
	f.runs[run.ID] = run
	return nil
}

func (f *fakeStore) UpdateRun(_ context.Context, run domain.WorkflowRun) error {
	existing := f.runs[run.ID]
	existing.Status = run.Status
	existing.Outputs = run.Outputs
	existing.ErrorMsg = run.ErrorMsg
	existing.Usage = run.Usage
	existing.EndedAt = run.EndedAt
	existing.DurationMs = run.DurationMs
	f.runs[run.ID] = existing
	return nil
}

func (f *fakeStore) FindRunsByInputHash(_ context.Context, hash string) ([]domain.WorkflowRun, error) {
	var out []domain.WorkflowRun
	for _, run := range f.runs {
		if run.InputHash == hash {
			out = append(out, run)
		}
	}
	return out, nil
}

func TestRecorder_StartCompleteRun(t *testing.T) {
	store := newFakeStore()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := New(store, func() time.Time { return clock })

	runID, err := rec.StartRun(context.Background(), "w1", "evaluate_policy", map[string]interface{}{"patchSetId": "ps1"})
	require.NoError(t, err)

	started := clock
	clock = clock.Add(2 * time.Second)
	require.NoError(t, rec.CompleteRun(context.Background(), runID, started, map[string]interface{}{"ok": true}, domain.Usage{}))

	got := store.runs[runID]
	assert.Equal(t, domain.RunCompleted, got.Status)
	assert.Equal(t, int64(2000), got.DurationMs)
}

func TestRecorder_FailRun(t *testing.T) {
	store := newFakeStore()
	rec := New(store, nil)

	runID, err := rec.StartRun(context.Background(), "w1", "apply_patches", map[string]interface{}{"patchSetId": "ps1"})
	require.NoError(t, err)

	require.NoError(t, rec.FailRun(context.Background(), runID, time.Now(), "WRITE_BLOCKED_NO_APPROVAL"))

	got := store.runs[runID]
	assert.Equal(t, domain.RunFailed, got.Status)
	assert.Equal(t, "WRITE_BLOCKED_NO_APPROVAL", got.ErrorMsg)
}

func TestHashInputs_StableUnderKeyReordering(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": "x", "c": nil}
	b := map[string]interface{}{"a": "x", "b": 1}

	ha, err := HashInputs(a)
	require.NoError(t, err)
	hb, err := HashInputs(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb, "unset fields must be stripped and key order must not matter")
}

func TestHashInputs_DiffersOnDifferentValues(t *testing.T) {
	ha, _ := HashInputs(map[string]interface{}{"a": 1})
	hb, _ := HashInputs(map[string]interface{}{"a": 2})
	assert.NotEqual(t, ha, hb)
}

func TestCanonicalize_NestedStructures(t *testing.T) {
	v := map[string]interface{}{
		"list": []interface{}{
			map[string]interface{}{"z": 1, "a": 2, "unset": nil},
			"x",
		},
		"top": nil,
	}
	out, err := Canonicalize(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"list":[{"a":2,"z":1},"x"]}`, out)
}
