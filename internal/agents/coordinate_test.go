package agents

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/stretchr/testify/require"
)

// fakeAgent is a scripted Agent for coordination/merge tests, avoiding any
// LLM call.
type fakeAgent struct {
	kind  Type
	langs []string
	globs []string
	conf  float64
	set   domain.PatchSet
	err   error
}

func (f *fakeAgent) Type() Type { return f.kind }
func (f *fakeAgent) SupportsLanguage(lang string) bool {
	for _, l := range f.langs {
		if l == lang {
			return true
		}
	}
	return false
}
func (f *fakeAgent) MatchesGlob(path string) bool {
	for _, g := range f.globs {
		if g == path {
			return true
		}
	}
	return false
}
func (f *fakeAgent) Confidence(task Task) float64 { return f.conf }
func (f *fakeAgent) Propose(ctx context.Context, task Task, prior []domain.Patch) (domain.PatchSet, error) {
	return f.set, f.err
}

func patchSet(title string, patches ...domain.Patch) domain.PatchSet {
	return domain.PatchSet{Title: title, Status: domain.PatchSetProposed, Patches: patches}
}

func patch(taskRef, title string, files ...domain.FileChange) domain.Patch {
	return domain.Patch{TaskRef: taskRef, Title: title, Files: files, RiskLevel: domain.RiskLow}
}

func TestScoreCandidate_AppliesMultipliersAndCaps(t *testing.T) {
	a := &fakeAgent{kind: TypeBackend, langs: []string{"go"}, globs: []string{"internal/foo.go"}, conf: 0.8}
	task := Task{Type: TypeBackend, Languages: []string{"go"}, TargetGlobs: []string{"internal/foo.go"}}

	score := ScoreCandidate(a, task)
	require.Equal(t, 1.0, score, "0.8 * 1.2 * 1.1 * 1.1 exceeds 1 and must be capped")
}

func TestRankCandidates_OrdersByDescendingConfidence(t *testing.T) {
	r := NewRegistry(
		&fakeAgent{kind: TypeDocs, conf: 0.3},
		&fakeAgent{kind: TypeBackend, conf: 0.6},
	)
	ranked := r.RankCandidates(Task{Type: TypeBackend})
	require.Len(t, ranked, 2)
	require.Equal(t, TypeBackend, ranked[0].Agent.Type())
}

func TestCoordinateParallel_RunsAllTasks(t *testing.T) {
	backend := &fakeAgent{kind: TypeBackend, conf: 0.9, set: patchSet("backend change", patch("t1", "backend change"))}
	r := NewRegistry(backend)

	proposals, err := r.Coordinate(context.Background(), StrategyParallel, []Task{{ID: "t1", Type: TypeBackend}})
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	require.Equal(t, "t1", proposals[0].Task.ID)
}

func TestCoordinateSequential_PassesPriorPatchesForward(t *testing.T) {
	var seenPrior [][]domain.Patch
	recorder := &recordingAgent{kind: TypeBackend, seen: &seenPrior, set: patchSet("s", patch("t", "s"))}
	r := NewRegistry(recorder)

	_, err := r.Coordinate(context.Background(), StrategySequential, []Task{{ID: "t1", Type: TypeBackend}, {ID: "t2", Type: TypeBackend}})
	require.NoError(t, err)
	require.Len(t, seenPrior, 2)
	require.Empty(t, seenPrior[0])
	require.Len(t, seenPrior[1], 1, "second call should see the first proposal's patch")
}

type recordingAgent struct {
	kind Type
	seen *[][]domain.Patch
	set  domain.PatchSet
}

func (r *recordingAgent) Type() Type                          { return r.kind }
func (r *recordingAgent) SupportsLanguage(lang string) bool    { return false }
func (r *recordingAgent) MatchesGlob(path string) bool         { return false }
func (r *recordingAgent) Confidence(task Task) float64         { return 0.9 }
func (r *recordingAgent) Propose(ctx context.Context, task Task, prior []domain.Patch) (domain.PatchSet, error) {
	*r.seen = append(*r.seen, prior)
	return r.set, nil
}

func TestCoordinatePriority_LowerPriorityAgentSkipsClaimedFiles(t *testing.T) {
	high := &fakeAgent{kind: TypeBackend, conf: 0.9, set: patchSet("high", patch("t1", "high", domain.FileChange{Path: "a.go"}))}
	low := &fakeAgent{kind: TypeDocs, conf: 0.2, set: patchSet("low", patch("t2", "low", domain.FileChange{Path: "a.go"}))}
	r := NewRegistry(high, low)

	tasks := []Task{
		{ID: "t1", Type: TypeBackend, TargetGlobs: []string{"a.go"}},
		{ID: "t2", Type: TypeDocs, TargetGlobs: []string{"a.go"}},
	}
	proposals, err := r.Coordinate(context.Background(), StrategyPriority, tasks)
	require.NoError(t, err)
	require.Len(t, proposals, 1, "the second task's only target file was already claimed by the higher-confidence first task")
}

func TestCoordinateSpecialized_PartitionsByFileKind(t *testing.T) {
	backend := &fakeAgent{kind: TypeBackend, conf: 0.5, set: patchSet("backend", patch("t1", "backend"))}
	docs := &fakeAgent{kind: TypeDocs, conf: 0.5, set: patchSet("docs", patch("t1", "docs"))}
	r := NewRegistry(backend, docs)

	tasks := []Task{{ID: "t1", Type: TypeBackend, TargetGlobs: []string{"internal/foo.go", "README.md"}}}
	proposals, err := r.Coordinate(context.Background(), StrategySpecialized, tasks)
	require.NoError(t, err)
	require.Len(t, proposals, 2, "one proposal per partition (backend file, docs file)")
}

func TestDetectConflicts_ClassifiesDeletionOverModification(t *testing.T) {
	a := Proposal{Agent: &fakeAgent{kind: TypeBackend}, Set: patchSet("a", patch("t1", "a", domain.FileChange{Path: "x.go", Action: domain.PatchActionDelete}))}
	b := Proposal{Agent: &fakeAgent{kind: TypeRefactor}, Set: patchSet("b", patch("t2", "b", domain.FileChange{Path: "x.go", Action: domain.PatchActionModify}))}

	conflicts := DetectConflicts([]Proposal{a, b})
	require.Len(t, conflicts, 1)
	require.Equal(t, ConflictDeletion, conflicts[0].Type)
}

func TestMerge_DedupesByTaskIDAndConcatenatesTitles(t *testing.T) {
	a := Proposal{Agent: &fakeAgent{kind: TypeBackend}, Set: patchSet("backend title", patch("shared-task", "backend version"))}
	b := Proposal{Agent: &fakeAgent{kind: TypeRefactor}, Set: patchSet("refactor title", patch("shared-task", "refactor version"))}

	merged, conflicts := Merge([]Proposal{a, b}, "deadbeef", ResolutionFirstWins)
	require.Empty(t, conflicts, "no file overlap, only a task id collision")
	require.Len(t, merged.Patches, 1, "first occurrence of shared-task wins")
	require.Equal(t, "backend version", merged.Patches[0].Title)
	require.Contains(t, merged.Title, "backend title")
	require.Contains(t, merged.Title, "refactor title")
}

func TestMerge_FirstWinsDropsFileFromLaterPatch(t *testing.T) {
	a := Proposal{Agent: &fakeAgent{kind: TypeBackend}, Set: patchSet("a", patch("t1", "a", domain.FileChange{Path: "shared.go"}))}
	b := Proposal{Agent: &fakeAgent{kind: TypeRefactor}, Set: patchSet("b", patch("t2", "b", domain.FileChange{Path: "shared.go"}))}

	merged, conflicts := Merge([]Proposal{a, b}, "", ResolutionFirstWins)
	require.Len(t, conflicts, 1)
	require.Len(t, merged.Patches, 1, "the later patch's only file was claimed, so it is dropped entirely")
	require.Equal(t, "t1", merged.Patches[0].TaskRef)
}

func TestMerge_HighestConfidenceAliasesFirstWins(t *testing.T) {
	a := Proposal{Agent: &fakeAgent{kind: TypeBackend}, Set: patchSet("a", patch("t1", "a", domain.FileChange{Path: "shared.go"}))}
	b := Proposal{Agent: &fakeAgent{kind: TypeRefactor}, Set: patchSet("b", patch("t2", "b", domain.FileChange{Path: "shared.go"}))}

	firstWins, _ := Merge([]Proposal{a, b}, "", ResolutionFirstWins)
	aliased, _ := Merge([]Proposal{a, b}, "", ResolutionHighestConfidence)
	require.Equal(t, firstWins.Patches, aliased.Patches)
}
