package agents

import (
	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/google/uuid"
)

// ConflictResolution names how Merge settles a file touched by more than
// one proposal.
type ConflictResolution string

const (
	// ResolutionFirstWins keeps the file in the first patch set that
	// touched it (in proposal iteration order) and drops it from later
	// ones. This is the default and is also what "highest-confidence"
	// aliases to (§9): proposals already arrive ordered by confidence for
	// the priority/specialized strategies, so "first" already means
	// "most confident" in those cases.
	ResolutionFirstWins ConflictResolution = "first-wins"
	// ResolutionHighestConfidence is a literal alias of ResolutionFirstWins
	// (§9 open question decision, recorded in DESIGN.md).
	ResolutionHighestConfidence ConflictResolution = "highest-confidence"
	ResolutionLastWins          ConflictResolution = "last-wins"
	ResolutionManual            ConflictResolution = "manual"
)

// normalizeResolution collapses the highest-confidence alias onto
// first-wins so callers only need to switch on two concrete behaviors
// plus manual.
func normalizeResolution(r ConflictResolution) ConflictResolution {
	if r == ResolutionHighestConfidence {
		return ResolutionFirstWins
	}
	return r
}

// ConflictType classifies what kind of overlap a file saw across proposals.
type ConflictType string

const (
	ConflictDeletion     ConflictType = "deletion"
	ConflictModification ConflictType = "modification"
	ConflictOverlap      ConflictType = "overlap"
)

// PatchConflict records that more than one agent touched the same file.
type PatchConflict struct {
	File       string
	Agents     []Type
	Type       ConflictType
	Resolution ConflictResolution
}

// DetectConflicts collects, for every file touched across proposals, the
// set of agents that touched it, and classifies the conflict: deletion if
// any agent deletes the file, else modification if any agent modifies it,
// else overlap (e.g. two creates).
func DetectConflicts(proposals []Proposal) []PatchConflict {
	type touch struct {
		agents    []Type
		anyDelete bool
		anyModify bool
	}
	byFile := map[string]*touch{}
	order := []string{}

	for _, p := range proposals {
		for _, patch := range p.Set.Patches {
			for _, f := range patch.Files {
				t, ok := byFile[f.Path]
				if !ok {
					t = &touch{}
					byFile[f.Path] = t
					order = append(order, f.Path)
				}
				t.agents = append(t.agents, p.Agent.Type())
				if f.Action == domain.PatchActionDelete {
					t.anyDelete = true
				}
				if f.Action == domain.PatchActionModify {
					t.anyModify = true
				}
			}
		}
	}

	var conflicts []PatchConflict
	for _, file := range order {
		t := byFile[file]
		if len(uniqueTypes(t.agents)) < 2 {
			continue
		}
		ctype := ConflictOverlap
		switch {
		case t.anyDelete:
			ctype = ConflictDeletion
		case t.anyModify:
			ctype = ConflictModification
		}
		conflicts = append(conflicts, PatchConflict{
			File:       file,
			Agents:     uniqueTypes(t.agents),
			Type:       ctype,
			Resolution: ResolutionFirstWins,
		})
	}
	return conflicts
}

func uniqueTypes(ts []Type) []Type {
	seen := map[Type]bool{}
	var out []Type
	for _, t := range ts {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Merge combines every proposal into a single PatchSet: the title
// concatenates contributing titles, patches are deduplicated by task id
// (first occurrence wins), and conflicting files are resolved per
// resolution (default first-wins: the first patch set in iteration order
// keeps the file, later patches drop it).
func Merge(proposals []Proposal, baseSha string, resolution ConflictResolution) (domain.PatchSet, []PatchConflict) {
	resolution = normalizeResolution(resolution)
	conflicts := DetectConflicts(proposals)
	conflictFiles := map[string]bool{}
	for _, c := range conflicts {
		conflictFiles[c.File] = true
	}

	merged := domain.PatchSet{
		ID:      uuid.NewString(),
		BaseSha: baseSha,
		Status:  domain.PatchSetProposed,
	}

	seenTask := map[string]bool{}
	ownedFile := map[string]bool{} // already kept by an earlier patch under first-wins

	order := proposals
	if resolution == ResolutionLastWins {
		order = reverseProposals(proposals)
	}

	var titles []string
	for _, p := range order {
		titles = append(titles, p.Set.Title)
		for _, patch := range p.Set.Patches {
			if seenTask[patch.TaskRef] {
				continue
			}
			seenTask[patch.TaskRef] = true

			if resolution != ResolutionManual {
				keep := keepFiles(patch.Files, conflictFiles, ownedFile)
				if len(keep) == 0 && len(patch.Files) > 0 {
					// Every file this patch touches was already claimed
					// by an earlier (higher-priority) patch; drop it.
					continue
				}
				patch.Files = keep
				for _, f := range keep {
					ownedFile[f.Path] = true
				}
			}
			merged.Patches = append(merged.Patches, patch)
		}
	}

	if resolution == ResolutionLastWins {
		merged.Patches = reversePatches(merged.Patches)
	}

	merged.Title = joinTitles(titles)
	return merged, conflicts
}

func keepFiles(files []domain.FileChange, conflictFiles, owned map[string]bool) []domain.FileChange {
	var keep []domain.FileChange
	for _, f := range files {
		if conflictFiles[f.Path] && owned[f.Path] {
			continue // a higher-priority patch already claimed this file
		}
		keep = append(keep, f)
	}
	return keep
}

func reverseProposals(in []Proposal) []Proposal {
	out := make([]Proposal, len(in))
	for i, p := range in {
		out[len(in)-1-i] = p
	}
	return out
}

func reversePatches(in []domain.Patch) []domain.Patch {
	out := make([]domain.Patch, len(in))
	for i, p := range in {
		out[len(in)-1-i] = p
	}
	return out
}

func joinTitles(titles []string) string {
	seen := map[string]bool{}
	var out string
	for _, t := range titles {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		if out != "" {
			out += "; "
		}
		out += t
	}
	return out
}
