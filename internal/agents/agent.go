// Package agents implements the patches stage's specialist proposal
// service (§4.4.2): a registry of typed agents, candidate scoring, four
// merge strategies, and conflict detection/resolution producing a single
// PatchSet.
package agents

import (
	"context"
	"sort"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
)

// Type names a specialist's domain.
type Type string

const (
	TypeBackend  Type = "backend"
	TypeFrontend Type = "frontend"
	TypeTest     Type = "test"
	TypeReview   Type = "review"
	TypeDocs     Type = "docs"
	TypeRefactor Type = "refactor"
)

// Task describes one unit of proposed work an agent may pick up.
type Task struct {
	ID            string
	Type          Type
	Languages     []string
	TargetGlobs   []string
}

// Agent proposes a PatchSet for a task, given whatever patches prior
// agents in the coordination order have already produced (sequential
// strategy) or nil (parallel/priority/specialized).
type Agent interface {
	Type() Type
	SupportsLanguage(lang string) bool
	MatchesGlob(path string) bool
	// Confidence is the agent's self-reported confidence in [0,1] for task,
	// before the type/language/glob multipliers in ScoreCandidate are applied.
	Confidence(task Task) float64
	Propose(ctx context.Context, task Task, priorPatches []domain.Patch) (domain.PatchSet, error)
}

// Registry holds the available specialist agents.
type Registry struct {
	agents []Agent
}

func NewRegistry(agents ...Agent) *Registry {
	return &Registry{agents: agents}
}

func (r *Registry) All() []Agent { return r.agents }

// Candidate pairs an agent with its scored confidence for a task.
type Candidate struct {
	Agent      Agent
	Task       Task
	Confidence float64
}

// ScoreCandidate applies the §4.4.2 multiplier rules: ×1.2 if the task
// type maps to the agent's type, ×1.1 if the agent supports a detected
// language, ×1.1 if it matches a target glob, capped at 1.
func ScoreCandidate(agent Agent, task Task) float64 {
	score := agent.Confidence(task)
	if task.Type == agent.Type() {
		score *= 1.2
	}
	for _, lang := range task.Languages {
		if agent.SupportsLanguage(lang) {
			score *= 1.1
			break
		}
	}
	for _, glob := range task.TargetGlobs {
		if agent.MatchesGlob(glob) {
			score *= 1.1
			break
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

// RankCandidates scores every agent in the registry against task and
// returns them sorted by descending confidence.
func (r *Registry) RankCandidates(task Task) []Candidate {
	candidates := make([]Candidate, 0, len(r.agents))
	for _, a := range r.agents {
		candidates = append(candidates, Candidate{Agent: a, Task: task, Confidence: ScoreCandidate(a, task)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates
}
