package agents

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Strategy names one of the four coordination modes §4.4.2 enumerates.
type Strategy string

const (
	StrategyParallel    Strategy = "parallel"
	StrategySequential   Strategy = "sequential"
	StrategyPriority     Strategy = "priority"
	StrategySpecialized  Strategy = "specialized"
)

// Proposal is one agent's output for one task: a PatchSet candidate before
// merging and Gate2 evaluation (GLOSSARY, "Proposal").
type Proposal struct {
	Agent Agent
	Task  Task
	Set   domain.PatchSet
}

// Coordinate dispatches tasks to the registry's agents under strategy and
// returns every proposal produced, in the order the strategy ran them.
// Errors from individual agents are collected but do not stop the other
// proposals from being attempted, matching "run all candidates" semantics
// for parallel/priority/specialized; sequential stops at the first error
// since later agents depend on earlier output.
func (r *Registry) Coordinate(ctx context.Context, strategy Strategy, tasks []Task) ([]Proposal, error) {
	switch strategy {
	case StrategySequential:
		return r.coordinateSequential(ctx, tasks)
	case StrategyPriority:
		return r.coordinatePriority(ctx, tasks)
	case StrategySpecialized:
		return r.coordinateSpecialized(ctx, tasks)
	case StrategyParallel, "":
		return r.coordinateParallel(ctx, tasks)
	default:
		return nil, fmt.Errorf("agents: unknown strategy %q", strategy)
	}
}

// coordinateParallel runs every task against its top-ranked agent
// concurrently over the full file set; conflicts across the resulting
// proposals are resolved later by Merge.
func (r *Registry) coordinateParallel(ctx context.Context, tasks []Task) ([]Proposal, error) {
	results := make([]*Proposal, len(tasks))
	var mu sync.Mutex
	var firstErr error

	var g errgroup.Group
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			candidates := r.RankCandidates(task)
			if len(candidates) == 0 {
				err := fmt.Errorf("agents: no candidate for task %s", task.ID)
				mu.Lock()
				firstErr = firstErrOr(firstErr, err)
				mu.Unlock()
				return nil
			}
			top := candidates[0].Agent
			set, err := top.Propose(ctx, task, nil)
			if err != nil {
				mu.Lock()
				firstErr = firstErrOr(firstErr, fmt.Errorf("agents: %s proposing for task %s: %w", top.Type(), task.ID, err))
				mu.Unlock()
				return nil
			}
			results[i] = &Proposal{Agent: top, Task: task, Set: set}
			return nil
		})
	}
	_ = g.Wait() // each goroutine reports its own error via firstErr instead of returning one, so a failed proposal never cancels its siblings

	var proposals []Proposal
	for _, p := range results {
		if p != nil {
			proposals = append(proposals, *p)
		}
	}
	return proposals, firstErr
}

// coordinateSequential runs tasks one after another; each subsequent
// agent sees the patches proposed so far as extra context (§4.4.2).
func (r *Registry) coordinateSequential(ctx context.Context, tasks []Task) ([]Proposal, error) {
	var proposals []Proposal
	var prior []domain.Patch
	for _, task := range tasks {
		candidates := r.RankCandidates(task)
		if len(candidates) == 0 {
			return proposals, fmt.Errorf("agents: no candidate for task %s", task.ID)
		}
		top := candidates[0].Agent
		set, err := top.Propose(ctx, task, prior)
		if err != nil {
			return proposals, fmt.Errorf("agents: %s proposing for task %s: %w", top.Type(), task.ID, err)
		}
		proposals = append(proposals, Proposal{Agent: top, Task: task, Set: set})
		prior = append(prior, set.Patches...)
	}
	return proposals, nil
}

// coordinatePriority sorts candidates by validation confidence descending
// and, for each task, dispatches to the highest-confidence agent that has
// not already claimed one of the task's target files.
func (r *Registry) coordinatePriority(ctx context.Context, tasks []Task) ([]Proposal, error) {
	claimed := map[string]bool{} // file path -> already handled by a higher-priority agent

	type scored struct {
		task  Task
		score float64
	}
	order := make([]scored, len(tasks))
	for i, t := range tasks {
		candidates := r.RankCandidates(t)
		top := 0.0
		if len(candidates) > 0 {
			top = candidates[0].Confidence
		}
		order[i] = scored{task: t, score: top}
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].score > order[j].score })

	var proposals []Proposal
	var firstErr error
	for _, o := range order {
		task := o.task
		if allClaimed(task.TargetGlobs, claimed) {
			continue
		}
		candidates := r.RankCandidates(task)
		if len(candidates) == 0 {
			firstErr = firstErrOr(firstErr, fmt.Errorf("agents: no candidate for task %s", task.ID))
			continue
		}
		top := candidates[0].Agent
		set, err := top.Propose(ctx, task, nil)
		if err != nil {
			firstErr = firstErrOr(firstErr, fmt.Errorf("agents: %s proposing for task %s: %w", top.Type(), task.ID, err))
			continue
		}
		for _, p := range set.Patches {
			for _, f := range p.Files {
				claimed[f.Path] = true
			}
		}
		proposals = append(proposals, Proposal{Agent: top, Task: task, Set: set})
	}
	return proposals, firstErr
}

func allClaimed(globs []string, claimed map[string]bool) bool {
	if len(globs) == 0 {
		return false
	}
	for _, g := range globs {
		if !claimed[g] {
			return false
		}
	}
	return true
}

func firstErrOr(existing, candidate error) error {
	if existing != nil {
		return existing
	}
	return candidate
}

// fileKind classifies a target file for the specialized strategy's
// partitioning. Order matters: test and docs checks run before the
// broader frontend/backend checks so e.g. a "*_test.go" under a frontend
// tree still routes to the test agent.
func fileKind(path string) Type {
	switch {
	case hasAnySuffix(path, "_test.go", ".test.ts", ".test.tsx", ".spec.ts"):
		return TypeTest
	case hasAnySuffix(path, ".md", ".mdx"):
		return TypeDocs
	case hasAnySuffix(path, ".tsx", ".jsx", ".css", ".scss", ".vue"):
		return TypeFrontend
	default:
		return TypeBackend
	}
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if len(s) >= len(suf) && s[len(s)-len(suf):] == suf {
			return true
		}
	}
	return false
}

// coordinateSpecialized partitions each task's target files by type
// (frontend/backend/test/docs/other) and dispatches each partition to the
// matching agent type, so one task can yield multiple proposals if its
// globs span more than one partition.
func (r *Registry) coordinateSpecialized(ctx context.Context, tasks []Task) ([]Proposal, error) {
	byType := map[Type][]Agent{}
	for _, a := range r.agents {
		byType[a.Type()] = append(byType[a.Type()], a)
	}

	var proposals []Proposal
	var firstErr error
	for _, task := range tasks {
		partitions := map[Type][]string{}
		for _, glob := range task.TargetGlobs {
			k := fileKind(glob)
			partitions[k] = append(partitions[k], glob)
		}
		if len(partitions) == 0 {
			partitions[task.Type] = nil
		}

		for kind, globs := range partitions {
			agentsOfKind := byType[kind]
			if len(agentsOfKind) == 0 {
				agentsOfKind = r.agents
			}
			subtask := task
			subtask.Type = kind
			subtask.TargetGlobs = globs

			var best Agent
			var bestScore float64 = -1
			for _, a := range agentsOfKind {
				s := ScoreCandidate(a, subtask)
				if s > bestScore {
					bestScore, best = s, a
				}
			}
			if best == nil {
				firstErr = firstErrOr(firstErr, fmt.Errorf("agents: no %s agent available for task %s", kind, task.ID))
				continue
			}
			set, err := best.Propose(ctx, subtask, nil)
			if err != nil {
				firstErr = firstErrOr(firstErr, fmt.Errorf("agents: %s proposing for task %s: %w", best.Type(), task.ID, err))
				continue
			}
			proposals = append(proposals, Proposal{Agent: best, Task: subtask, Set: set})
		}
	}
	return proposals, firstErr
}
