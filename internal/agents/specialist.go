package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/llm"
	"github.com/google/uuid"
)

// Specialist is the concrete Agent implementation shared by all six
// types (§9, "Agents are strategies, not deep hierarchies"): one struct,
// parameterized by Type, language list, and glob patterns, calling the
// same LLM provider with a type-specific system prompt. No inheritance or
// per-type struct hierarchy — the registry tells them apart by Type()
// alone.
type Specialist struct {
	id           string
	kind         Type
	languages    []string
	globs        []string
	confidence   float64
	systemPrompt string
	provider     llm.Provider
}

// NewSpecialist constructs one specialist agent. systemPrompt should
// describe the specialist's domain (e.g. "You are a backend Go
// engineer...") the way each stage's LLMProducer.SystemPrompt does.
func NewSpecialist(kind Type, languages, globs []string, baseConfidence float64, systemPrompt string, provider llm.Provider) *Specialist {
	return &Specialist{
		id:           fmt.Sprintf("%s-specialist", kind),
		kind:         kind,
		languages:    languages,
		globs:        globs,
		confidence:   baseConfidence,
		systemPrompt: systemPrompt,
		provider:     provider,
	}
}

func (s *Specialist) Type() Type { return s.kind }

func (s *Specialist) SupportsLanguage(lang string) bool {
	for _, l := range s.languages {
		if strings.EqualFold(l, lang) {
			return true
		}
	}
	return false
}

func (s *Specialist) MatchesGlob(path string) bool {
	for _, g := range s.globs {
		if ok, _ := doublestarMatch(g, path); ok {
			return true
		}
	}
	return false
}

// doublestarMatch is a small glob matcher supporting a single "**"
// wildcard segment in addition to filepath.Match's single-segment
// patterns, since target globs like "frontend/**" are common task
// specifications.
func doublestarMatch(pattern, path string) (bool, error) {
	if strings.Contains(pattern, "**") {
		prefix := strings.TrimSuffix(pattern, "**")
		return strings.HasPrefix(path, prefix), nil
	}
	return simpleMatch(pattern, path), nil
}

func simpleMatch(pattern, path string) bool {
	if pattern == path {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(pattern, "*"))
}

// Confidence returns the specialist's flat self-reported confidence,
// before ScoreCandidate applies the type/language/glob multipliers.
func (s *Specialist) Confidence(task Task) float64 {
	return s.confidence
}

// proposalSchema is the JSON shape a specialist's LLM call must return.
type proposalSchema struct {
	Title            string             `json:"title"`
	Summary          string             `json:"summary"`
	Diff             string             `json:"diff"`
	Files            []fileChangeSchema `json:"files"`
	AddsTests        bool               `json:"addsTests"`
	RiskLevel        string             `json:"riskLevel"`
	ProposedCommands []string           `json:"proposedCommands"`
}

type fileChangeSchema struct {
	Path      string `json:"path"`
	Action    string `json:"action"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Propose builds a prompt from the task and whatever prior patches earlier
// agents in a sequential coordination have produced, calls the LLM, and
// parses the result into a single-patch PatchSet candidate (§4.4.2,
// "Proposal: an agent's output for a task; a PatchSet candidate").
func (s *Specialist) Propose(ctx context.Context, task Task, priorPatches []domain.Patch) (domain.PatchSet, error) {
	prompt := s.buildPrompt(task, priorPatches)
	resp, err := s.provider.Call(ctx, s.systemPrompt, prompt)
	if err != nil {
		return domain.PatchSet{}, fmt.Errorf("agents: %s llm call: %w", s.kind, err)
	}

	parsed, err := parseProposal(resp.Text)
	if err != nil {
		return domain.PatchSet{}, fmt.Errorf("agents: %s parsing proposal: %w", s.kind, err)
	}

	files := make([]domain.FileChange, 0, len(parsed.Files))
	for _, f := range parsed.Files {
		files = append(files, domain.FileChange{
			Path:      f.Path,
			Action:    domain.PatchAction(f.Action),
			Additions: f.Additions,
			Deletions: f.Deletions,
		})
	}

	risk := domain.RiskLevel(parsed.RiskLevel)
	if risk == "" {
		risk = domain.RiskLow
	}

	patch := domain.Patch{
		ID:               uuid.NewString(),
		TaskRef:          task.ID,
		Title:            parsed.Title,
		Summary:          parsed.Summary,
		Diff:             parsed.Diff,
		Files:            files,
		AddsTests:        parsed.AddsTests,
		RiskLevel:        risk,
		ProposedCommands: parsed.ProposedCommands,
	}

	return domain.PatchSet{
		ID:      uuid.NewString(),
		Title:   parsed.Title,
		Status:  domain.PatchSetProposed,
		Patches: []domain.Patch{patch},
	}, nil
}

func (s *Specialist) buildPrompt(task Task, priorPatches []domain.Patch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s (type=%s)\n", task.ID, task.Type)
	if len(task.Languages) > 0 {
		fmt.Fprintf(&b, "Languages: %s\n", strings.Join(task.Languages, ", "))
	}
	if len(task.TargetGlobs) > 0 {
		fmt.Fprintf(&b, "Target files: %s\n", strings.Join(task.TargetGlobs, ", "))
	}
	if len(priorPatches) > 0 {
		b.WriteString("\nPatches already proposed by earlier specialists in this sequence:\n")
		for _, p := range priorPatches {
			fmt.Fprintf(&b, "- %s: %s\n", p.Title, p.Summary)
		}
	}
	b.WriteString("\nRespond with JSON only: {title, summary, diff, files:[{path,action,additions,deletions}], addsTests, riskLevel, proposedCommands}.")
	return b.String()
}

func parseProposal(raw string) (proposalSchema, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}
	var parsed proposalSchema
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return proposalSchema{}, err
	}
	return parsed, nil
}

// DefaultSpecialists constructs the six canonical specialist agents
// (§4.4.2: backend, frontend, test, review, docs, refactor) sharing one
// LLM provider, with the glob/language defaults a generic repo needs.
func DefaultSpecialists(provider llm.Provider) []Agent {
	return []Agent{
		NewSpecialist(TypeBackend, []string{"go", "python", "java"}, []string{"internal/**", "pkg/**", "cmd/**", "server/**", "api/**"}, 0.6,
			"You are a backend engineer. Propose a minimal, correct patch for the given task.", provider),
		NewSpecialist(TypeFrontend, []string{"typescript", "javascript"}, []string{"web/**", "frontend/**", "ui/**", "*.tsx", "*.jsx"}, 0.6,
			"You are a frontend engineer. Propose a minimal, correct patch for the given task.", provider),
		NewSpecialist(TypeTest, []string{"go", "typescript", "python"}, []string{"**/*_test.go", "**/*.test.ts", "**/*.spec.ts"}, 0.5,
			"You are a test engineer. Propose tests that exercise the behavior described by the task.", provider),
		NewSpecialist(TypeReview, nil, nil, 0.4,
			"You are a reviewer. Propose small corrective patches addressing review feedback.", provider),
		NewSpecialist(TypeDocs, nil, []string{"**/*.md", "docs/**"}, 0.5,
			"You are a technical writer. Propose documentation updates for the task.", provider),
		NewSpecialist(TypeRefactor, []string{"go", "typescript", "python"}, nil, 0.45,
			"You are a refactoring specialist. Propose structural cleanups without changing behavior.", provider),
	}
}
