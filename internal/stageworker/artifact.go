package stageworker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/llm"
)

// Schema validates a parsed LLM response for one stage's artifact shape.
// Implementations live alongside each stage (internal/stages).
type Schema func(parsed map[string]interface{}) error

// LLMProducer implements the §4.4.1 artifact production sub-protocol for
// one LLM-backed stage: build a prompt, call the provider under budget,
// parse tolerating code fences, validate, retry once on validation
// failure, and fall back to a "hold" artifact (or fail) per
// allowSummaryFallback. prior is the same-kind stage's own previous
// version (set when a stage is regenerated after EStageChangesRequested);
// RefKinds names earlier stages' artifacts (e.g. architecture reads
// feasibility) that BuildPrompt needs as upstream context. wf is the
// workflow record itself, since the enqueued job payload only carries IDs
// (§6, "Enqueue.job(name, payload)") and the prompt needs FeatureGoal /
// BusinessJustification / Repos from the aggregate.
type LLMProducer struct {
	SystemPrompt         string
	BuildPrompt          func(job Job, wf *domain.Workflow, prior *domain.Artifact, refs map[domain.ArtifactKind]*domain.Artifact) string
	Provider             llm.Provider
	Budget               *llm.CostTracker
	Validate             Schema
	AllowSummaryFallback bool
	EstimatedCostPerCall float64
	RefKinds             []domain.ArtifactKind
	RefStore             Store
}

// Produce satisfies the Producer signature used by Worker.
func (p *LLMProducer) Produce(ctx context.Context, job Job, prior *domain.Artifact) (string, map[string]interface{}, domain.Usage, error) {
	wf, err := p.RefStore.GetWorkflow(ctx, job.WorkflowID)
	if err != nil {
		return "", nil, domain.Usage{}, WrapStageError("load_workflow", err)
	}

	refs := make(map[domain.ArtifactKind]*domain.Artifact, len(p.RefKinds))
	for _, kind := range p.RefKinds {
		ref, err := p.RefStore.LatestArtifact(ctx, job.WorkflowID, kind)
		if err != nil {
			return "", nil, domain.Usage{}, WrapStageError("load_ref_artifact", err)
		}
		refs[kind] = ref
	}
	prompt := p.BuildPrompt(job, wf, prior, refs)

	content, usage, err := p.callAndValidate(ctx, job.WorkflowID, prompt, "")
	if err == nil {
		return content, map[string]interface{}{"stage": string(job.Stage), "retried": false}, usage, nil
	}

	retryPrompt := fmt.Sprintf("%s\n\nYour previous response failed validation with error: %s\nHere was your previous response:\n%s\n\nCorrect it and respond with valid JSON only.", prompt, err.Error(), content)
	content, usage2, retryErr := p.callAndValidate(ctx, job.WorkflowID, retryPrompt, "retry")
	usage.InputTokens += usage2.InputTokens
	usage.OutputTokens += usage2.OutputTokens
	usage.CostUSD += usage2.CostUSD
	if retryErr == nil {
		return content, map[string]interface{}{"stage": string(job.Stage), "retried": true}, usage, nil
	}

	if p.AllowSummaryFallback {
		hold := holdArtifact(job.Stage, retryErr)
		return hold, map[string]interface{}{"stage": string(job.Stage), "retried": true, "fallback": true, "warning": retryErr.Error()}, usage, nil
	}
	return "", nil, usage, NewStageError("produce_artifact", SeverityCritical, retryErr, "validation failed after retry, no fallback configured")
}

func (p *LLMProducer) callAndValidate(ctx context.Context, workflowID, prompt, label string) (string, domain.Usage, error) {
	estimatedTokens := p.Provider.EstimateTokens(prompt)
	if p.Budget != nil {
		if err := p.Budget.CheckBudget(ctx, workflowID, estimatedTokens, p.EstimatedCostPerCall); err != nil {
			return "", domain.Usage{}, WrapStageError("check_budget"+suffix(label), err)
		}
	}

	resp, err := p.Provider.Call(ctx, p.SystemPrompt, prompt)
	if err != nil {
		return "", domain.Usage{}, WrapStageError("llm_call"+suffix(label), err)
	}
	usage := domain.Usage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens, CostUSD: p.EstimatedCostPerCall}

	parsed, err := parseJSONTolerant(resp.Text)
	if err != nil {
		return resp.Text, usage, fmt.Errorf("parsing llm response as json: %w", err)
	}
	if p.Validate != nil {
		if err := p.Validate(parsed); err != nil {
			return resp.Text, usage, fmt.Errorf("schema validation: %w", err)
		}
	}

	canonical, err := json.Marshal(parsed)
	if err != nil {
		return resp.Text, usage, fmt.Errorf("re-marshaling validated response: %w", err)
	}
	return string(canonical), usage, nil
}

func suffix(label string) string {
	if label == "" {
		return ""
	}
	return "_" + label
}

// parseJSONTolerant strips a leading/trailing ```json ... ``` or ``` ...
// ``` code fence, if present, before parsing, since LLM responses
// routinely wrap JSON in markdown fences despite instructions not to.
func parseJSONTolerant(raw string) (map[string]interface{}, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

// holdArtifact produces the minimal fallback artifact content emitted when
// both the primary and retry LLM calls fail validation and
// allowSummaryFallback is enabled.
func holdArtifact(stage domain.Stage, cause error) string {
	hold := map[string]interface{}{
		"status": "hold",
		"stage":  string(stage),
		"reason": cause.Error(),
	}
	content, _ := json.Marshal(hold)
	return string(content)
}
