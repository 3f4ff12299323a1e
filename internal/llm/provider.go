// Package llm wraps the language model calls the patches, summary,
// architecture, timeline, and feasibility stage workers make to produce
// their artifacts (§4.4.1). When no API key is configured the provider
// falls back to a deterministic stub so the pipeline can be exercised
// end-to-end without live credentials, the same accommodation the
// teacher's autonomous agent package makes for its LLM calls.
package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/fyrsmithlabs/workflowforge/internal/config"
)

// Response is the result of one LLM call: the raw text plus token usage
// for cost tracking.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Stubbed      bool
}

// Provider is the narrow interface stage workers call through; tests use a
// fake, production wires *AnthropicProvider. EstimateTokens lets a caller
// check CostTracker.checkBudget (§4.4.1, §6 LLMProvider.estimateTokens)
// before spending a real call.
type Provider interface {
	Call(ctx context.Context, systemPrompt, userPrompt string) (Response, error)
	EstimateTokens(text string) int
}

// AnthropicProvider calls Claude via the official SDK. When no API key is
// set, Call returns a stub response instead of failing, matching the
// LLM.Stubbed config knob stage workers check before trusting an artifact
// produced this way.
type AnthropicProvider struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	stubbed   bool
}

// NewAnthropicProvider constructs a provider. If apiKey is unset, the
// provider stays in stub mode: every Call returns a synthetic response
// instead of reaching the network.
func NewAnthropicProvider(apiKey config.Secret, model string, maxTokens int64) *AnthropicProvider {
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_5)
	}
	if maxTokens == 0 {
		maxTokens = 4096
	}
	if !apiKey.IsSet() {
		return &AnthropicProvider{model: anthropic.Model(model), maxTokens: maxTokens, stubbed: true}
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey.Value())),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}
}

func (p *AnthropicProvider) Call(ctx context.Context, systemPrompt, userPrompt string) (Response, error) {
	if p.stubbed {
		return stubResponse(userPrompt), nil
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm: anthropic call failed: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return Response{
		Text:         text,
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// EstimateTokens approximates token count for budget checks ahead of a
// real call, using the same chars-per-token heuristic the stub response
// reports usage with; no SDK round trip is required for an estimate.
func (p *AnthropicProvider) EstimateTokens(text string) int {
	return len(text) / 4
}

// stubResponse is a deterministic, truncated echo of the prompt so the
// rest of the pipeline has a non-empty artifact to validate and version,
// without ever making a network call.
func stubResponse(prompt string) Response {
	preview := prompt
	if len(preview) > 160 {
		preview = preview[:160]
	}
	return Response{
		Text:         fmt.Sprintf("Stub analysis of prompt context: %s\n\nResult: generated without a configured LLM provider.", preview),
		InputTokens:  len(prompt) / 4,
		OutputTokens: 40,
		Stubbed:      true,
	}
}
