package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/vnmchuo/inference-gateway/internal/dispatch"
	"github.com/vnmchuo/inference-gateway/internal/hub"
)

type TextService struct {
	backend      Backend
	policy       dispatch.Policy
	defaultModel string
	fallbacks    []string
}

func NewTextService(backend Backend, policy dispatch.Policy, defaultModel string, fallbacks []string) *TextService {
	return &TextService{
		backend:      backend,
		policy:       policy,
		defaultModel: defaultModel,
		fallbacks:    fallbacks,
	}
}

type GenerateTextParams struct {
	Prompt       string
	Model        string // empty: use the configured default + fallbacks
	MaxNewTokens int
	Temperature  float64
	TopP         float64
	TopK         int
}

// Generate produces a text continuation for the prompt.
func (s *TextService) Generate(ctx context.Context, p GenerateTextParams) (*TextResult, error) {
	if p.Prompt == "" {
		return nil, dispatch.Validation("prompt must not be empty", map[string]any{"field": "prompt"})
	}
	if p.MaxNewTokens < 0 || p.MaxNewTokens > 4096 {
		return nil, dispatch.Validation("max_new_tokens must be 0-4096", map[string]any{"field": "max_new_tokens"})
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return nil, dispatch.Validation("temperature must be 0-2", map[string]any{"field": "temperature"})
	}

	params := hub.TextGenerationParams{
		MaxNewTokens: p.MaxNewTokens,
		Temperature:  p.Temperature,
		TopP:         p.TopP,
		TopK:         p.TopK,
	}
	if params.MaxNewTokens == 0 {
		params.MaxNewTokens = 256
	}
	if params.Temperature == 0 {
		params.Temperature = 0.7
	}
	if params.TopP == 0 {
		params.TopP = 0.9
	}
	if params.TopK == 0 {
		params.TopK = 50
	}

	sel := ModelSelector{Explicit: p.Model, Default: s.defaultModel, Fallbacks: s.fallbacks}
	start := time.Now()

	text, model, err := run(ctx, s.policy, sel, func(ctx context.Context, model string) (string, error) {
		return s.backend.TextGeneration(ctx, model, p.Prompt, params)
	})
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	slog.Info("text generated", "model", model, "chars", len(text), "elapsed", elapsed)

	return &TextResult{Text: text, Model: model, Elapsed: elapsed}, nil
}
