package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/vnmchuo/inference-gateway/internal/dispatch"
)

type EmbeddingService struct {
	backend      Backend
	policy       dispatch.Policy
	defaultModel string
	fallbacks    []string
}

func NewEmbeddingService(backend Backend, policy dispatch.Policy, defaultModel string, fallbacks []string) *EmbeddingService {
	return &EmbeddingService{
		backend:      backend,
		policy:       policy,
		defaultModel: defaultModel,
		fallbacks:    fallbacks,
	}
}

type EmbedParams struct {
	Text  string
	Model string
}

// Embed produces a one-dimensional embedding vector for the text, flattening
// batch-of-one responses.
func (s *EmbeddingService) Embed(ctx context.Context, p EmbedParams) (*EmbeddingResult, error) {
	if p.Text == "" {
		return nil, dispatch.Validation("text must not be empty", map[string]any{"field": "text"})
	}

	sel := ModelSelector{Explicit: p.Model, Default: s.defaultModel, Fallbacks: s.fallbacks}
	start := time.Now()

	raw, model, err := run(ctx, s.policy, sel, func(ctx context.Context, model string) (json.RawMessage, error) {
		return s.backend.FeatureExtraction(ctx, model, p.Text)
	})
	if err != nil {
		return nil, err
	}

	vector, err := flattenEmbedding(raw)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	slog.Info("embedding generated", "model", model, "dimension", len(vector), "elapsed", elapsed)

	return &EmbeddingResult{Vector: vector, Model: model, Elapsed: elapsed}, nil
}
