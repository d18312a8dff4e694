// Package service contains the modality dispatchers. Each service resolves
// the effective model, drives the call through the retry engine (explicit
// model) or the fallback chain (configured defaults), and normalizes the
// provider's raw output into a typed result.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vnmchuo/inference-gateway/internal/dispatch"
	"github.com/vnmchuo/inference-gateway/internal/hub"
)

// Backend is the remote inference surface the dispatchers run against.
// *hub.Client implements it; tests substitute fakes.
type Backend interface {
	TextGeneration(ctx context.Context, model, prompt string, p hub.TextGenerationParams) (string, error)
	TextToImage(ctx context.Context, model, prompt string, p hub.ImageParams) ([]byte, error)
	ImageToImage(ctx context.Context, model string, image []byte, prompt string, p hub.TransformParams) ([]byte, error)
	Inpaint(ctx context.Context, model string, image, mask []byte, prompt string, p hub.TransformParams) ([]byte, error)
	TextToSpeech(ctx context.Context, model, text string) ([]byte, error)
	Transcribe(ctx context.Context, model string, audio []byte, contentType string) (json.RawMessage, error)
	FeatureExtraction(ctx context.Context, model, text string) (json.RawMessage, error)
	TextToVideo(ctx context.Context, model, prompt string, p hub.VideoParams) ([]byte, error)
	ImageToVideo(ctx context.Context, model string, image []byte, prompt string, p hub.VideoParams) ([]byte, error)
}

// ModelSelector resolves which models a dispatch may try. An explicit model
// pins the request to that model alone; otherwise the default and its
// configured fallbacks form the chain.
type ModelSelector struct {
	Explicit  string
	Default   string
	Fallbacks []string
}

// Candidates returns the deduplicated, insertion-ordered candidate list,
// explicit model first when present.
func (s ModelSelector) Candidates() []string {
	seen := map[string]bool{}
	var out []string
	add := func(model string) {
		if model != "" && !seen[model] {
			seen[model] = true
			out = append(out, model)
		}
	}
	add(s.Explicit)
	add(s.Default)
	for _, m := range s.Fallbacks {
		add(m)
	}
	return out
}

// run executes op against the selector: an explicit model gets the retry
// engine only (no cross-model fallback, even when fallbacks are configured);
// an unspecified model walks the fallback chain. Returns the winning model.
func run[T any](ctx context.Context, policy dispatch.Policy, sel ModelSelector, op func(ctx context.Context, model string) (T, error)) (T, string, error) {
	if sel.Explicit != "" {
		result, err := dispatch.Do(ctx, policy, nil, func(ctx context.Context) (T, error) {
			return op(ctx, sel.Explicit)
		})
		return result, sel.Explicit, err
	}
	return dispatch.DoWithFallback(ctx, policy, nil, sel.Candidates(), op)
}

// TextResult is a generated text payload.
type TextResult struct {
	Text    string
	Model   string
	Elapsed time.Duration
}

// MediaResult is an opaque binary payload (image, audio or video).
type MediaResult struct {
	Data        []byte
	ContentType string
	Model       string
	Elapsed     time.Duration
}

// EmbeddingResult is a one-dimensional embedding vector.
type EmbeddingResult struct {
	Vector  []float64
	Model   string
	Elapsed time.Duration
}

// Dimension reports the vector length.
func (r *EmbeddingResult) Dimension() int {
	return len(r.Vector)
}

// TranscriptionResult is the normalized speech-to-text shape. Language and
// Confidence are empty/zero when the model does not report them.
type TranscriptionResult struct {
	Text       string
	Language   string
	Confidence float64
	Model      string
	Elapsed    time.Duration
}

// checkMediaSize enforces the configured byte ceiling on a generated
// payload. Oversized media is an error, never a truncation.
func checkMediaSize(data []byte, max int64, kind string) error {
	if max > 0 && int64(len(data)) > max {
		return dispatch.PayloadTooLarge(int64(len(data)), max, kind)
	}
	return nil
}

// flattenEmbedding collapses the provider's embedding response to one
// dimension. Sentence-similarity models return a vector; others wrap it in a
// batch of one.
func flattenEmbedding(raw json.RawMessage) ([]float64, error) {
	var flat []float64
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}

	var nested [][]float64
	if err := json.Unmarshal(raw, &nested); err == nil {
		if len(nested) == 0 {
			return nil, dispatch.Processing("embedding", "provider returned an empty batch")
		}
		return nested[0], nil
	}

	return nil, dispatch.Processing("embedding", fmt.Sprintf("unrecognized embedding shape: %s", truncateJSON(raw)))
}

// coerceTranscription normalizes an ASR response into text + optional
// metadata, whether the provider returned a plain string or an object.
func coerceTranscription(raw json.RawMessage) (text, language string, confidence float64, err error) {
	var plain string
	if jsonErr := json.Unmarshal(raw, &plain); jsonErr == nil {
		return plain, "", 0, nil
	}

	var structured struct {
		Text       string  `json:"text"`
		Language   string  `json:"language"`
		Confidence float64 `json:"confidence"`
	}
	if jsonErr := json.Unmarshal(raw, &structured); jsonErr == nil {
		return structured.Text, structured.Language, structured.Confidence, nil
	}

	return "", "", 0, dispatch.Processing("transcription", fmt.Sprintf("unrecognized transcription shape: %s", truncateJSON(raw)))
}

func truncateJSON(raw json.RawMessage) string {
	const limit = 120
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
