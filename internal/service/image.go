package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/vnmchuo/inference-gateway/internal/dispatch"
	"github.com/vnmchuo/inference-gateway/internal/hub"
)

type ImageService struct {
	backend       Backend
	policy        dispatch.Policy
	defaultModel  string
	fallbacks     []string
	editModel     string
	editFallbacks []string
	maxBytes      int64
}

func NewImageService(backend Backend, policy dispatch.Policy, defaultModel string, fallbacks []string, editModel string, editFallbacks []string, maxBytes int64) *ImageService {
	return &ImageService{
		backend:       backend,
		policy:        policy,
		defaultModel:  defaultModel,
		fallbacks:     fallbacks,
		editModel:     editModel,
		editFallbacks: editFallbacks,
		maxBytes:      maxBytes,
	}
}

type GenerateImageParams struct {
	Prompt         string
	Model          string
	NegativePrompt string
	Height         int
	Width          int
	Steps          int
	GuidanceScale  float64
}

// Generate renders an image from a text prompt.
func (s *ImageService) Generate(ctx context.Context, p GenerateImageParams) (*MediaResult, error) {
	if p.Prompt == "" {
		return nil, dispatch.Validation("prompt must not be empty", map[string]any{"field": "prompt"})
	}
	if err := validateDimensions(p.Height, p.Width); err != nil {
		return nil, err
	}
	if err := validateSteps(p.Steps); err != nil {
		return nil, err
	}

	params := hub.ImageParams{
		NegativePrompt: p.NegativePrompt,
		Height:         orInt(p.Height, 512),
		Width:          orInt(p.Width, 512),
		Steps:          orInt(p.Steps, 50),
		GuidanceScale:  orFloat(p.GuidanceScale, 7.5),
	}

	sel := ModelSelector{Explicit: p.Model, Default: s.defaultModel, Fallbacks: s.fallbacks}
	start := time.Now()

	data, model, err := run(ctx, s.policy, sel, func(ctx context.Context, model string) ([]byte, error) {
		return s.backend.TextToImage(ctx, model, p.Prompt, params)
	})
	if err != nil {
		return nil, err
	}
	if err := checkMediaSize(data, s.maxBytes, "image"); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	slog.Info("image generated", "model", model, "bytes", len(data), "elapsed", elapsed)

	return &MediaResult{Data: data, ContentType: "image/png", Model: model, Elapsed: elapsed}, nil
}

type TransformImageParams struct {
	Image          []byte
	Prompt         string
	Model          string
	NegativePrompt string
	Strength       float64
	Steps          int
	GuidanceScale  float64
}

// Transform rewrites an existing image under a text prompt.
func (s *ImageService) Transform(ctx context.Context, p TransformImageParams) (*MediaResult, error) {
	if err := s.validateEditInput(p.Image, p.Prompt, p.Steps); err != nil {
		return nil, err
	}
	if p.Strength < 0 || p.Strength > 1 {
		return nil, dispatch.Validation("strength must be 0-1", map[string]any{"field": "strength"})
	}

	params := hub.TransformParams{
		NegativePrompt: p.NegativePrompt,
		Strength:       orFloat(p.Strength, 0.75),
		Steps:          orInt(p.Steps, 50),
		GuidanceScale:  orFloat(p.GuidanceScale, 7.5),
	}

	sel := ModelSelector{Explicit: p.Model, Default: s.editModel, Fallbacks: s.editFallbacks}
	start := time.Now()

	data, model, err := run(ctx, s.policy, sel, func(ctx context.Context, model string) ([]byte, error) {
		return s.backend.ImageToImage(ctx, model, p.Image, p.Prompt, params)
	})
	if err != nil {
		return nil, err
	}
	if err := checkMediaSize(data, s.maxBytes, "image"); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	slog.Info("image transformed", "model", model, "bytes", len(data), "elapsed", elapsed)

	return &MediaResult{Data: data, ContentType: "image/png", Model: model, Elapsed: elapsed}, nil
}

type InpaintImageParams struct {
	Image          []byte
	Mask           []byte
	Prompt         string
	Model          string
	NegativePrompt string
	Steps          int
	GuidanceScale  float64
}

// Inpaint regenerates the masked region of an image under a text prompt.
func (s *ImageService) Inpaint(ctx context.Context, p InpaintImageParams) (*MediaResult, error) {
	if err := s.validateEditInput(p.Image, p.Prompt, p.Steps); err != nil {
		return nil, err
	}
	if len(p.Mask) == 0 {
		return nil, dispatch.Validation("mask must not be empty", map[string]any{"field": "mask"})
	}

	params := hub.TransformParams{
		NegativePrompt: p.NegativePrompt,
		Steps:          orInt(p.Steps, 50),
		GuidanceScale:  orFloat(p.GuidanceScale, 7.5),
	}

	sel := ModelSelector{Explicit: p.Model, Default: s.editModel, Fallbacks: s.editFallbacks}
	start := time.Now()

	data, model, err := run(ctx, s.policy, sel, func(ctx context.Context, model string) ([]byte, error) {
		return s.backend.Inpaint(ctx, model, p.Image, p.Mask, p.Prompt, params)
	})
	if err != nil {
		return nil, err
	}
	if err := checkMediaSize(data, s.maxBytes, "image"); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	slog.Info("image inpainted", "model", model, "bytes", len(data), "elapsed", elapsed)

	return &MediaResult{Data: data, ContentType: "image/png", Model: model, Elapsed: elapsed}, nil
}

func (s *ImageService) validateEditInput(image []byte, prompt string, steps int) error {
	if len(image) == 0 {
		return dispatch.Validation("image must not be empty", map[string]any{"field": "image"})
	}
	if int64(len(image)) > s.maxBytes {
		return dispatch.PayloadTooLarge(int64(len(image)), s.maxBytes, "image")
	}
	if prompt == "" {
		return dispatch.Validation("prompt must not be empty", map[string]any{"field": "prompt"})
	}
	return validateSteps(steps)
}

func validateDimensions(height, width int) error {
	if height != 0 && (height < 64 || height > 2048) {
		return dispatch.Validation("height must be 64-2048", map[string]any{"field": "height"})
	}
	if width != 0 && (width < 64 || width > 2048) {
		return dispatch.Validation("width must be 64-2048", map[string]any{"field": "width"})
	}
	return nil
}

func validateSteps(steps int) error {
	if steps < 0 || steps > 100 {
		return dispatch.Validation("num_inference_steps must be 1-100", map[string]any{"field": "num_inference_steps"})
	}
	return nil
}

func orInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func orFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}
