package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/vnmchuo/inference-gateway/internal/dispatch"
	"github.com/vnmchuo/inference-gateway/internal/hub"
)

const maxVideoDuration = 30 // seconds

type VideoService struct {
	backend          Backend
	policy           dispatch.Policy
	textModel        string
	textFallbacks    []string
	animateModel     string
	animateFallbacks []string
	maxVideoBytes    int64
	maxImageBytes    int64
}

func NewVideoService(backend Backend, policy dispatch.Policy, textModel string, textFallbacks []string, animateModel string, animateFallbacks []string, maxVideoBytes, maxImageBytes int64) *VideoService {
	return &VideoService{
		backend:          backend,
		policy:           policy,
		textModel:        textModel,
		textFallbacks:    textFallbacks,
		animateModel:     animateModel,
		animateFallbacks: animateFallbacks,
		maxVideoBytes:    maxVideoBytes,
		maxImageBytes:    maxImageBytes,
	}
}

type GenerateVideoParams struct {
	Prompt         string
	Model          string
	NegativePrompt string
	Duration       int // seconds
	FPS            int
	Steps          int
}

// Generate renders a video from a text prompt.
func (s *VideoService) Generate(ctx context.Context, p GenerateVideoParams) (*MediaResult, error) {
	if p.Prompt == "" || len(p.Prompt) > 1000 {
		return nil, dispatch.Validation("prompt must be 1-1000 characters", map[string]any{"field": "prompt"})
	}
	if err := validateVideoParams(p.Duration, p.FPS, p.Steps); err != nil {
		return nil, err
	}

	params := hub.VideoParams{
		NegativePrompt: p.NegativePrompt,
		Duration:       orInt(p.Duration, 6),
		FPS:            orInt(p.FPS, 8),
		Steps:          orInt(p.Steps, 50),
	}

	sel := ModelSelector{Explicit: p.Model, Default: s.textModel, Fallbacks: s.textFallbacks}
	start := time.Now()

	data, model, err := run(ctx, s.policy, sel, func(ctx context.Context, model string) ([]byte, error) {
		return s.backend.TextToVideo(ctx, model, p.Prompt, params)
	})
	if err != nil {
		return nil, err
	}
	if err := checkMediaSize(data, s.maxVideoBytes, "video"); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	slog.Info("video generated", "model", model, "bytes", len(data), "elapsed", elapsed)

	return &MediaResult{Data: data, ContentType: "video/mp4", Model: model, Elapsed: elapsed}, nil
}

type AnimateVideoParams struct {
	Image    []byte
	Prompt   string // optional style hint
	Model    string
	Duration int
	FPS      int
	Steps    int
}

// Animate renders a video from a still image.
func (s *VideoService) Animate(ctx context.Context, p AnimateVideoParams) (*MediaResult, error) {
	if len(p.Image) == 0 {
		return nil, dispatch.Validation("image must not be empty", map[string]any{"field": "image"})
	}
	if int64(len(p.Image)) > s.maxImageBytes {
		return nil, dispatch.PayloadTooLarge(int64(len(p.Image)), s.maxImageBytes, "image")
	}
	if err := validateVideoParams(p.Duration, p.FPS, p.Steps); err != nil {
		return nil, err
	}

	params := hub.VideoParams{
		Duration: orInt(p.Duration, 6),
		FPS:      orInt(p.FPS, 8),
		Steps:    orInt(p.Steps, 50),
	}

	sel := ModelSelector{Explicit: p.Model, Default: s.animateModel, Fallbacks: s.animateFallbacks}
	start := time.Now()

	data, model, err := run(ctx, s.policy, sel, func(ctx context.Context, model string) ([]byte, error) {
		return s.backend.ImageToVideo(ctx, model, p.Image, p.Prompt, params)
	})
	if err != nil {
		return nil, err
	}
	if err := checkMediaSize(data, s.maxVideoBytes, "video"); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	slog.Info("video animated", "model", model, "bytes", len(data), "elapsed", elapsed)

	return &MediaResult{Data: data, ContentType: "video/mp4", Model: model, Elapsed: elapsed}, nil
}

func validateVideoParams(duration, fps, steps int) error {
	if duration != 0 && (duration < 1 || duration > maxVideoDuration) {
		return dispatch.Validation("duration must be 1-30 seconds", map[string]any{"field": "duration"})
	}
	if fps != 0 && (fps < 1 || fps > 60) {
		return dispatch.Validation("fps must be 1-60", map[string]any{"field": "fps"})
	}
	return validateSteps(steps)
}
