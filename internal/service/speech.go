package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/vnmchuo/inference-gateway/internal/dispatch"
)

var supportedAudioTypes = []string{"audio/wav", "audio/mpeg", "audio/flac", "audio/ogg", "audio/webm"}

type SpeechService struct {
	backend             Backend
	policy              dispatch.Policy
	speechModel         string
	speechFallbacks     []string
	transcribeModel     string
	transcribeFallbacks []string
	maxAudioBytes       int64
}

func NewSpeechService(backend Backend, policy dispatch.Policy, speechModel string, speechFallbacks []string, transcribeModel string, transcribeFallbacks []string, maxAudioBytes int64) *SpeechService {
	return &SpeechService{
		backend:             backend,
		policy:              policy,
		speechModel:         speechModel,
		speechFallbacks:     speechFallbacks,
		transcribeModel:     transcribeModel,
		transcribeFallbacks: transcribeFallbacks,
		maxAudioBytes:       maxAudioBytes,
	}
}

type SynthesizeParams struct {
	Text  string
	Model string
}

// Synthesize converts text to speech audio.
func (s *SpeechService) Synthesize(ctx context.Context, p SynthesizeParams) (*MediaResult, error) {
	if p.Text == "" {
		return nil, dispatch.Validation("text must not be empty", map[string]any{"field": "text"})
	}

	sel := ModelSelector{Explicit: p.Model, Default: s.speechModel, Fallbacks: s.speechFallbacks}
	start := time.Now()

	data, model, err := run(ctx, s.policy, sel, func(ctx context.Context, model string) ([]byte, error) {
		return s.backend.TextToSpeech(ctx, model, p.Text)
	})
	if err != nil {
		return nil, err
	}
	if err := checkMediaSize(data, s.maxAudioBytes, "audio"); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	slog.Info("speech synthesized", "model", model, "bytes", len(data), "elapsed", elapsed)

	return &MediaResult{Data: data, ContentType: "audio/wav", Model: model, Elapsed: elapsed}, nil
}

type TranscribeParams struct {
	Audio       []byte
	ContentType string
	Model       string
	Language    string // caller-supplied hint, used when the model reports none
}

// Transcribe converts speech audio to text, coercing the provider's
// response into a uniform shape.
func (s *SpeechService) Transcribe(ctx context.Context, p TranscribeParams) (*TranscriptionResult, error) {
	if len(p.Audio) == 0 {
		return nil, dispatch.Validation("audio must not be empty", map[string]any{"field": "audio"})
	}
	if int64(len(p.Audio)) > s.maxAudioBytes {
		return nil, dispatch.PayloadTooLarge(int64(len(p.Audio)), s.maxAudioBytes, "audio")
	}
	contentType := p.ContentType
	if contentType == "" {
		contentType = "audio/wav"
	}
	if !isSupportedAudioType(contentType) {
		return nil, dispatch.UnsupportedFormat("audio", contentType, supportedAudioTypes)
	}

	sel := ModelSelector{Explicit: p.Model, Default: s.transcribeModel, Fallbacks: s.transcribeFallbacks}
	start := time.Now()

	raw, model, err := run(ctx, s.policy, sel, func(ctx context.Context, model string) ([]byte, error) {
		return s.backend.Transcribe(ctx, model, p.Audio, contentType)
	})
	if err != nil {
		return nil, err
	}

	text, language, confidence, err := coerceTranscription(raw)
	if err != nil {
		return nil, err
	}
	if language == "" {
		language = p.Language
	}

	elapsed := time.Since(start)
	slog.Info("audio transcribed", "model", model, "chars", len(text), "elapsed", elapsed)

	return &TranscriptionResult{
		Text:       text,
		Language:   language,
		Confidence: confidence,
		Model:      model,
		Elapsed:    elapsed,
	}, nil
}

func isSupportedAudioType(contentType string) bool {
	for _, t := range supportedAudioTypes {
		if t == contentType {
			return true
		}
	}
	return false
}
