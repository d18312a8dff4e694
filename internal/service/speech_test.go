package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/vnmchuo/inference-gateway/internal/dispatch"
)

func newSpeechService(backend Backend, maxAudio int64) *SpeechService {
	return NewSpeechService(backend, quickPolicy(0),
		"tts-model", nil,
		"asr-model", nil,
		maxAudio)
}

func TestSpeechService_Synthesize(t *testing.T) {
	backend := &fakeBackend{}
	svc := newSpeechService(backend, 1<<20)

	result, err := svc.Synthesize(context.Background(), SynthesizeParams{Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ContentType != "audio/wav" {
		t.Errorf("content type = %q", result.ContentType)
	}
	if result.Model != "tts-model" {
		t.Errorf("model = %q", result.Model)
	}

	if _, err := svc.Synthesize(context.Background(), SynthesizeParams{}); dispatch.KindOf(err) != dispatch.KindValidation {
		t.Errorf("empty text: error = %v, want validation_failure", err)
	}
}

func TestSpeechService_Transcribe_StructuredResponse(t *testing.T) {
	backend := &fakeBackend{
		transcribeFn: func(string) (json.RawMessage, error) {
			return json.RawMessage(`{"text":"guten tag","language":"de","confidence":0.9}`), nil
		},
	}
	svc := newSpeechService(backend, 1<<20)

	result, err := svc.Transcribe(context.Background(), TranscribeParams{Audio: []byte("riff")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "guten tag" || result.Language != "de" || result.Confidence != 0.9 {
		t.Errorf("result = %+v", result)
	}
}

func TestSpeechService_Transcribe_PlainStringResponse(t *testing.T) {
	backend := &fakeBackend{
		transcribeFn: func(string) (json.RawMessage, error) {
			return json.RawMessage(`"hello there"`), nil
		},
	}
	svc := newSpeechService(backend, 1<<20)

	result, err := svc.Transcribe(context.Background(), TranscribeParams{
		Audio:    []byte("riff"),
		Language: "en", // hint applies when the model reports none
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hello there" {
		t.Errorf("text = %q", result.Text)
	}
	if result.Language != "en" {
		t.Errorf("language = %q, want the caller hint", result.Language)
	}
}

func TestSpeechService_Transcribe_UnsupportedFormat(t *testing.T) {
	backend := &fakeBackend{}
	svc := newSpeechService(backend, 1<<20)

	_, err := svc.Transcribe(context.Background(), TranscribeParams{
		Audio:       []byte("riff"),
		ContentType: "audio/midi",
	})
	if dispatch.KindOf(err) != dispatch.KindUnsupportedFormat {
		t.Fatalf("error = %v, want unsupported_format", err)
	}
	if len(backend.models) != 0 {
		t.Errorf("unsupported format must not dispatch, saw %v", backend.models)
	}
}

func TestSpeechService_Transcribe_AudioTooLarge(t *testing.T) {
	backend := &fakeBackend{}
	svc := newSpeechService(backend, 10)

	_, err := svc.Transcribe(context.Background(), TranscribeParams{Audio: make([]byte, 11)})
	if dispatch.KindOf(err) != dispatch.KindPayloadTooLarge {
		t.Errorf("error = %v, want payload_too_large", err)
	}
}
