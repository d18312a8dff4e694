package service

import (
	"context"
	"testing"

	"github.com/vnmchuo/inference-gateway/internal/dispatch"
)

func newVideoService(backend Backend, maxVideo, maxImage int64) *VideoService {
	return NewVideoService(backend, quickPolicy(0),
		"t2v-model", []string{"t2v-fallback"},
		"i2v-model", nil,
		maxVideo, maxImage)
}

func TestVideoService_Generate_Validation(t *testing.T) {
	backend := &fakeBackend{}
	svc := newVideoService(backend, 1<<20, 1<<20)

	tests := []struct {
		name   string
		params GenerateVideoParams
	}{
		{name: "empty prompt", params: GenerateVideoParams{}},
		{name: "duration too long", params: GenerateVideoParams{Prompt: "waves", Duration: 31}},
		{name: "fps too high", params: GenerateVideoParams{Prompt: "waves", FPS: 120}},
		{name: "too many steps", params: GenerateVideoParams{Prompt: "waves", Steps: 101}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Generate(context.Background(), tt.params)
			if dispatch.KindOf(err) != dispatch.KindValidation {
				t.Errorf("error = %v, want validation_failure", err)
			}
		})
	}
}

func TestVideoService_Generate_Success(t *testing.T) {
	backend := &fakeBackend{}
	svc := newVideoService(backend, 1<<20, 1<<20)

	result, err := svc.Generate(context.Background(), GenerateVideoParams{Prompt: "waves at dusk"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ContentType != "video/mp4" {
		t.Errorf("content type = %q", result.ContentType)
	}
	if result.Model != "t2v-model" {
		t.Errorf("model = %q", result.Model)
	}
}

func TestVideoService_Animate(t *testing.T) {
	backend := &fakeBackend{}
	svc := newVideoService(backend, 1<<20, 1<<20)

	result, err := svc.Animate(context.Background(), AnimateVideoParams{Image: []byte("png")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Model != "i2v-model" {
		t.Errorf("model = %q", result.Model)
	}
}

func TestVideoService_Animate_ImageTooLarge(t *testing.T) {
	backend := &fakeBackend{}
	svc := newVideoService(backend, 1<<20, 10)

	_, err := svc.Animate(context.Background(), AnimateVideoParams{Image: make([]byte, 11)})
	if dispatch.KindOf(err) != dispatch.KindPayloadTooLarge {
		t.Fatalf("error = %v, want payload_too_large", err)
	}
	if len(backend.models) != 0 {
		t.Errorf("oversized input must not dispatch, saw %v", backend.models)
	}
}
