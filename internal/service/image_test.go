package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/vnmchuo/inference-gateway/internal/dispatch"
)

func newImageService(backend Backend, maxBytes int64) *ImageService {
	return NewImageService(backend, quickPolicy(0),
		"gen-model", []string{"gen-fallback"},
		"edit-model", []string{"edit-fallback"},
		maxBytes)
}

func TestImageService_Generate_Validation(t *testing.T) {
	backend := &fakeBackend{}
	svc := newImageService(backend, 1<<20)

	tests := []struct {
		name   string
		params GenerateImageParams
	}{
		{name: "empty prompt", params: GenerateImageParams{}},
		{name: "height too small", params: GenerateImageParams{Prompt: "cat", Height: 32}},
		{name: "width too large", params: GenerateImageParams{Prompt: "cat", Width: 4096}},
		{name: "too many steps", params: GenerateImageParams{Prompt: "cat", Steps: 200}},
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

func TestImageService_Generate_Success(t *testing.T) {
	backend := &fakeBackend{}
	svc := newImageService(backend, 1<<20)

	result, err := svc.Generate(context.Background(), GenerateImageParams{Prompt: "cat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(result.Data, []byte("payload")) {
		t.Errorf("data = %q", result.Data)
	}
	if result.ContentType != "image/png" {
		t.Errorf("content type = %q", result.ContentType)
	}
	if result.Model != "gen-model" {
		t.Errorf("model = %q", result.Model)
	}
}

func TestImageService_Generate_OversizedOutput(t *testing.T) {
	backend := &fakeBackend{
		mediaFn: func(string) ([]byte, error) {
			return make([]byte, 11), nil
		},
	}
	svc := newImageService(backend, 10)

	_, err := svc.Generate(context.Background(), GenerateImageParams{Prompt: "cat"})
	if dispatch.KindOf(err) != dispatch.KindPayloadTooLarge {
		t.Errorf("error = %v, want payload_too_large", err)
	}
}

func TestImageService_Transform_InputTooLarge(t *testing.T) {
	backend := &fakeBackend{}
	svc := newImageService(backend, 10)

	_, err := svc.Transform(context.Background(), TransformImageParams{
		Image:  make([]byte, 11),
		Prompt: "paint it blue",
	})
	if dispatch.KindOf(err) != dispatch.KindPayloadTooLarge {
		t.Fatalf("error = %v, want payload_too_large", err)
	}
	if len(backend.models) != 0 {
		t.Errorf("oversized input must not dispatch, saw %v", backend.models)
	}
}

func TestImageService_Transform_StrengthBounds(t *testing.T) {
	backend := &fakeBackend{}
	svc := newImageService(backend, 1<<20)

	_, err := svc.Transform(context.Background(), TransformImageParams{
		Image:    []byte("img"),
		Prompt:   "paint it blue",
		Strength: 1.5,
	})
	if dispatch.KindOf(err) != dispatch.KindValidation {
		t.Errorf("error = %v, want validation_failure", err)
	}
}

func TestImageService_Inpaint_RequiresMask(t *testing.T) {
	backend := &fakeBackend{}
	svc := newImageService(backend, 1<<20)

	_, err := svc.Inpaint(context.Background(), InpaintImageParams{
		Image:  []byte("img"),
		Prompt: "remove the lamp",
	})
	if dispatch.KindOf(err) != dispatch.KindValidation {
		t.Errorf("error = %v, want validation_failure", err)
	}
}

func TestImageService_EditUsesEditChain(t *testing.T) {
	backend := &fakeBackend{}
	svc := newImageService(backend, 1<<20)

	result, err := svc.Inpaint(context.Background(), InpaintImageParams{
		Image:  []byte("img"),
		Mask:   []byte("mask"),
		Prompt: "remove the lamp",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Model != "edit-model" {
		t.Errorf("model = %q, want the edit default", result.Model)
	}
}
