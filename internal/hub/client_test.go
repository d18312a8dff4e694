package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vnmchuo/inference-gateway/internal/dispatch"
)

func newTestClient(url string) *Client {
	return New("test-token", url, 10*time.Second, NewRoutingTable(nil))
}

func TestTextGeneration_Mock(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")

		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["inputs"] != "say hi" {
			t.Errorf("Expected inputs 'say hi', got %v", req["inputs"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]string{{"generated_text": "hi there"}})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	text, err := c.TextGeneration(context.Background(), "mistralai/Mistral-7B-Instruct-v0.1", "say hi",
		TextGenerationParams{MaxNewTokens: 16, Temperature: 0.7, TopP: 0.9, TopK: 50})
	if err != nil {
		t.Fatalf("TextGeneration failed: %v", err)
	}

	if text != "hi there" {
		t.Errorf("Expected 'hi there', got %q", text)
	}
	if gotPath != "/hf-inference/models/mistralai/Mistral-7B-Instruct-v0.1" {
		t.Errorf("Unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Expected bearer token header, got %q", gotAuth)
	}
}

func TestTaskURL_UsesRoutingHint(t *testing.T) {
	c := newTestClient("https://example.test")
	url := c.taskURL("black-forest-labs/FLUX.1-dev")
	if !strings.Contains(url, "/fal-ai/models/") {
		t.Errorf("Expected fal-ai routing segment, got %s", url)
	}
}

func TestTextToImage_BinaryPassthrough(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	img, err := c.TextToImage(context.Background(), "some/model", "a cat", ImageParams{Height: 512, Width: 512})
	if err != nil {
		t.Fatalf("TextToImage failed: %v", err)
	}
	if string(img) != string(payload) {
		t.Errorf("Image bytes were not passed through opaque")
	}
}

func TestDo_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   dispatch.Kind
	}{
		{http.StatusNotFound, dispatch.KindModelUnavailable},
		{http.StatusGatewayTimeout, dispatch.KindTimeout},
		{http.StatusTooManyRequests, dispatch.KindRateLimited},
		{http.StatusUnprocessableEntity, dispatch.KindValidation},
		{http.StatusInternalServerError, dispatch.KindProvider},
		{http.StatusBadGateway, dispatch.KindProvider},
	}

	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tc.status == http.StatusTooManyRequests {
				w.Header().Set("Retry-After", "42")
			}
			w.WriteHeader(tc.status)
			w.Write([]byte("nope"))
		}))

		c := newTestClient(server.URL)
		_, err := c.TextToSpeech(context.Background(), "some/model", "hello")
		if dispatch.KindOf(err) != tc.kind {
			t.Errorf("Status %d: expected kind %s, got %v", tc.status, tc.kind, err)
		}

		if tc.status == http.StatusTooManyRequests {
			var de *dispatch.Error
			if !errors.As(err, &de) {
				t.Fatalf("Expected dispatch error, got %T", err)
			}
			if de.Details["retry_after_seconds"].(float64) != 42 {
				t.Errorf("Expected retry_after_seconds 42, got %v", de.Details["retry_after_seconds"])
			}
		}
		server.Close()
	}
}

func TestDo_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	for i := 0; i < 3; i++ {
		c.TextToSpeech(context.Background(), "some/model", "hello")
	}

	_, err := c.TextToSpeech(context.Background(), "some/model", "hello")
	if dispatch.KindOf(err) != dispatch.KindModelUnavailable {
		t.Errorf("Expected model_unavailable once breaker opened, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected breaker to short-circuit the 4th call, server saw %d", calls)
	}
}

func TestTranscribe_RawAudioPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "audio/wav" {
			t.Errorf("Expected audio/wav content type, got %q", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello world"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	raw, err := c.Transcribe(context.Background(), "openai/whisper-base", []byte("RIFF...."), "audio/wav")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if !strings.Contains(string(raw), "hello world") {
		t.Errorf("Expected raw transcription payload, got %s", raw)
	}
}
