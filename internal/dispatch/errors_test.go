package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestError_SuggestedStatus(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
	}{
		{Validation("bad", nil), http.StatusUnprocessableEntity},
		{ModelUnavailable("m", "text"), http.StatusNotFound},
		{ProviderFailure(500, "boom"), http.StatusBadGateway},
		{Processing("decode", "boom"), http.StatusInternalServerError},
		{Timeout("slow", time.Minute), http.StatusGatewayTimeout},
		{RateLimited("slow down", time.Minute), http.StatusTooManyRequests},
		{PayloadTooLarge(11, 10, "image"), http.StatusRequestEntityTooLarge},
		{UnsupportedFormat("image", "bmp", []string{"png"}), http.StatusBadRequest},
	}

	for _, tc := range cases {
		if tc.err.Status() != tc.status {
			t.Errorf("%s: expected status %d, got %d", tc.err.Kind, tc.status, tc.err.Status())
		}
	}
}

func TestPayloadTooLarge_Details(t *testing.T) {
	err := PayloadTooLarge(1025, 1024, "video")
	if err.Details["actual"].(int64) != 1025 {
		t.Errorf("Expected actual 1025, got %v", err.Details["actual"])
	}
	if err.Details["max"].(int64) != 1024 {
		t.Errorf("Expected max 1024, got %v", err.Details["max"])
	}
	if err.Details["kind"] != "video" {
		t.Errorf("Expected kind video, got %v", err.Details["kind"])
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	inner := RateLimited("chill", 30*time.Second)
	wrapped := fmt.Errorf("dispatching: %w", inner)

	if KindOf(wrapped) != KindRateLimited {
		t.Errorf("Expected rate_limited through wrapping, got %v", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Errorf("Expected empty kind for untyped error")
	}
}

func TestRetryable_Defaults(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{Timeout("slow", time.Second), true},
		{ProviderFailure(502, "bad gateway"), true},
		{Processing("decode", "boom"), true},
		{ModelUnavailable("m", "tts"), true},
		{PayloadTooLarge(2, 1, "audio"), true},
		{errors.New("who knows"), true},
		{Validation("bad", nil), false},
		{UnsupportedFormat("audio", "ogg", nil), false},
		{RateLimited("slow down", 0), false},
	}

	for _, tc := range cases {
		if Retryable(tc.err) != tc.retryable {
			t.Errorf("Retryable(%v): expected %v", tc.err, tc.retryable)
		}
	}
}
