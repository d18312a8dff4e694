package dispatch

import (
	"context"
	"errors"
	"testing"
)

func TestDoWithFallback_WinnerReported(t *testing.T) {
	calls := []string{}

	result, winner, err := DoWithFallback(context.Background(), testPolicy(2), nil,
		[]string{"model-a", "model-b", "model-c"},
		func(ctx context.Context, model string) (string, error) {
			calls = append(calls, model)
			if model == "model-c" {
				return "payload", nil
			}
			return "", Validation("provider rejected request", nil)
		})

	if err != nil {
		t.Fatalf("DoWithFallback failed: %v", err)
	}
	if result != "payload" {
		t.Errorf("Expected payload, got %q", result)
	}
	if winner != "model-c" {
		t.Errorf("Expected winner model-c, got %q", winner)
	}

	// validation failures are non-retryable, so each loser is tried exactly
	// once and strictly in order.
	want := []string{"model-a", "model-b", "model-c"}
	if len(calls) != len(want) {
		t.Fatalf("Expected %d calls, got %d: %v", len(want), len(calls), calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("Call %d: expected %s, got %s", i, want[i], calls[i])
		}
	}
}

func TestDoWithFallback_LastErrorPropagates(t *testing.T) {
	lastErr := ProviderFailure(503, "model-b melted")

	_, _, err := DoWithFallback(context.Background(), testPolicy(0), nil,
		[]string{"model-a", "model-b"},
		func(ctx context.Context, model string) (int, error) {
			if model == "model-a" {
				return 0, ProviderFailure(500, "model-a melted")
			}
			return 0, lastErr
		})

	if !errors.Is(err, lastErr) {
		t.Errorf("Expected the last candidate's error, got %v", err)
	}
}

func TestDoWithFallback_EmptyCandidates(t *testing.T) {
	calls := 0

	_, _, err := DoWithFallback(context.Background(), testPolicy(3), nil, nil,
		func(ctx context.Context, model string) (string, error) {
			calls++
			return "", nil
		})

	if calls != 0 {
		t.Errorf("Expected zero calls for empty candidate list, got %d", calls)
	}
	if KindOf(err) != KindValidation {
		t.Errorf("Expected validation failure, got %v", err)
	}
}

func TestDoWithFallback_RetriesWithinCandidate(t *testing.T) {
	attempts := map[string]int{}

	_, winner, err := DoWithFallback(context.Background(), testPolicy(1), nil,
		[]string{"flaky", "steady"},
		func(ctx context.Context, model string) (string, error) {
			attempts[model]++
			if model == "flaky" {
				return "", Timeout("still warming up", 0)
			}
			return "done", nil
		})

	if err != nil {
		t.Fatalf("DoWithFallback failed: %v", err)
	}
	if winner != "steady" {
		t.Errorf("Expected winner steady, got %q", winner)
	}
	if attempts["flaky"] != 2 {
		t.Errorf("Expected flaky to get 1+1 attempts, got %d", attempts["flaky"])
	}
	if attempts["steady"] != 1 {
		t.Errorf("Expected steady to succeed on first attempt, got %d", attempts["steady"])
	}
}
