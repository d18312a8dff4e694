package dispatch

import (
	"context"
	"log/slog"
)

// DoWithFallback drives the retry executor across an ordered list of
// candidate models, strictly in list order, never concurrently: the next
// candidate is only worth contacting after the current one definitively
// fails. The winning candidate is returned alongside the result. When every
// candidate is exhausted the last recorded error propagates unchanged,
// preserving its diagnostic detail.
//
// The candidate is handed to op as an explicit typed parameter; there is no
// positional-argument rewriting involved in substituting fallback models.
func DoWithFallback[T any](ctx context.Context, policy Policy, retryable func(error) bool, candidates []string, op func(ctx context.Context, model string) (T, error)) (T, string, error) {
	var zero T

	if len(candidates) == 0 {
		return zero, "", Validation("no candidate models to dispatch", nil)
	}

	var lastErr error
	for _, model := range candidates {
		result, err := Do(ctx, policy, retryable, func(ctx context.Context) (T, error) {
			return op(ctx, model)
		})
		if err == nil {
			return result, model, nil
		}
		lastErr = err

		slog.Warn("candidate model exhausted",
			"model", model,
			"error", err,
		)

		if ctx.Err() != nil {
			break
		}
	}

	return zero, "", lastErr
}
