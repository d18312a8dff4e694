// Package dispatch implements the resilient dispatch layer shared by every
// modality service: a closed error taxonomy, an exponential-backoff retry
// executor, and a fallback chain over alternate models.
package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is the closed set of failure categories a dispatch can surface.
// Every error crossing the dispatch boundary carries exactly one Kind;
// provider- and transport-specific error types never leak past it.
type Kind string

const (
	KindValidation        Kind = "validation_failure"
	KindModelUnavailable  Kind = "model_unavailable"
	KindProvider          Kind = "provider_failure"
	KindProcessing        Kind = "processing_failure"
	KindTimeout           Kind = "request_timeout"
	KindRateLimited       Kind = "rate_limited"
	KindPayloadTooLarge   Kind = "payload_too_large"
	KindUnsupportedFormat Kind = "unsupported_format"
)

// Error is the typed failure surfaced by every dispatcher operation.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Status is the suggested transport status for the error kind. The HTTP
// layer owns the actual mapping; this is its single source of truth.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindModelUnavailable:
		return http.StatusNotFound
	case KindProvider:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnsupportedFormat:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func Validation(msg string, details map[string]any) *Error {
	return &Error{Kind: KindValidation, Message: msg, Details: details}
}

func ModelUnavailable(model, service string) *Error {
	return &Error{
		Kind:    KindModelUnavailable,
		Message: fmt.Sprintf("model %q not available for service %q", model, service),
		Details: map[string]any{"model": model, "service": service},
	}
}

func ProviderFailure(status int, msg string) *Error {
	return &Error{
		Kind:    KindProvider,
		Message: msg,
		Details: map[string]any{"status": status},
	}
}

func Processing(stage, msg string) *Error {
	return &Error{
		Kind:    KindProcessing,
		Message: msg,
		Details: map[string]any{"stage": stage},
	}
}

func Timeout(msg string, timeout time.Duration) *Error {
	return &Error{
		Kind:    KindTimeout,
		Message: msg,
		Details: map[string]any{"timeout_seconds": timeout.Seconds()},
	}
}

func RateLimited(msg string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:    KindRateLimited,
		Message: msg,
		Details: map[string]any{"retry_after_seconds": retryAfter.Seconds()},
	}
}

func PayloadTooLarge(actual, max int64, kind string) *Error {
	return &Error{
		Kind:    KindPayloadTooLarge,
		Message: fmt.Sprintf("%s payload of %d bytes exceeds maximum %d bytes", kind, actual, max),
		Details: map[string]any{"actual": actual, "max": max, "kind": kind},
	}
}

func UnsupportedFormat(kind, got string, supported []string) *Error {
	return &Error{
		Kind:    KindUnsupportedFormat,
		Message: fmt.Sprintf("unsupported %s format %q", kind, got),
		Details: map[string]any{"kind": kind, "got": got, "supported": supported},
	}
}

// KindOf classifies err, returning the empty Kind for untyped errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Retryable is the default retryability predicate: validation-class failures
// never retry, and rate limits surface immediately so the caller can honor
// retry-after. Everything else retries, transient model outages included —
// the default optimizes for eventual success over fast-fail. Call sites that
// want to fail fast on specific kinds inject their own predicate.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindUnsupportedFormat, KindRateLimited:
		return false
	}
	return true
}
