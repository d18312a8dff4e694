package usage

import (
	"context"
	"time"
)

// Record is one accounted inference dispatch. OutputBytes is the size of the
// returned payload (generated text length or media bytes); Status is the
// final outcome: "ok" or the failure category.
type Record struct {
	ID          string
	TenantID    string
	RequestID   string
	Modality    string
	Model       string
	Provider    string
	OutputBytes int64
	LatencyMs   int64
	Status      string
	CreatedAt   time.Time
}

// Summary aggregates a tenant's dispatches per modality over a window.
type Summary struct {
	Modality    string
	Requests    int64
	OutputBytes int64
}

type Store interface {
	Record(ctx context.Context, rec *Record) error
	ByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*Record, error)
	SummaryByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*Summary, error)
}
