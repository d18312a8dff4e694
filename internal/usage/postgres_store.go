package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO usage_records (tenant_id, request_id, modality, model, provider, output_bytes, latency_ms, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := s.db.QueryRow(ctx, query,
		rec.TenantID, rec.RequestID, rec.Modality, rec.Model,
		rec.Provider, rec.OutputBytes, rec.LatencyMs, rec.Status,
	).Scan(&rec.ID, &rec.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	return nil
}

func (s *PostgresStore) ByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*Record, error) {
	query := `
		SELECT id, tenant_id, request_id, modality, model, provider, output_bytes, latency_ms, status, created_at
		FROM usage_records
		WHERE tenant_id = $1 AND created_at BETWEEN $2 AND $3
		ORDER BY created_at DESC
	`
	rows, err := s.db.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var r Record
		err := rows.Scan(
			&r.ID, &r.TenantID, &r.RequestID, &r.Modality, &r.Model,
			&r.Provider, &r.OutputBytes, &r.LatencyMs, &r.Status, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage records: %w", err)
	}

	return records, nil
}

func (s *PostgresStore) SummaryByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*Summary, error) {
	query := `
		SELECT modality, COUNT(*), COALESCE(SUM(output_bytes), 0)
		FROM usage_records
		WHERE tenant_id = $1 AND created_at BETWEEN $2 AND $3
		GROUP BY modality
		ORDER BY modality
	`
	rows, err := s.db.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}
	defer rows.Close()

	var summaries []*Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.Modality, &s.Requests, &s.OutputBytes); err != nil {
			return nil, fmt.Errorf("failed to scan usage summary: %w", err)
		}
		summaries = append(summaries, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage summary: %w", err)
	}

	return summaries, nil
}
