package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rahulmehra/exampack/internal/audit"
)

// AuditRepository is the durable audit sink. Inserts are append-only; the
// application never updates or deletes rows.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository constructs the sink.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// RecordAudit appends one entry.
func (r *AuditRepository) RecordAudit(ctx context.Context, e audit.Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_entries (file_name, exam_id, mode, policy, outcome, errors, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, e.FileName, e.ExamID, e.Mode, e.Policy, e.Outcome, e.Errors, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
