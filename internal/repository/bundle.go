// Package repository wraps all persistence used by the API and worker:
// bundle rows and the durable audit sink.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rahulmehra/exampack/internal/model"
)

// ErrNotFound is returned when a bundle id does not exist.
var ErrNotFound = errors.New("bundle not found")

// BundleStore abstracts bundle persistence so the API can run against
// Postgres in production and the in-memory store in tests and local dev.
type BundleStore interface {
	Create(ctx context.Context, b *model.Bundle) error
	Get(ctx context.Context, id string) (*model.Bundle, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, archiveKey string, manifest []byte) error
	MarkFailed(ctx context.Context, id, msg string) error
}

// BundleRepository is the Postgres-backed BundleStore.
type BundleRepository struct {
	pool *pgxpool.Pool
}

// NewBundleRepository constructs a repository.
func NewBundleRepository(pool *pgxpool.Pool) *BundleRepository {
	return &BundleRepository{pool: pool}
}

// Create inserts a queued bundle before the build begins.
func (r *BundleRepository) Create(ctx context.Context, b *model.Bundle) error {
	now := time.Now().UTC()
	b.Status = model.StatusQueued
	b.CreatedAt = now
	b.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bundles (id, exam_id, roll_number, policy, status, archive_key, manifest, error_message, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, b.ID, b.ExamID, b.RollNumber, b.Policy, b.Status, nil, nil, nil, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert bundle: %w", err)
	}
	return nil
}

// Get returns a bundle by id.
func (r *BundleRepository) Get(ctx context.Context, id string) (*model.Bundle, error) {
	var (
		b          model.Bundle
		archiveKey sql.NullString
		manifest   []byte
		errorMsg   sql.NullString
	)
	row := r.pool.QueryRow(ctx, `
		SELECT id, exam_id, roll_number, policy, status, archive_key, manifest, error_message, created_at, updated_at
		FROM bundles WHERE id=$1
	`, id)
	if err := row.Scan(&b.ID, &b.ExamID, &b.RollNumber, &b.Policy, &b.Status, &archiveKey, &manifest, &errorMsg, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select bundle: %w", err)
	}
	if archiveKey.Valid {
		key := archiveKey.String
		b.ArchiveKey = &key
	}
	if len(manifest) > 0 {
		b.Manifest = manifest
	}
	if errorMsg.Valid {
		msg := errorMsg.String
		b.Error = &msg
	}
	return &b, nil
}

// MarkProcessing sets the status to processing.
func (r *BundleRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.update(ctx, id, model.StatusProcessing, nil, nil, nil)
}

// MarkCompleted stores the archive object key and the build manifest.
func (r *BundleRepository) MarkCompleted(ctx context.Context, id, archiveKey string, manifest []byte) error {
	return r.update(ctx, id, model.StatusCompleted, &archiveKey, manifest, nil)
}

// MarkFailed marks the build attempt as failed and stores the message.
func (r *BundleRepository) MarkFailed(ctx context.Context, id, msg string) error {
	return r.update(ctx, id, model.StatusFailed, nil, nil, &msg)
}

func (r *BundleRepository) update(ctx context.Context, id string, status model.BundleStatus, archiveKey *string, manifest []byte, errorMsg *string) error {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE bundles
		SET status=$1,
			archive_key = COALESCE($2, archive_key),
			manifest = COALESCE($3, manifest),
			error_message = $4,
			updated_at=$5
		WHERE id=$6
	`, status, archiveKey, manifest, errorMsg, now, id)
	if err != nil {
		return fmt.Errorf("update bundle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
