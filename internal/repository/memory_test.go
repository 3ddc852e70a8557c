package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/rahulmehra/exampack/internal/model"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	b := &model.Bundle{ID: "b1", ExamID: "ssc", RollNumber: "SSC123", Policy: "strict"}
	if err := store.Create(ctx, b); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusQueued {
		t.Errorf("status = %q, want queued", got.Status)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Errorf("timestamps should be set on create")
	}

	if err := store.MarkProcessing(ctx, "b1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := store.MarkCompleted(ctx, "b1", "bundles/b1/ssc_SSC123.zip", []byte(`{"examId":"ssc"}`)); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	got, err = store.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.ArchiveKey == nil || *got.ArchiveKey != "bundles/b1/ssc_SSC123.zip" {
		t.Errorf("archive key = %v", got.ArchiveKey)
	}
	if string(got.Manifest) != `{"examId":"ssc"}` {
		t.Errorf("manifest = %s", got.Manifest)
	}
	if got.Error != nil {
		t.Errorf("completed bundle should carry no error")
	}
}

func TestMemoryStoreMarkFailed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, &model.Bundle{ID: "b2", ExamID: "upsc"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.MarkFailed(ctx, "b2", "unmatched: notes.txt"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, err := store.Get(ctx, "b2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusFailed || got.Error == nil || *got.Error != "unmatched: notes.txt" {
		t.Errorf("bundle = %+v", got)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
	if err := store.MarkProcessing(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkProcessing missing = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, &model.Bundle{ID: "b3", ExamID: "ibps"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, _ := store.Get(ctx, "b3")
	got.Status = model.StatusFailed
	again, _ := store.Get(ctx, "b3")
	if again.Status != model.StatusQueued {
		t.Errorf("mutating a Get result must not touch stored state, status = %q", again.Status)
	}
}
