package repository

import (
	"context"
	"sync"
	"time"

	"github.com/rahulmehra/exampack/internal/model"
)

// MemoryStore is an in-memory BundleStore for tests and single-process
// development runs. RWMutex lets concurrent status reads proceed while
// writes stay exclusive.
type MemoryStore struct {
	mu      sync.RWMutex
	bundles map[string]*model.Bundle
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bundles: make(map[string]*model.Bundle)}
}

// Create inserts a queued bundle.
func (m *MemoryStore) Create(_ context.Context, b *model.Bundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	b.Status = model.StatusQueued
	b.CreatedAt = now
	b.UpdatedAt = now
	stored := *b
	m.bundles[b.ID] = &stored
	return nil
}

// Get returns a copy so callers cannot mutate stored state.
func (m *MemoryStore) Get(_ context.Context, id string) (*model.Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bundles[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *b
	return &out, nil
}

// MarkProcessing sets the status to processing.
func (m *MemoryStore) MarkProcessing(_ context.Context, id string) error {
	return m.update(id, func(b *model.Bundle) {
		b.Status = model.StatusProcessing
	})
}

// MarkCompleted stores the archive key and manifest.
func (m *MemoryStore) MarkCompleted(_ context.Context, id, archiveKey string, manifest []byte) error {
	return m.update(id, func(b *model.Bundle) {
		b.Status = model.StatusCompleted
		key := archiveKey
		b.ArchiveKey = &key
		b.Manifest = append([]byte(nil), manifest...)
		b.Error = nil
	})
}

// MarkFailed records the failure message.
func (m *MemoryStore) MarkFailed(_ context.Context, id, msg string) error {
	return m.update(id, func(b *model.Bundle) {
		b.Status = model.StatusFailed
		message := msg
		b.Error = &message
	})
}

func (m *MemoryStore) update(id string, fn func(*model.Bundle)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bundles[id]
	if !ok {
		return ErrNotFound
	}
	fn(b)
	b.UpdatedAt = time.Now().UTC()
	return nil
}
