package repository

import (
	"context"
	"sync"

	"github.com/mmeshcher/clinic-ledger/internal/model"
)

// MemoryRepository хранит снимок журнала в памяти процесса.
type MemoryRepository struct {
	mu       sync.RWMutex
	snapshot model.Snapshot
	closed   bool
}

// NewMemoryRepository создаёт хранилище с копией начального снимка.
func NewMemoryRepository(initial model.Snapshot) *MemoryRepository {
	return &MemoryRepository{snapshot: initial.Clone()}
}

// LoadSnapshot возвращает копию сохранённого снимка.
func (r *MemoryRepository) LoadSnapshot(_ context.Context) (model.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return model.Snapshot{}, ErrClosed
	}
	return r.snapshot.Clone(), nil
}

// SaveSnapshot заменяет сохранённый снимок копией переданного.
func (r *MemoryRepository) SaveSnapshot(_ context.Context, snap model.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	r.snapshot = snap.Clone()
	return nil
}

// Close закрывает хранилище.
func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return nil
}
