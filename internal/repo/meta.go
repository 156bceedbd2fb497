package meta

import (
	"context"
	"sync"

	"github.com/sir_venger/bigfile/internal/models"
)

// MemoryStore хранит манифесты только в оперативной памяти; удобно для тестов.
type MemoryStore struct {
	mu        sync.RWMutex
	manifests map[string]models.Manifest
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore создаёт пустое in-memory хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{manifests: map[string]models.Manifest{}}
}

// Get возвращает манифест по id или ошибку, если его нет.
func (s *MemoryStore) Get(_ context.Context, id string) (models.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.manifests[id]
	if !ok {
		return models.Manifest{}, models.ErrNotFound
	}
	return m.Clone(), nil
}

// Save записывает манифест, если его ещё нет.
func (s *MemoryStore) Save(_ context.Context, m models.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.manifests[m.ID]; ok {
		return nil
	}
	s.manifests[m.ID] = m.Clone()
	return nil
}
