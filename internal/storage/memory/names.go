package memory

import (
	"context"
	"sync"

	"github.com/Vasu1712/scenyx-inbox/internal/storage"
)

// NameStore is the in-memory display-name directory.
type NameStore struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewNameStore(seed map[string]string) *NameStore {
	names := make(map[string]string, len(seed))
	for id, name := range seed {
		names[id] = name
	}
	return &NameStore{names: names}
}

func (s *NameStore) Get(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.names[id]
	if !ok {
		return "", storage.ErrNotFound
	}
	return name, nil
}

func (s *NameStore) Set(_ context.Context, id, name string) error {
	s.mu.Lock()
	s.names[id] = name
	s.mu.Unlock()
	return nil
}
