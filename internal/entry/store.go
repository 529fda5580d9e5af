package entry

import (
	"context"
	"sync"
)

// Store persists entries. The registry is the only writer.
type Store interface {
	Load(ctx context.Context) ([]*Entry, error)
	Save(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, entryID string) error
	Close() error
}

// MemoryStore keeps entries in process memory. Used by tests and by the
// one-shot CLI commands when no database is configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

func (s *MemoryStore) Load(_ context.Context) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*Entry, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.entries[id].Clone())
	}
	return result, nil
}

func (s *MemoryStore) Save(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[e.EntryID]; !ok {
		s.order = append(s.order, e.EntryID)
	}
	s.entries[e.EntryID] = e.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entryID]; !ok {
		return nil
	}
	delete(s.entries, entryID)
	for i, id := range s.order {
		if id == entryID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
