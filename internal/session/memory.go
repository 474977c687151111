package session

import (
	"context"
	"sync"
)

// MemoryStore keeps the snapshot in process. It stores the encoded form so
// it behaves like the durable stores (copies, system filtering).
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return decodeSnapshot(s.data)
}

func (s *MemoryStore) Save(_ context.Context, msgs []Message) error {
	data, err := encodeSnapshot(msgs)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.data = nil
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
