package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps encoded values in process memory. Values still pass
// through JSON so callers observe the same rehydration as the durable
// backends.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte

	// FailSaves makes every Save return this error, for exercising
	// persistence failures.
	FailSaves error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, key string, v any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.data[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupted, key, err)
	}
	return true, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaves != nil {
		return s.FailSaves
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	s.data[key] = raw
	return nil
}

func (s *MemoryStore) Close() error { return nil }
