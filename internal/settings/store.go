package settings

import (
	"context"
	"sync"
)

// Keys the subsystem reads from the settings collaborator.
const (
	KeyAPIKey           = "api_key"
	KeyStaleThresholdMs = "stale_threshold_ms"
)

// MemoryStore is an in-process implementation of the settings contract. The
// real collaborator lives outside the subsystem; this one backs tests and
// single-binary deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore(initial map[string]string) *MemoryStore {
	values := make(map[string]string, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &MemoryStore{values: values}
}

func (s *MemoryStore) Get(ctx context.Context, keys []string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if value, ok := s.values[key]; ok {
			out[key] = value
		}
	}
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, values map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
	return nil
}
