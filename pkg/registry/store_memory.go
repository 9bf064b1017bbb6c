package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/oarkflow/pipeline/pkg/contracts"
)

// MemoryStore keeps transform sources in memory, keyed by org and name.
type MemoryStore struct {
	mu    sync.RWMutex
	funcs map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{funcs: make(map[string]string)}
}

func (s *MemoryStore) Register(org, name, source string) {
	s.mu.Lock()
	s.funcs[org+"/"+name] = source
	s.mu.Unlock()
}

func (s *MemoryStore) GetTransform(_ context.Context, org, name string) (string, error) {
	s.mu.RLock()
	source, ok := s.funcs[org+"/"+name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("transform %s/%s not found", org, name)
	}
	return source, nil
}

var _ contracts.FunctionStore = (*MemoryStore)(nil)
