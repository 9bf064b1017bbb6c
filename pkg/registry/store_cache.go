package registry

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/oarkflow/pipeline/pkg/contracts"
)

// CachedStore is a read-through cache over another function store, so
// repeated pipeline compilations do not hit the backing store for every
// function node.
type CachedStore struct {
	store contracts.FunctionStore
	cache *ristretto.Cache
}

func NewCachedStore(store contracts.FunctionStore, maxEntries int) (*CachedStore, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(maxEntries * 10),
		MaxCost:     int64(maxEntries),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating function cache: %w", err)
	}
	return &CachedStore{store: store, cache: cache}, nil
}

func (s *CachedStore) GetTransform(ctx context.Context, org, name string) (string, error) {
	key := org + "/" + name
	if v, found := s.cache.Get(key); found {
		return v.(string), nil
	}
	source, err := s.store.GetTransform(ctx, org, name)
	if err != nil {
		return "", err
	}
	s.cache.Set(key, source, 1)
	return source, nil
}

// Invalidate drops a cached transform, e.g. after the function is updated.
func (s *CachedStore) Invalidate(org, name string) {
	s.cache.Del(org + "/" + name)
}

var _ contracts.FunctionStore = (*CachedStore)(nil)
