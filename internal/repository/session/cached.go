package session

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore keeps recently used sessions in process. The origin store stays
// the source of truth; Forget drops the in-process copy only.
type CachedStore struct {
	origin Store
	cache  *lru.Cache[string, []byte]
}

func NewCachedStore(origin Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("init session cache: %w", err)
	}
	return &CachedStore{origin: origin, cache: cache}, nil
}

func (s *CachedStore) Load(ctx context.Context, id string) (Snapshot, error) {
	if data, ok := s.cache.Get(id); ok {
		return decode(data)
	}
	snap, err := s.origin.Load(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	if data, err := encode(snap); err == nil {
		s.cache.Add(id, data)
	}
	return snap, nil
}

func (s *CachedStore) Save(ctx context.Context, id string, snap Snapshot) error {
	if err := s.origin.Save(ctx, id, snap); err != nil {
		s.cache.Remove(id)
		return err
	}
	if data, err := encode(snap); err == nil {
		s.cache.Add(id, data)
	}
	return nil
}

// Forget evicts id from the cache.
func (s *CachedStore) Forget(id string) {
	s.cache.Remove(id)
}
