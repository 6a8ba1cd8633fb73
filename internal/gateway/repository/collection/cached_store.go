package collectionrepo

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"shiyin/internal/collection"
)

type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        5 * time.Minute,
		MaxEntries: 1024,
	}
}

type MetricsSnapshot struct {
	Hits           uint64
	Misses         uint64
	OriginReads    uint64
	OriginWrites   uint64
	OriginReadErr  uint64
	OriginWriteErr uint64
}

type metrics struct {
	hits           atomic.Uint64
	misses         atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
}

// CachedStore is a write-through read cache in front of an origin store.
// Unknown owners are not cached, so a later Save elsewhere is picked up.
type CachedStore struct {
	origin  Store
	cache   *expirable.LRU[string, []collection.Item]
	metrics metrics
}

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	return &CachedStore{
		origin: origin,
		cache:  expirable.NewLRU[string, []collection.Item](cfg.MaxEntries, nil, cfg.TTL),
	}
}

func (s *CachedStore) Load(ctx context.Context, owner string) ([]collection.Item, error) {
	key, err := normalizeOwner(owner)
	if err != nil {
		return nil, err
	}
	if items, ok := s.cache.Get(key); ok {
		s.metrics.hits.Add(1)
		return copyItems(items), nil
	}
	s.metrics.misses.Add(1)
	s.metrics.originReads.Add(1)

	items, err := s.origin.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.metrics.originReadErr.Add(1)
		}
		return nil, err
	}
	s.cache.Add(key, copyItems(items))
	return items, nil
}

func (s *CachedStore) Save(ctx context.Context, owner string, items []collection.Item) error {
	key, err := normalizeOwner(owner)
	if err != nil {
		return err
	}
	s.metrics.originWrites.Add(1)
	if err := s.origin.Save(ctx, key, items); err != nil {
		s.metrics.originWriteErr.Add(1)
		s.cache.Remove(key)
		return err
	}
	s.cache.Add(key, copyItems(items))
	return nil
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Hits:           s.metrics.hits.Load(),
		Misses:         s.metrics.misses.Load(),
		OriginReads:    s.metrics.originReads.Load(),
		OriginWrites:   s.metrics.originWrites.Load(),
		OriginReadErr:  s.metrics.originReadErr.Load(),
		OriginWriteErr: s.metrics.originWriteErr.Load(),
	}
}
