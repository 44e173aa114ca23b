package cache

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

// Invalidator drops cached read-model entries for a name.
// Entries are repopulated by readers, never by the indexer.
type Invalidator interface {
	Invalidate(ctx context.Context, nameHash common.Hash) error
}

// Cache is a read-through cache keyed by name hash
type Cache interface {
	Invalidator
	Get(ctx context.Context, nameHash common.Hash) ([]byte, bool, error)
	Set(ctx context.Context, nameHash common.Hash, value []byte) error
}

const DefaultCacheSize = 1024

// LocalCache is an in-process LRU cache
type LocalCache struct {
	*lru.Cache
}

var _ Cache = (*LocalCache)(nil)

func NewLocalCache(size int) (*LocalCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LocalCache{c}, nil
}

func (c *LocalCache) Get(ctx context.Context, nameHash common.Hash) ([]byte, bool, error) {
	v, ok := c.Cache.Get(nameHash)
	if !ok {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

func (c *LocalCache) Set(ctx context.Context, nameHash common.Hash, value []byte) error {
	c.Cache.Add(nameHash, value)
	return nil
}

func (c *LocalCache) Invalidate(ctx context.Context, nameHash common.Hash) error {
	c.Cache.Remove(nameHash)
	return nil
}

// Noop never caches anything
type Noop struct{}

var _ Cache = Noop{}

func (Noop) Get(ctx context.Context, nameHash common.Hash) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Set(ctx context.Context, nameHash common.Hash, value []byte) error    { return nil }
func (Noop) Invalidate(ctx context.Context, nameHash common.Hash) error          { return nil }
