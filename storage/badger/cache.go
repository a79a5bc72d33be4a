package badger

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/atlasnet/atlas-go/storage"
)

type retrieveFunc func(key interface{}) (interface{}, error)

// cache is a read-through LRU in front of a badger retrieval function.
// Only immutable records (synced checkpoints, contents manifests) go through
// it, so entries never need invalidation.
type cache struct {
	backing  *lru.Cache
	retrieve retrieveFunc
}

func newCache(limit int, retrieve retrieveFunc) *cache {
	backing, _ := lru.New(limit)
	return &cache{
		backing:  backing,
		retrieve: retrieve,
	}
}

// get returns the cached resource, falling back to the retrieval function on
// a miss. Misses for missing database keys are not cached.
func (c *cache) get(key interface{}) (interface{}, error) {
	if resource, cached := c.backing.Get(key); cached {
		return resource, nil
	}

	resource, err := c.retrieve(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("could not retrieve resource: %w", err)
	}

	c.backing.Add(key, resource)
	return resource, nil
}

// insert adds a resource to the cache without touching the database.
func (c *cache) insert(key interface{}, resource interface{}) {
	c.backing.Add(key, resource)
}
