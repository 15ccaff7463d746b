//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/metrics"
	"github.com/manetu/authzengine/pkg/core/store"
)

const revokeCacheSize = 128

// revokeCache remembers, per resource type, whether any revoke record
// exists.  It backs the AUTO revoke mode and is invalidated by store writes.
type revokeCache struct {
	store   store.Store
	cache   *lru.Cache[int, bool]
	metrics *metrics.Metrics

	// generation changes on every invalidation.  A lookup caches its answer
	// only if no invalidation happened since it started; mu makes that test
	// and the add one step with respect to invalidate.
	mu         sync.Mutex
	generation uint64
}

func newRevokeCache(s store.Store, m *metrics.Metrics) (*revokeCache, error) {
	cache, err := lru.New[int, bool](revokeCacheSize)
	if err != nil {
		return nil, err
	}
	return &revokeCache{store: s, cache: cache, metrics: m}, nil
}

func (c *revokeCache) include(ctx context.Context, mode check.RevokeMode, resourceType int) (bool, error) {
	if mode == check.Always {
		return true, nil
	}

	if exists, ok := c.cache.Get(resourceType); ok {
		c.metrics.RevokeCache(true)
		return exists, nil
	}
	c.metrics.RevokeCache(false)

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	exists, err := c.store.HasRevokes(ctx, resourceType)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.cache.Add(resourceType, exists)
	}
	return exists, nil
}

func (c *revokeCache) invalidate(resourceType int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if resourceType == store.AllResourceTypes {
		c.cache.Purge()
		return
	}
	c.cache.Remove(resourceType)
}
