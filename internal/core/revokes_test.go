//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"context"
	"sync"
	"testing"

	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/manetu/authzengine/pkg/core/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lagging answers HasRevokes from before the write that after performs.
type lagging struct {
	store.Store
	after func()
}

func (s *lagging) HasRevokes(ctx context.Context, resourceType int) (bool, error) {
	exists, err := s.Store.HasRevokes(ctx, resourceType)
	if s.after != nil {
		after := s.after
		s.after = nil
		after()
	}
	return exists, err
}

func writeRevoke(t *testing.T, s store.Store, c *revokeCache, id string) {
	t.Helper()
	assert.NoError(t, s.Insert(context.Background(), revoke(id, "demo", "", read)))
	c.invalidate(resources.Task.ID)
}

func TestRevokeCacheSkipsStaleAnswer(t *testing.T) {
	ctx := context.Background()
	s := &lagging{Store: memory.New()}
	c, err := newRevokeCache(s, nil)
	require.NoError(t, err)
	s.after = func() { writeRevoke(t, s.Store, c, "t1") }

	exists, err := c.include(ctx, check.Auto, resources.Task.ID)
	require.NoError(t, err)
	assert.False(t, exists)
	_, cached := c.cache.Get(resources.Task.ID)
	assert.False(t, cached)

	exists, err = c.include(ctx, check.Auto, resources.Task.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRevokeCacheConcurrentInvalidation(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 50; round++ {
		s := memory.New()
		c, err := newRevokeCache(s, nil)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					_, err := c.include(ctx, check.Auto, resources.Task.ID)
					assert.NoError(t, err)
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			writeRevoke(t, s, c, model.Any)
		}()
		wg.Wait()

		exists, err := c.include(ctx, check.Auto, resources.Task.ID)
		require.NoError(t, err)
		require.True(t, exists, "round %d cached a stale answer", round)
	}
}

func TestRevokeCacheAlways(t *testing.T) {
	c, err := newRevokeCache(memory.New(), nil)
	require.NoError(t, err)

	exists, err := c.include(context.Background(), check.Always, resources.Task.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 0, c.cache.Len())
}
