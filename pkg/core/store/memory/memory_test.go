//
//  Copyright © Manetu Inc. All rights reserved.
//

package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userGrant(r resources.Resource, id, user string, p resources.Permission) *model.Authorization {
	a := model.New(model.Grant, r, id)
	a.UserID = user
	a.AddPermission(p)
	return a
}

func TestCopiesInAndOut(t *testing.T) {
	ctx := context.Background()
	s := New()

	removal := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := userGrant(resources.Task, "t1", "demo", resources.TaskPerms.Read)
	a.RemovalTime = &removal
	require.NoError(t, s.Insert(ctx, a))

	a.UserID = "mallory"
	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "demo", got.UserID)
	require.NotNil(t, got.RemovalTime)
	assert.True(t, removal.Equal(*got.RemovalTime))

	got.Permissions = 0
	again, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, resources.TaskPerms.Read.Value, again.Permissions)
}

func TestUpdateScopeMove(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := userGrant(resources.Task, "t1", "demo", resources.TaskPerms.Read)
	b := userGrant(resources.Task, "t2", "demo", resources.TaskPerms.Read)
	require.NoError(t, s.Insert(ctx, a))
	require.NoError(t, s.Insert(ctx, b))

	moved := *b
	moved.ResourceID = "t1"
	assert.ErrorIs(t, s.Update(ctx, &moved), common.ErrDuplicate)

	moved.ResourceID = "t3"
	require.NoError(t, s.Update(ctx, &moved))

	// the old scope is free again
	c := userGrant(resources.Task, "t2", "demo", resources.TaskPerms.Read)
	assert.NoError(t, s.Insert(ctx, c))

	assert.ErrorIs(t, s.Update(ctx, userGrant(resources.Task, "x", "demo", resources.TaskPerms.Read)), common.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "missing"), common.ErrNotFound)
}

func TestCandidates(t *testing.T) {
	ctx := context.Background()
	s := New()

	records := []*model.Authorization{
		userGrant(resources.Task, "t1", "demo", resources.TaskPerms.Read),
		userGrant(resources.Task, model.Any, "demo", resources.TaskPerms.Read),
		userGrant(resources.Task, "t1", model.Any, resources.TaskPerms.Read),
		userGrant(resources.Task, "t2", "demo", resources.TaskPerms.Read),
		userGrant(resources.Task, "t1", "other", resources.TaskPerms.Read),
		userGrant(resources.ProcessDefinition, "t1", "demo", resources.ProcessDefinitionPerms.Read),
	}
	group := model.New(model.Grant, resources.Task, "t1")
	group.GroupID = "sales"
	records = append(records, group)
	global := model.New(model.Global, resources.Task, model.Any)
	global.UserID = model.Any
	records = append(records, global)
	revoke := model.New(model.Revoke, resources.Task, "t1")
	revoke.UserID = "demo"
	records = append(records, revoke)

	for _, a := range records {
		require.NoError(t, s.Insert(ctx, a))
	}

	m := store.Match{
		ResourceType: resources.Task.ID,
		ResourceIDs:  []string{"t1", model.Any},
		UserID:       "demo",
		GroupIDs:     []string{"sales"},
	}
	got, err := s.Candidates(ctx, m)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	m.IncludeRevokes = true
	got, err = s.Candidates(ctx, m)
	require.NoError(t, err)
	assert.Len(t, got, 6)

	m.GroupIDs = nil
	got, err = s.Candidates(ctx, m)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	has, err := s.HasRevokes(ctx, resources.Task.ID)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = s.HasRevokes(ctx, resources.ProcessDefinition.ID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				a := userGrant(resources.Task, fmt.Sprintf("t-%d-%d", i, j), "demo", resources.TaskPerms.Read)
				assert.NoError(t, s.Insert(ctx, a))
				_, err := s.Find(ctx, store.Filter{UserIDs: []string{"demo"}})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16*50, s.Len())
	n, err := s.DeleteWhere(ctx, store.Filter{UserIDs: []string{"demo"}})
	require.NoError(t, err)
	assert.Equal(t, 16*50, n)
	assert.Zero(t, s.Len())
}
