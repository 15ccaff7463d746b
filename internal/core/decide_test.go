//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"testing"

	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/stretchr/testify/assert"
)

var read = resources.TaskPerms.Read

func grant(resourceID, user, group string, perms ...resources.Permission) *model.Authorization {
	a := model.New(model.Grant, resources.Task, resourceID)
	a.UserID, a.GroupID = user, group
	a.SetPermissions(perms...)
	return a
}

func revoke(resourceID, user, group string, perms ...resources.Permission) *model.Authorization {
	a := model.New(model.Revoke, resources.Task, resourceID)
	a.UserID, a.GroupID = user, group
	a.SetPermissions(perms...)
	return a
}

func global(resourceID string, perms ...resources.Permission) *model.Authorization {
	a := model.New(model.Global, resources.Task, resourceID)
	a.UserID = model.Any
	a.SetPermissions(perms...)
	return a
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		resourceID string
		groups     []string
		permission resources.Permission
		records    []*model.Authorization
		allowed    bool
		scope      string
	}{
		{name: "no records", resourceID: "t1"},
		{
			name:       "user grant on id",
			resourceID: "t1",
			records:    []*model.Authorization{grant("t1", "demo", "", read)},
			allowed:    true,
			scope:      ScopeUser,
		},
		{
			name:       "grant then revoke on the same id",
			resourceID: "t1",
			records:    []*model.Authorization{grant("t1", "demo", "", read), revoke("t1", "demo", "", read)},
			scope:      ScopeUser,
		},
		{
			name:       "any grant with specific revoke",
			resourceID: "t1",
			records:    []*model.Authorization{grant(model.Any, "demo", "", read), revoke("t1", "demo", "", read)},
			scope:      ScopeUser,
		},
		{
			name:       "any grant with specific revoke on another id",
			resourceID: "t2",
			records:    []*model.Authorization{grant(model.Any, "demo", "", read), revoke("t1", "demo", "", read)},
			allowed:    true,
			scope:      ScopeUserAny,
		},
		{
			name:       "specific grant beats any revoke",
			resourceID: "t1",
			records:    []*model.Authorization{grant("t1", "demo", "", read), revoke(model.Any, "demo", "", read)},
			allowed:    true,
			scope:      ScopeUser,
		},
		{
			name:       "revoke of another permission is not decisive",
			resourceID: "t1",
			records: []*model.Authorization{
				revoke("t1", "demo", "", resources.TaskPerms.Delete), grant(model.Any, "demo", "", read),
			},
			allowed: true,
			scope:   ScopeUserAny,
		},
		{
			name:       "group grant",
			resourceID: "t1",
			groups:     []string{"sales"},
			records:    []*model.Authorization{grant("t1", "", "sales", read)},
			allowed:    true,
			scope:      ScopeGroup,
		},
		{
			name:       "group grant without membership",
			resourceID: "t1",
			records:    []*model.Authorization{grant("t1", "", "sales", read)},
		},
		{
			name:       "user revoke beats group grant",
			resourceID: "t1",
			groups:     []string{"sales"},
			records:    []*model.Authorization{grant("t1", "", "sales", read), revoke(model.Any, "demo", "", read)},
			scope:      ScopeUserAny,
		},
		{
			name:       "group revoke beats global",
			resourceID: "t1",
			groups:     []string{"sales"},
			records:    []*model.Authorization{global(model.Any, read), revoke(model.Any, "", "sales", read)},
			scope:      ScopeGroupAny,
		},
		{
			name:       "global any",
			resourceID: "t1",
			records:    []*model.Authorization{global(model.Any, read)},
			allowed:    true,
			scope:      ScopeGlobalAny,
		},
		{
			name:       "wildcard user grant",
			resourceID: "t1",
			records:    []*model.Authorization{grant("t1", model.Any, "", read)},
			allowed:    true,
			scope:      ScopeUser,
		},
		{
			name:       "grants accumulate within a scope",
			resourceID: "t1",
			groups:     []string{"a", "b"},
			permission: resources.Permission{Resource: resources.Task.ID, Name: "READ_UPDATE", Value: 6},
			records: []*model.Authorization{
				grant("t1", "", "a", resources.TaskPerms.Read), grant("t1", "", "b", resources.TaskPerms.Update),
			},
			allowed: true,
			scope:   ScopeGroup,
		},
		{
			name:       "any check ignores specific grants",
			resourceID: "",
			records:    []*model.Authorization{grant("t1", "demo", "", read)},
		},
		{
			name:       "other resource type",
			resourceID: "t1",
			records: []*model.Authorization{func() *model.Authorization {
				a := model.New(model.Grant, resources.ProcessInstance, "t1")
				a.UserID = "demo"
				a.SetPermissions(resources.ProcessInstancePerms.Read)
				return a
			}()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.permission
			if p.Name == "" {
				p = read
			}
			d := check.NewDescriptor(types.NewAuthentication("demo", tt.groups),
				check.On(p, resources.Task, tt.resourceID), check.Always, true)

			allowed, scope := resolve(d, tt.records, true)
			assert.Equal(t, tt.allowed, allowed)
			assert.Equal(t, tt.scope, scope)
		})
	}
}

func TestResolveIgnoresRevokesWhenExcluded(t *testing.T) {
	d := check.NewDescriptor(types.NewAuthentication("demo", nil), check.On(read, resources.Task, "t1"), check.Auto, true)
	records := []*model.Authorization{grant(model.Any, "demo", "", read)}

	allowed, scope := resolve(d, records, false)
	assert.True(t, allowed)
	assert.Equal(t, ScopeUserAny, scope)
}
