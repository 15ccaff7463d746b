//
//  Copyright © Manetu Inc. All rights reserved.
//

package rego

import (
	"context"
	"testing"

	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/opa"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/manetu/authzengine/pkg/core/store/memory"
	"github.com/manetu/authzengine/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const policy = `
package provider

default grants := []

grants := [{"userId": input.task.assignee, "permissions": ["READ", "TASK_WORK"]}] if {
	input.event == "newTaskAssignee"
	input.new != ""
}

grants := [{"groupId": "approvers", "resource": "ProcessDefinition", "permissions": ["READ", "READ_TASK"]}] if {
	input.event == "newProcessDefinition"
}

grants := [{"userId": input.userId, "permissions": ["NOPE"]}] if {
	input.event == "newTaskUserIdentityLink"
}
`

func newProvider(t *testing.T) (*Provider, *store.Service) {
	t.Helper()
	svc := store.NewService(memory.New(), resources.Default)
	p, err := New(svc, "provider", opa.Modules{"provider.rego": policy})
	require.NoError(t, err)
	return p, svc
}

func TestAssigneeGrant(t *testing.T) {
	p, _ := newProvider(t)

	list, err := p.NewTaskAssignee(context.Background(), engine.Task{ID: "t1", Assignee: "demo"}, "", "demo")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "demo", list[0].UserID)
	assert.Equal(t, "t1", list[0].ResourceID)
	assert.Equal(t, resources.TaskPerms.Read.Value|resources.TaskPerms.TaskWork.Value, list[0].Permissions)
}

func TestDefaultsToNoGrants(t *testing.T) {
	p, _ := newProvider(t)

	list, err := p.NewTaskOwner(context.Background(), engine.Task{ID: "t1"}, "", "demo")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestResourceOverride(t *testing.T) {
	p, svc := newProvider(t)
	ctx := context.Background()

	list, err := p.NewProcessDefinition(ctx, engine.ProcessDefinition{ID: "invoice:1", Key: "invoice"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, resources.ProcessDefinition.ID, list[0].ResourceType)
	assert.Equal(t, "invoice", list[0].ResourceID)
	assert.Equal(t, "approvers", list[0].GroupID)
	require.NoError(t, svc.Save(ctx, list[0]))
}

func TestUnknownPermission(t *testing.T) {
	p, _ := newProvider(t)

	_, err := p.NewTaskUserIdentityLink(context.Background(), engine.Task{ID: "t1"}, "demo", "candidate")
	assert.ErrorIs(t, err, common.ErrBadRequest)
	assert.Contains(t, err.Error(), "NOPE")
}

func TestCompileError(t *testing.T) {
	svc := store.NewService(memory.New(), resources.Default)
	_, err := New(svc, "provider", opa.Modules{"provider.rego": "package provider\n grants := ["})
	assert.Error(t, err)
}
