//
//  Copyright © Manetu Inc. All rights reserved.
//

package provider

import (
	"context"
	"testing"

	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/manetu/authzengine/pkg/core/store/memory"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefault(t *testing.T, permission string) (*Default, *store.Service) {
	t.Helper()
	svc := store.NewService(memory.New(), resources.Default)
	p, err := NewDefault(svc, permission)
	require.NoError(t, err)
	return p, svc
}

func saveAll(t *testing.T, svc *store.Service, list []*model.Authorization) {
	t.Helper()
	for _, a := range list {
		require.NoError(t, svc.Save(context.Background(), a))
	}
}

func TestNewTaskGrantsAssigneeAndOwner(t *testing.T) {
	p, svc := newDefault(t, "")
	assert.Equal(t, resources.TaskPerms.Update, p.Permission())

	list, err := p.NewTask(context.Background(), engine.Task{ID: "t1", Assignee: "demo", Owner: "john"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	saveAll(t, svc, list)

	for _, a := range list {
		assert.Equal(t, model.Grant, a.Type)
		assert.Equal(t, resources.Task.ID, a.ResourceType)
		assert.Equal(t, "t1", a.ResourceID)
		assert.Equal(t, resources.TaskPerms.Read.Value|resources.TaskPerms.Update.Value, a.Permissions)
	}

	// an owner who is also the assignee gets a single record
	list, err = p.NewTask(context.Background(), engine.Task{ID: "t2", Assignee: "demo", Owner: "demo"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMergeIntoExistingGrant(t *testing.T) {
	p, svc := newDefault(t, "")
	ctx := context.Background()

	a := svc.CreateAuthorization(model.Grant, resources.Task, "t1")
	a.UserID = "demo"
	a.AddPermission(resources.TaskPerms.Delete)
	require.NoError(t, svc.Save(ctx, a))

	list, err := p.NewTaskAssignee(ctx, engine.Task{ID: "t1"}, "", "demo")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)
	saveAll(t, svc, list)

	n, err := svc.Query().ResourceType(resources.Task).ResourceID("t1").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.Query().ResourceType(resources.Task).ResourceID("t1").SingleResult(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	want := resources.TaskPerms.Delete.Value | resources.TaskPerms.Read.Value | resources.TaskPerms.Update.Value
	assert.Equal(t, want, got.Permissions)
}

func TestTaskWorkPermission(t *testing.T) {
	p, _ := newDefault(t, "TASK_WORK")

	list, err := p.NewTaskGroupIdentityLink(context.Background(), engine.Task{ID: "t1"}, "sales", LinkCandidate)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "sales", list[0].GroupID)
	assert.Empty(t, list[0].UserID)
	assert.Equal(t, resources.TaskPerms.Read.Value|resources.TaskPerms.TaskWork.Value, list[0].Permissions)
}

func TestInvalidTaskPermission(t *testing.T) {
	_, err := NewDefault(store.NewService(memory.New(), resources.Default), "DELETE")
	assert.ErrorIs(t, err, common.ErrBadConfiguration)
	assert.Contains(t, err.Error(), "Invalid value 'DELETE' for configuration property 'defaultUserPermissionNameForTask'.")
}

func TestReservedIdentifier(t *testing.T) {
	p, _ := newDefault(t, "")
	ctx := context.Background()
	task := engine.Task{ID: "t1"}

	_, err := p.NewTaskAssignee(ctx, task, "", "*")
	assert.ErrorIs(t, err, common.ErrBadRequest)
	assert.Contains(t, err.Error(), "Cannot create default authorization for assignee *: id cannot be *. * is a reserved identifier.")

	_, err = p.NewTaskOwner(ctx, task, "", "*")
	assert.Contains(t, err.Error(), "Cannot create default authorization for owner *: id cannot be *. * is a reserved identifier.")

	_, err = p.NewTaskUserIdentityLink(ctx, task, "*", LinkCandidate)
	assert.Contains(t, err.Error(), "Cannot grant default authorization for identity link to user *: id cannot be *. * is a reserved identifier.")

	_, err = p.NewTaskGroupIdentityLink(ctx, task, "*", LinkCandidate)
	assert.Contains(t, err.Error(), "Cannot grant default authorization for identity link to group *: id cannot be *. * is a reserved identifier.")
}

func TestDeploymentAndTenant(t *testing.T) {
	p, _ := newDefault(t, "")
	ctx := context.Background()

	list, err := p.NewDeployment(ctx, types.Authentication{UserID: "demo"}, engine.Deployment{ID: "dep-1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	read := resources.MustLookup(resources.Deployment, "READ")
	del := resources.MustLookup(resources.Deployment, "DELETE")
	assert.Equal(t, read.Value|del.Value, list[0].Permissions)

	list, err = p.NewDeployment(ctx, types.Authentication{}, engine.Deployment{ID: "dep-2"})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = p.TenantMembershipCreated(ctx, "tenant-1", "", "sales")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, resources.Tenant.ID, list[0].ResourceType)
	assert.Equal(t, "sales", list[0].GroupID)

	// hooks the default does not implement grant nothing
	list, err = p.NewProcessDefinition(ctx, engine.ProcessDefinition{ID: "p:1", Key: "p"})
	require.NoError(t, err)
	assert.Empty(t, list)
}
