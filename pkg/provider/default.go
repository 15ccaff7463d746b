//
//  Copyright © Manetu Inc. All rights reserved.
//

package provider

import (
	"context"

	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
)

const reserved = "id cannot be *. * is a reserved identifier."

// Default grants the people a task is assigned, owned by or offered to READ
// and the default task permission on it, merging into any grant they
// already hold.  The creator of a deployment may read and delete it, and a
// new tenant member may read the tenant.
type Default struct {
	Noop
	svc        *store.Service
	permission resources.Permission
}

var _ Provider = (*Default)(nil)

// NewDefault returns a Default granting taskPermission, UPDATE or TASK_WORK,
// on tasks.
func NewDefault(svc *store.Service, taskPermission string) (*Default, error) {
	var p resources.Permission
	switch taskPermission {
	case "", resources.TaskPerms.Update.Name:
		p = resources.TaskPerms.Update
	case resources.TaskPerms.TaskWork.Name:
		p = resources.TaskPerms.TaskWork
	default:
		return nil, common.NewErrorf(common.KindBadConfiguration,
			"Invalid value '%s' for configuration property 'defaultUserPermissionNameForTask'.", taskPermission)
	}
	return &Default{svc: svc, permission: p}, nil
}

// Permission is the permission granted on tasks.
func (p *Default) Permission() resources.Permission { return p.permission }

func (p *Default) NewTask(ctx context.Context, task engine.Task) ([]*model.Authorization, error) {
	var out []*model.Authorization
	if task.Assignee != "" {
		a, err := p.NewTaskAssignee(ctx, task, "", task.Assignee)
		if err != nil {
			return nil, err
		}
		out = append(out, a...)
	}
	if task.Owner != "" && task.Owner != task.Assignee {
		a, err := p.NewTaskOwner(ctx, task, "", task.Owner)
		if err != nil {
			return nil, err
		}
		out = append(out, a...)
	}
	return out, nil
}

func (p *Default) NewTaskAssignee(ctx context.Context, task engine.Task, _, newAssignee string) ([]*model.Authorization, error) {
	if newAssignee == "" {
		return nil, nil
	}
	if newAssignee == model.Any {
		return nil, common.NewErrorf(common.KindBadRequest, "Cannot create default authorization for assignee *: %s", reserved)
	}
	return p.grantOnTask(ctx, task.ID, newAssignee, "")
}

func (p *Default) NewTaskOwner(ctx context.Context, task engine.Task, _, newOwner string) ([]*model.Authorization, error) {
	if newOwner == "" {
		return nil, nil
	}
	if newOwner == model.Any {
		return nil, common.NewErrorf(common.KindBadRequest, "Cannot create default authorization for owner *: %s", reserved)
	}
	return p.grantOnTask(ctx, task.ID, newOwner, "")
}

func (p *Default) NewTaskUserIdentityLink(ctx context.Context, task engine.Task, userID, _ string) ([]*model.Authorization, error) {
	if userID == model.Any {
		return nil, common.NewErrorf(common.KindBadRequest, "Cannot grant default authorization for identity link to user *: %s", reserved)
	}
	return p.grantOnTask(ctx, task.ID, userID, "")
}

func (p *Default) NewTaskGroupIdentityLink(ctx context.Context, task engine.Task, groupID, _ string) ([]*model.Authorization, error) {
	if groupID == model.Any {
		return nil, common.NewErrorf(common.KindBadRequest, "Cannot grant default authorization for identity link to group *: %s", reserved)
	}
	return p.grantOnTask(ctx, task.ID, "", groupID)
}

func (p *Default) NewDeployment(ctx context.Context, auth types.Authentication, d engine.Deployment) ([]*model.Authorization, error) {
	if auth.UserID == "" {
		return nil, nil
	}
	a, err := p.grant(ctx, resources.Deployment, d.ID, auth.UserID, "",
		resources.MustLookup(resources.Deployment, "READ"), resources.MustLookup(resources.Deployment, "DELETE"))
	if err != nil {
		return nil, err
	}
	return []*model.Authorization{a}, nil
}

func (p *Default) TenantMembershipCreated(ctx context.Context, tenantID, userID, groupID string) ([]*model.Authorization, error) {
	a, err := p.grant(ctx, resources.Tenant, tenantID, userID, groupID, resources.MustLookup(resources.Tenant, "READ"))
	if err != nil {
		return nil, err
	}
	return []*model.Authorization{a}, nil
}

func (p *Default) grantOnTask(ctx context.Context, taskID, userID, groupID string) ([]*model.Authorization, error) {
	a, err := p.grant(ctx, resources.Task, taskID, userID, groupID, resources.TaskPerms.Read, p.permission)
	if err != nil {
		return nil, err
	}
	return []*model.Authorization{a}, nil
}

func (p *Default) grant(ctx context.Context, r resources.Resource, id, userID, groupID string,
	ps ...resources.Permission) (*model.Authorization, error) {
	return Merge(ctx, p.svc, r, id, userID, groupID, ps...)
}

// Merge returns the principal's grant on (r, id) extended with ps, or a new
// unsaved grant when it holds none.  Exactly one of userID and groupID is
// expected.
func Merge(ctx context.Context, svc *store.Service, r resources.Resource, id, userID, groupID string,
	ps ...resources.Permission) (*model.Authorization, error) {
	q := svc.Query().ResourceType(r).ResourceID(id).AuthorizationType(model.Grant)
	if groupID != "" {
		q = q.GroupIDIn(groupID)
	} else {
		q = q.UserIDIn(userID)
	}
	a, err := q.SingleResult(ctx)
	if err != nil {
		return nil, err
	}

	if a == nil {
		a = svc.CreateAuthorization(model.Grant, r, id)
		a.UserID, a.GroupID = userID, groupID
	}
	for _, perm := range ps {
		a.AddPermission(perm)
	}
	logger.Debugf(agent, "merge", "%s on %s/%s for user=%q group=%q", a.Type, r.Name, id, a.UserID, a.GroupID)
	return a, nil
}
