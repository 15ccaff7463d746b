//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package provider creates the authorizations that engine events imply, such
// as a grant for the new assignee of a task.
//
// The gate calls a [Provider] after each mutation and persists the records it
// returns.  Returned records may be new or updated copies of stored ones.
package provider

import (
	"context"

	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
)

var logger = logging.GetLogger("authz.provider")

const agent = "provider"

// Provider is notified of the engine events that may grant access.
type Provider interface {
	NewTask(ctx context.Context, task engine.Task) ([]*model.Authorization, error)
	NewTaskAssignee(ctx context.Context, task engine.Task, oldAssignee, newAssignee string) ([]*model.Authorization, error)
	NewTaskOwner(ctx context.Context, task engine.Task, oldOwner, newOwner string) ([]*model.Authorization, error)
	NewTaskUserIdentityLink(ctx context.Context, task engine.Task, userID, linkType string) ([]*model.Authorization, error)
	NewTaskGroupIdentityLink(ctx context.Context, task engine.Task, groupID, linkType string) ([]*model.Authorization, error)
	DeleteTaskUserIdentityLink(ctx context.Context, task engine.Task, userID, linkType string) ([]*model.Authorization, error)
	DeleteTaskGroupIdentityLink(ctx context.Context, task engine.Task, groupID, linkType string) ([]*model.Authorization, error)
	NewDeployment(ctx context.Context, auth types.Authentication, d engine.Deployment) ([]*model.Authorization, error)
	NewProcessDefinition(ctx context.Context, pd engine.ProcessDefinition) ([]*model.Authorization, error)
	NewDecisionDefinition(ctx context.Context, key string) ([]*model.Authorization, error)
	GroupMembershipCreated(ctx context.Context, groupID, userID string) ([]*model.Authorization, error)
	TenantMembershipCreated(ctx context.Context, tenantID, userID, groupID string) ([]*model.Authorization, error)
}

// Identity link types.
const (
	LinkCandidate = "candidate"
	LinkAssignee  = "assignee"
	LinkOwner     = "owner"
)

// Noop grants nothing.
type Noop struct{}

var _ Provider = Noop{}

func (Noop) NewTask(context.Context, engine.Task) ([]*model.Authorization, error) { return nil, nil }
func (Noop) NewTaskAssignee(context.Context, engine.Task, string, string) ([]*model.Authorization, error) {
	return nil, nil
}
func (Noop) NewTaskOwner(context.Context, engine.Task, string, string) ([]*model.Authorization, error) {
	return nil, nil
}
func (Noop) NewTaskUserIdentityLink(context.Context, engine.Task, string, string) ([]*model.Authorization, error) {
	return nil, nil
}
func (Noop) NewTaskGroupIdentityLink(context.Context, engine.Task, string, string) ([]*model.Authorization, error) {
	return nil, nil
}
func (Noop) DeleteTaskUserIdentityLink(context.Context, engine.Task, string, string) ([]*model.Authorization, error) {
	return nil, nil
}
func (Noop) DeleteTaskGroupIdentityLink(context.Context, engine.Task, string, string) ([]*model.Authorization, error) {
	return nil, nil
}
func (Noop) NewDeployment(context.Context, types.Authentication, engine.Deployment) ([]*model.Authorization, error) {
	return nil, nil
}
func (Noop) NewProcessDefinition(context.Context, engine.ProcessDefinition) ([]*model.Authorization, error) {
	return nil, nil
}
func (Noop) NewDecisionDefinition(context.Context, string) ([]*model.Authorization, error) { return nil, nil }
func (Noop) GroupMembershipCreated(context.Context, string, string) ([]*model.Authorization, error) {
	return nil, nil
}
func (Noop) TenantMembershipCreated(context.Context, string, string, string) ([]*model.Authorization, error) {
	return nil, nil
}
