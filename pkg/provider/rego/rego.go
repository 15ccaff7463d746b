//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package rego is a provider whose grants are computed by a Rego policy.
//
// The policy is queried at data.<package>.grants with an input naming the
// event and its subject:
//
//	package provider
//
//	default grants := []
//
//	grants := [{"userId": input.task.assignee, "permissions": ["UPDATE"]}] if {
//		input.event == "newTaskAssignee"
//	}
//
// Each grant may name a "resource" and "resourceId"; both default to the
// subject of the event.  Grants are merged into the principal's existing
// grant on the resource.
package rego

import (
	"context"

	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/opa"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/store"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
	"github.com/manetu/authzengine/pkg/provider"
)

var logger = logging.GetLogger("authz.provider.rego")

const agent = "rego"

// Grant is one element of the policy's result.
type Grant struct {
	Resource    string   `json:"resource"`
	ResourceID  string   `json:"resourceId"`
	UserID      string   `json:"userId"`
	GroupID     string   `json:"groupId"`
	Permissions []string `json:"permissions"`
}

// Provider evaluates a compiled policy for every event.
type Provider struct {
	ast   *opa.Ast
	query string
	svc   *store.Service
}

var _ provider.Provider = (*Provider)(nil)

// New compiles modules and queries data.<pkg>.grants.
func New(svc *store.Service, pkg string, modules opa.Modules, opts ...opa.CompilerOptionFunc) (*Provider, error) {
	a, err := opa.NewCompiler(opts...).Compile(pkg, modules)
	if err != nil {
		return nil, err
	}
	return &Provider{ast: a, query: "data." + pkg + ".grants", svc: svc}, nil
}

type subject struct {
	resource resources.Resource
	id       string
}

func taskInput(t engine.Task) map[string]any {
	return map[string]any{
		"id":                t.ID,
		"name":              t.Name,
		"processInstanceId": t.ProcessInstanceID,
		"definitionKey":     t.DefinitionKey,
		"assignee":          t.Assignee,
		"owner":             t.Owner,
		"candidateUsers":    ids(t.CandidateUsers),
		"candidateGroups":   ids(t.CandidateGroups),
	}
}

func ids(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (p *Provider) eval(ctx context.Context, event string, sub subject, input map[string]any) ([]*model.Authorization, error) {
	input["event"] = event

	var grants []Grant
	if err := p.ast.EvaluateInto(ctx, p.query, input, &grants); err != nil {
		return nil, err
	}

	reg := p.svc.Registry()
	out := make([]*model.Authorization, 0, len(grants))
	for _, g := range grants {
		r, id := sub.resource, sub.id
		if g.Resource != "" {
			var ok bool
			if r, ok = reg.ResourceByName(g.Resource); !ok {
				return nil, common.NewErrorf(common.KindBadRequest, "%s: unknown resource '%s'", p.ast.Name(), g.Resource)
			}
		}
		if g.ResourceID != "" {
			id = g.ResourceID
		}
		if (g.UserID == "") == (g.GroupID == "") {
			return nil, common.NewErrorf(common.KindBadRequest, "%s: a grant needs exactly one of userId and groupId", p.ast.Name())
		}

		perms := make([]resources.Permission, 0, len(g.Permissions))
		for _, name := range g.Permissions {
			perm, ok := reg.Lookup(r.ID, name)
			if !ok {
				return nil, common.NewErrorf(common.KindBadRequest,
					"The resource type with id:'%d' is not valid for '%s' permission.", r.ID, name)
			}
			perms = append(perms, perm)
		}

		a, err := provider.Merge(ctx, p.svc, r, id, g.UserID, g.GroupID, perms...)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	logger.Debugf(agent, event, "%d grants on %s/%s", len(out), sub.resource.Name, sub.id)
	return out, nil
}

func (p *Provider) NewTask(ctx context.Context, task engine.Task) ([]*model.Authorization, error) {
	return p.eval(ctx, "newTask", subject{resources.Task, task.ID}, map[string]any{"task": taskInput(task)})
}

func (p *Provider) NewTaskAssignee(ctx context.Context, task engine.Task, oldAssignee, newAssignee string) ([]*model.Authorization, error) {
	return p.eval(ctx, "newTaskAssignee", subject{resources.Task, task.ID},
		map[string]any{"task": taskInput(task), "old": oldAssignee, "new": newAssignee})
}

func (p *Provider) NewTaskOwner(ctx context.Context, task engine.Task, oldOwner, newOwner string) ([]*model.Authorization, error) {
	return p.eval(ctx, "newTaskOwner", subject{resources.Task, task.ID},
		map[string]any{"task": taskInput(task), "old": oldOwner, "new": newOwner})
}

func (p *Provider) NewTaskUserIdentityLink(ctx context.Context, task engine.Task, userID, linkType string) ([]*model.Authorization, error) {
	return p.eval(ctx, "newTaskUserIdentityLink", subject{resources.Task, task.ID},
		map[string]any{"task": taskInput(task), "userId": userID, "type": linkType})
}

func (p *Provider) NewTaskGroupIdentityLink(ctx context.Context, task engine.Task, groupID, linkType string) ([]*model.Authorization, error) {
	return p.eval(ctx, "newTaskGroupIdentityLink", subject{resources.Task, task.ID},
		map[string]any{"task": taskInput(task), "groupId": groupID, "type": linkType})
}

func (p *Provider) DeleteTaskUserIdentityLink(ctx context.Context, task engine.Task, userID, linkType string) ([]*model.Authorization, error) {
	return p.eval(ctx, "deleteTaskUserIdentityLink", subject{resources.Task, task.ID},
		map[string]any{"task": taskInput(task), "userId": userID, "type": linkType})
}

func (p *Provider) DeleteTaskGroupIdentityLink(ctx context.Context, task engine.Task, groupID, linkType string) ([]*model.Authorization, error) {
	return p.eval(ctx, "deleteTaskGroupIdentityLink", subject{resources.Task, task.ID},
		map[string]any{"task": taskInput(task), "groupId": groupID, "type": linkType})
}

func (p *Provider) NewDeployment(ctx context.Context, auth types.Authentication, d engine.Deployment) ([]*model.Authorization, error) {
	return p.eval(ctx, "newDeployment", subject{resources.Deployment, d.ID}, map[string]any{
		"deployment": map[string]any{"id": d.ID, "name": d.Name},
		"principal":  map[string]any{"userId": auth.UserID, "groupIds": ids(auth.GroupIDs)},
	})
}

func (p *Provider) NewProcessDefinition(ctx context.Context, pd engine.ProcessDefinition) ([]*model.Authorization, error) {
	return p.eval(ctx, "newProcessDefinition", subject{resources.ProcessDefinition, pd.Key}, map[string]any{
		"definition": map[string]any{"id": pd.ID, "key": pd.Key, "deploymentId": pd.DeploymentID},
	})
}

func (p *Provider) NewDecisionDefinition(ctx context.Context, key string) ([]*model.Authorization, error) {
	return p.eval(ctx, "newDecisionDefinition", subject{resources.DecisionDefinition, key},
		map[string]any{"definition": map[string]any{"key": key}})
}

func (p *Provider) GroupMembershipCreated(ctx context.Context, groupID, userID string) ([]*model.Authorization, error) {
	return p.eval(ctx, "groupMembershipCreated", subject{resources.Group, groupID},
		map[string]any{"groupId": groupID, "userId": userID})
}

func (p *Provider) TenantMembershipCreated(ctx context.Context, tenantID, userID, groupID string) ([]*model.Authorization, error) {
	return p.eval(ctx, "tenantMembershipCreated", subject{resources.Tenant, tenantID},
		map[string]any{"tenantId": tenantID, "userId": userID, "groupId": groupID})
}
