//
//  Copyright © Manetu Inc. All rights reserved.
//

package query

import (
	"context"

	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/options"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
)

// ProcessInstanceQuery lists process instances.
type ProcessInstanceQuery struct {
	base
	id, definitionID, definitionKey string
	suspended                       *bool
}

func (s *Service) ProcessInstances(auth types.Authentication, opts ...options.AuthzOptionsFunc) *ProcessInstanceQuery {
	return &ProcessInstanceQuery{base: s.base("processInstance", auth, opts)}
}

func (q *ProcessInstanceQuery) ProcessInstanceID(id string) *ProcessInstanceQuery { q.id = id; return q }
func (q *ProcessInstanceQuery) ProcessDefinitionID(id string) *ProcessInstanceQuery {
	q.definitionID = id
	return q
}
func (q *ProcessInstanceQuery) ProcessDefinitionKey(key string) *ProcessInstanceQuery {
	q.definitionKey = key
	return q
}
func (q *ProcessInstanceQuery) Suspended() *ProcessInstanceQuery { v := true; q.suspended = &v; return q }
func (q *ProcessInstanceQuery) Active() *ProcessInstanceQuery    { v := false; q.suspended = &v; return q }

func (q *ProcessInstanceQuery) List(ctx context.Context) ([]engine.ProcessInstance, error) {
	s := q.open(ctx)
	var rows []engine.ProcessInstance
	q.svc.repo.View(func(st *engine.State) {
		for _, pi := range st.InstanceList() {
			if match(q.id, pi.ID) && match(q.definitionID, pi.DefinitionID) && match(q.definitionKey, pi.DefinitionKey) &&
				(q.suspended == nil || *q.suspended == pi.Suspended) {
				rows = append(rows, pi)
			}
		}
	})
	return filter(s, q.name, rows, func(pi engine.ProcessInstance) []check.Permission {
		return instanceRules(pi.ID, pi.DefinitionKey)
	})
}

func (q *ProcessInstanceQuery) Count(ctx context.Context) (int, error) { return count(q.List(ctx)) }
func (q *ProcessInstanceQuery) SingleResult(ctx context.Context) (*engine.ProcessInstance, error) {
	return single(q.List(ctx))
}

// ExecutionQuery lists executions.
type ExecutionQuery struct {
	base
	instanceID, activityID string
}

func (s *Service) Executions(auth types.Authentication, opts ...options.AuthzOptionsFunc) *ExecutionQuery {
	return &ExecutionQuery{base: s.base("execution", auth, opts)}
}

func (q *ExecutionQuery) ProcessInstanceID(id string) *ExecutionQuery { q.instanceID = id; return q }
func (q *ExecutionQuery) ActivityID(id string) *ExecutionQuery        { q.activityID = id; return q }

func (q *ExecutionQuery) List(ctx context.Context) ([]engine.Execution, error) {
	s := q.open(ctx)
	var rows []engine.Execution
	q.svc.repo.View(func(st *engine.State) {
		for _, e := range st.ExecutionList() {
			if match(q.instanceID, e.ProcessInstanceID) && match(q.activityID, e.ActivityID) {
				rows = append(rows, e)
			}
		}
	})
	return filter(s, q.name, rows, func(e engine.Execution) []check.Permission {
		return instanceRules(e.ProcessInstanceID, e.DefinitionKey)
	})
}

func (q *ExecutionQuery) Count(ctx context.Context) (int, error) { return count(q.List(ctx)) }
func (q *ExecutionQuery) SingleResult(ctx context.Context) (*engine.Execution, error) {
	return single(q.List(ctx))
}

// TaskQuery lists tasks.
type TaskQuery struct {
	base
	id, instanceID, definitionKey, assignee, candidateUser, candidateGroup string
}

func (s *Service) Tasks(auth types.Authentication, opts ...options.AuthzOptionsFunc) *TaskQuery {
	return &TaskQuery{base: s.base("task", auth, opts)}
}

func (q *TaskQuery) TaskID(id string) *TaskQuery                 { q.id = id; return q }
func (q *TaskQuery) ProcessInstanceID(id string) *TaskQuery      { q.instanceID = id; return q }
func (q *TaskQuery) ProcessDefinitionKey(key string) *TaskQuery  { q.definitionKey = key; return q }
func (q *TaskQuery) TaskAssignee(userID string) *TaskQuery       { q.assignee = userID; return q }
func (q *TaskQuery) TaskCandidateUser(userID string) *TaskQuery  { q.candidateUser = userID; return q }
func (q *TaskQuery) TaskCandidateGroup(groupID string) *TaskQuery { q.candidateGroup = groupID; return q }

func (q *TaskQuery) List(ctx context.Context) ([]engine.Task, error) {
	s := q.open(ctx)
	var rows []engine.Task
	q.svc.repo.View(func(st *engine.State) {
		for _, t := range st.TaskList() {
			if match(q.id, t.ID) && match(q.instanceID, t.ProcessInstanceID) && match(q.definitionKey, t.DefinitionKey) &&
				match(q.assignee, t.Assignee) && contains(q.candidateUser, t.CandidateUsers) &&
				contains(q.candidateGroup, t.CandidateGroups) {
				rows = append(rows, t)
			}
		}
	})
	return filter(s, q.name, rows, taskRules)
}

func (q *TaskQuery) Count(ctx context.Context) (int, error) { return count(q.List(ctx)) }
func (q *TaskQuery) SingleResult(ctx context.Context) (*engine.Task, error) {
	return single(q.List(ctx))
}

// JobQuery lists jobs.
type JobQuery struct {
	base
	id, jobDefinitionID, instanceID, definitionKey string
	failedOnly                                     bool
}

func (s *Service) Jobs(auth types.Authentication, opts ...options.AuthzOptionsFunc) *JobQuery {
	return &JobQuery{base: s.base("job", auth, opts)}
}

func (q *JobQuery) JobID(id string) *JobQuery                { q.id = id; return q }
func (q *JobQuery) JobDefinitionID(id string) *JobQuery      { q.jobDefinitionID = id; return q }
func (q *JobQuery) ProcessInstanceID(id string) *JobQuery    { q.instanceID = id; return q }
func (q *JobQuery) ProcessDefinitionKey(key string) *JobQuery { q.definitionKey = key; return q }

// NoRetriesLeft restricts the query to failed jobs.
func (q *JobQuery) NoRetriesLeft() *JobQuery { q.failedOnly = true; return q }

func (q *JobQuery) List(ctx context.Context) ([]engine.Job, error) {
	s := q.open(ctx)
	var rows []engine.Job
	q.svc.repo.View(func(st *engine.State) {
		for _, j := range st.JobList() {
			if match(q.id, j.ID) && match(q.jobDefinitionID, j.JobDefinitionID) && match(q.instanceID, j.ProcessInstanceID) &&
				match(q.definitionKey, j.DefinitionKey) && (!q.failedOnly || j.Failed()) {
				rows = append(rows, j)
			}
		}
	})
	return filter(s, q.name, rows, func(j engine.Job) []check.Permission {
		return append(instanceRules(j.ProcessInstanceID, j.DefinitionKey), check.On(jobRead, resources.Job, j.ID))
	})
}

func (q *JobQuery) Count(ctx context.Context) (int, error) { return count(q.List(ctx)) }
func (q *JobQuery) SingleResult(ctx context.Context) (*engine.Job, error) {
	return single(q.List(ctx))
}

// JobDefinitionQuery lists job definitions.
type JobDefinitionQuery struct {
	base
	id, definitionKey, activityID string
}

func (s *Service) JobDefinitions(auth types.Authentication, opts ...options.AuthzOptionsFunc) *JobDefinitionQuery {
	return &JobDefinitionQuery{base: s.base("jobDefinition", auth, opts)}
}

func (q *JobDefinitionQuery) JobDefinitionID(id string) *JobDefinitionQuery { q.id = id; return q }
func (q *JobDefinitionQuery) ProcessDefinitionKey(key string) *JobDefinitionQuery {
	q.definitionKey = key
	return q
}
func (q *JobDefinitionQuery) ActivityID(id string) *JobDefinitionQuery { q.activityID = id; return q }

func (q *JobDefinitionQuery) List(ctx context.Context) ([]engine.JobDefinition, error) {
	s := q.open(ctx)
	var rows []engine.JobDefinition
	q.svc.repo.View(func(st *engine.State) {
		for _, jd := range st.JobDefinitionList() {
			if match(q.id, jd.ID) && match(q.definitionKey, jd.DefinitionKey) && match(q.activityID, jd.ActivityID) {
				rows = append(rows, jd)
			}
		}
	})
	return filter(s, q.name, rows, func(jd engine.JobDefinition) []check.Permission {
		return []check.Permission{
			check.On(resources.ProcessDefinitionPerms.Read, resources.ProcessDefinition, jd.DefinitionKey),
			check.On(jobDefinitionRead, resources.JobDefinition, jd.ID),
		}
	})
}

func (q *JobDefinitionQuery) Count(ctx context.Context) (int, error) { return count(q.List(ctx)) }
func (q *JobDefinitionQuery) SingleResult(ctx context.Context) (*engine.JobDefinition, error) {
	return single(q.List(ctx))
}

// IncidentQuery lists incidents.
type IncidentQuery struct {
	base
	id, instanceID, activityID string
}

func (s *Service) Incidents(auth types.Authentication, opts ...options.AuthzOptionsFunc) *IncidentQuery {
	return &IncidentQuery{base: s.base("incident", auth, opts)}
}

func (q *IncidentQuery) IncidentID(id string) *IncidentQuery        { q.id = id; return q }
func (q *IncidentQuery) ProcessInstanceID(id string) *IncidentQuery { q.instanceID = id; return q }
func (q *IncidentQuery) ActivityID(id string) *IncidentQuery        { q.activityID = id; return q }

func (q *IncidentQuery) List(ctx context.Context) ([]engine.Incident, error) {
	s := q.open(ctx)
	var rows []engine.Incident
	q.svc.repo.View(func(st *engine.State) {
		for _, i := range st.IncidentList() {
			if match(q.id, i.ID) && match(q.instanceID, i.ProcessInstanceID) && match(q.activityID, i.ActivityID) {
				rows = append(rows, i)
			}
		}
	})
	return filter(s, q.name, rows, func(i engine.Incident) []check.Permission {
		return instanceRules(i.ProcessInstanceID, i.DefinitionKey)
	})
}

func (q *IncidentQuery) Count(ctx context.Context) (int, error) { return count(q.List(ctx)) }
func (q *IncidentQuery) SingleResult(ctx context.Context) (*engine.Incident, error) {
	return single(q.List(ctx))
}

// EventSubscriptionQuery lists event subscriptions.
type EventSubscriptionQuery struct {
	base
	instanceID, eventType, eventName string
}

func (s *Service) EventSubscriptions(auth types.Authentication, opts ...options.AuthzOptionsFunc) *EventSubscriptionQuery {
	return &EventSubscriptionQuery{base: s.base("eventSubscription", auth, opts)}
}

func (q *EventSubscriptionQuery) ProcessInstanceID(id string) *EventSubscriptionQuery {
	q.instanceID = id
	return q
}
func (q *EventSubscriptionQuery) EventType(t string) *EventSubscriptionQuery { q.eventType = t; return q }
func (q *EventSubscriptionQuery) EventName(n string) *EventSubscriptionQuery { q.eventName = n; return q }

func (q *EventSubscriptionQuery) List(ctx context.Context) ([]engine.EventSubscription, error) {
	s := q.open(ctx)
	var rows []engine.EventSubscription
	q.svc.repo.View(func(st *engine.State) {
		for _, e := range st.EventSubscriptionList() {
			if match(q.instanceID, e.ProcessInstanceID) && match(q.eventType, e.EventType) && match(q.eventName, e.EventName) {
				rows = append(rows, e)
			}
		}
	})
	return filter(s, q.name, rows, func(e engine.EventSubscription) []check.Permission {
		return instanceRules(e.ProcessInstanceID, e.DefinitionKey)
	})
}

func (q *EventSubscriptionQuery) Count(ctx context.Context) (int, error) { return count(q.List(ctx)) }
func (q *EventSubscriptionQuery) SingleResult(ctx context.Context) (*engine.EventSubscription, error) {
	return single(q.List(ctx))
}

// VariableInstanceQuery lists process and task variables.  With
// authorization.enforcespecificvariablepermission set, the *_VARIABLE
// permissions are required.
type VariableInstanceQuery struct {
	base
	variableName, instanceID, taskID string
}

func (s *Service) VariableInstances(auth types.Authentication, opts ...options.AuthzOptionsFunc) *VariableInstanceQuery {
	return &VariableInstanceQuery{base: s.base("variableInstance", auth, opts)}
}

func (q *VariableInstanceQuery) VariableName(name string) *VariableInstanceQuery { q.variableName = name; return q }
func (q *VariableInstanceQuery) ProcessInstanceID(id string) *VariableInstanceQuery {
	q.instanceID = id
	return q
}
func (q *VariableInstanceQuery) TaskID(id string) *VariableInstanceQuery { q.taskID = id; return q }

func (q *VariableInstanceQuery) List(ctx context.Context) ([]engine.VariableInstance, error) {
	s := q.open(ctx)
	var rows []engine.VariableInstance
	q.svc.repo.View(func(st *engine.State) {
		for _, v := range st.VariableList() {
			if match(q.variableName, v.Name) && match(q.instanceID, v.ProcessInstanceID) && match(q.taskID, v.TaskID) {
				rows = append(rows, v)
			}
		}
	})
	return filter(s, q.name, rows, variableRules(s.settings.EnforceSpecificVariablePermission))
}

func (q *VariableInstanceQuery) Count(ctx context.Context) (int, error) { return count(q.List(ctx)) }
func (q *VariableInstanceQuery) SingleResult(ctx context.Context) (*engine.VariableInstance, error) {
	return single(q.List(ctx))
}

// ProcessDefinitionQuery lists process definitions.
type ProcessDefinitionQuery struct {
	base
	id, key, deploymentID string
	latest                bool
}

func (s *Service) ProcessDefinitions(auth types.Authentication, opts ...options.AuthzOptionsFunc) *ProcessDefinitionQuery {
	return &ProcessDefinitionQuery{base: s.base("processDefinition", auth, opts)}
}

func (q *ProcessDefinitionQuery) ProcessDefinitionID(id string) *ProcessDefinitionQuery { q.id = id; return q }
func (q *ProcessDefinitionQuery) ProcessDefinitionKey(key string) *ProcessDefinitionQuery {
	q.key = key
	return q
}
func (q *ProcessDefinitionQuery) DeploymentID(id string) *ProcessDefinitionQuery { q.deploymentID = id; return q }

// LatestVersion keeps the highest version of each key.
func (q *ProcessDefinitionQuery) LatestVersion() *ProcessDefinitionQuery { q.latest = true; return q }

func (q *ProcessDefinitionQuery) List(ctx context.Context) ([]engine.ProcessDefinition, error) {
	s := q.open(ctx)
	var rows []engine.ProcessDefinition
	q.svc.repo.View(func(st *engine.State) {
		latest := map[string]int{}
		for _, pd := range st.DefinitionList() {
			if pd.Version > latest[pd.Key] {
				latest[pd.Key] = pd.Version
			}
		}
		for _, pd := range st.DefinitionList() {
			if match(q.id, pd.ID) && match(q.key, pd.Key) && match(q.deploymentID, pd.DeploymentID) &&
				(!q.latest || latest[pd.Key] == pd.Version) {
				rows = append(rows, pd)
			}
		}
	})
	return filter(s, q.name, rows, definitionRules)
}

func (q *ProcessDefinitionQuery) Count(ctx context.Context) (int, error) { return count(q.List(ctx)) }
func (q *ProcessDefinitionQuery) SingleResult(ctx context.Context) (*engine.ProcessDefinition, error) {
	return single(q.List(ctx))
}

func definitionRules(pd engine.ProcessDefinition) []check.Permission {
	return []check.Permission{check.On(resources.ProcessDefinitionPerms.Read, resources.ProcessDefinition, pd.Key)}
}

// DeploymentQuery lists deployments.
type DeploymentQuery struct {
	base
	id, deploymentName string
}

func (s *Service) Deployments(auth types.Authentication, opts ...options.AuthzOptionsFunc) *DeploymentQuery {
	return &DeploymentQuery{base: s.base("deployment", auth, opts)}
}

func (q *DeploymentQuery) DeploymentID(id string) *DeploymentQuery       { q.id = id; return q }
func (q *DeploymentQuery) DeploymentName(name string) *DeploymentQuery { q.deploymentName = name; return q }

func (q *DeploymentQuery) List(ctx context.Context) ([]engine.Deployment, error) {
	s := q.open(ctx)
	var rows []engine.Deployment
	q.svc.repo.View(func(st *engine.State) {
		for _, d := range st.DeploymentList() {
			if match(q.id, d.ID) && match(q.deploymentName, d.Name) {
				rows = append(rows, d)
			}
		}
	})
	return filter(s, q.name, rows, deploymentRules)
}

func (q *DeploymentQuery) Count(ctx context.Context) (int, error) { return count(q.List(ctx)) }
func (q *DeploymentQuery) SingleResult(ctx context.Context) (*engine.Deployment, error) {
	return single(q.List(ctx))
}

func deploymentRules(d engine.Deployment) []check.Permission {
	return []check.Permission{check.On(deploymentRead, resources.Deployment, d.ID)}
}

func match(want, got string) bool {
	return want == "" || want == got
}

func contains(want string, got []string) bool {
	if want == "" {
		return true
	}
	for _, g := range got {
		if g == want {
			return true
		}
	}
	return false
}
